/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

import (
	"sort"

	"github.com/bsd-hacker/qmanager/internal/constraint"
	"github.com/bsd-hacker/qmanager/internal/machine"
	"github.com/bsd-hacker/qmanager/internal/wire"
)

// handleStatus implements status: machines matching mdl, annotated with
// current load, read-only.
func (s *Scheduler) handleStatus(req Request) error {
	mdl, err := argStrings(req.Args, "mdl")
	if err != nil {
		return err
	}
	pred, err := constraint.Compile(mdl)
	if err != nil {
		return errArgumentError
	}

	names := make([]string, 0, len(s.machines))
	for name := range s.machines {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]wire.Value, 0, len(names))
	for _, name := range names {
		m := s.machines[name]
		if !pred.Eval(m.ToRow()) {
			continue
		}
		rows = append(rows, machineValue(m))
	}

	sendFrame(req.Session, wire.StatusOK, wire.Args{"machines": wire.List(rows)}, true)
	return nil
}

// handleJobs implements jobs: every in-flight job, running or blocked,
// read-only.
func (s *Scheduler) handleJobs(req Request) error {
	ids := make([]uint64, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]wire.Value, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, jobValue(s.jobs[id]))
	}

	sendFrame(req.Session, wire.StatusOK, wire.Args{"jobs": wire.List(rows)}, true)
	return nil
}

func machineValue(m *machine.Machine) wire.Value {
	pools := make([]wire.Value, len(m.Pools))
	for i, p := range m.Pools {
		pools[i] = wire.String(p)
	}
	aclNames := make([]wire.Value, len(m.ACLNames))
	for i, a := range m.ACLNames {
		aclNames[i] = wire.String(a)
	}
	return wire.List([]wire.Value{
		wire.String(m.Name), wire.String(m.Domain), wire.String(m.PrimaryPool),
		wire.List(pools), wire.String(m.Arch), wire.Int64(m.OSVersion),
		wire.Int64(m.NumCPUs), wire.Int64(m.MaxJobs), wire.Bool(m.HasZFS),
		wire.Bool(m.Online), wire.Int64(m.CurJobs()), wire.List(aclNames),
	})
}

func jobValue(j *Job) wire.Value {
	machines := make([]wire.Value, len(j.Machines))
	for i, name := range j.Machines {
		machines[i] = wire.String(name)
	}
	return wire.List([]wire.Value{
		wire.Int64(int64(j.ID)), wire.String(j.Name), wire.String(j.Type),
		wire.Int64(j.Priority), wire.Int64(int64(j.Owner)), wire.List(machines),
		wire.Int64(j.StartTime), wire.Bool(j.Running),
	})
}
