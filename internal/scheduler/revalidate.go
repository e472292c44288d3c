/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

import (
	"github.com/bsd-hacker/qmanager/internal/machine"
	"github.com/bsd-hacker/qmanager/internal/wire"
)

// revalidateBlocked re-runs every still-blocked job's eligibility test,
// called after any machine or ACL mutation that could change which
// machines a blocked job may now use.
func (s *Scheduler) revalidateBlocked() {
	ids := make([]uint64, 0, len(s.jobs))
	for id, j := range s.jobs {
		if !j.Running {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		if job, ok := s.jobs[id]; ok && !job.Running {
			s.runOrBlock(job)
		}
	}
}

// runOrBlock recomputes job's eligible machine set from its retained
// mdl and owner credentials. A now-pickable job is promoted; a changed
// but still nonempty eligible set re-blocks the job there; an empty
// set (no matching machine, or permission lost) cancels it.
func (s *Scheduler) runOrBlock(job *Job) {
	candidates, err := s.eligibleMachines(job.MDL)
	if err != nil || len(candidates) == 0 {
		s.cancelJob(job, "no longer matches any machine")
		return
	}
	valid := s.filterValidated(candidates, job.Owner, job.GIDs)
	if len(valid) == 0 {
		s.cancelJob(job, "permission lost")
		return
	}

	if choice := machine.Pick(valid); choice != nil {
		s.promoteDirect(job, choice)
		return
	}

	newNames := machineNames(valid)
	if namesEqual(job.Machines, newNames) {
		return
	}
	prev := job.Machines
	job.Machines = newNames
	if err := s.store.PutJob(jobToRow(job)); err != nil {
		job.Machines = prev
		s.logError("commit failed while reblocking job", sdJob(job.ID))
		return
	}
	for _, name := range prev {
		if m, ok := s.machines[name]; ok {
			m.Unblock(job.ID)
		}
	}
	for _, m := range valid {
		if err := m.Block(job); err != nil {
			s.logError("duplicate block during revalidation", sdJob(job.ID), sdMachine(m.Name))
		}
	}
}

// promoteDirect promotes job onto choice during revalidation: unlike
// tryPromote (reached from a machine finishing a job it already
// reserved a slot for), the job was never running anywhere, so its new
// slot must be incremented.
func (s *Scheduler) promoteDirect(job *Job, choice *machine.Machine) {
	for _, name := range job.Machines {
		if m, ok := s.machines[name]; ok {
			m.Unblock(job.ID)
		}
	}
	job.Machines = []string{choice.Name}
	job.StartTime = s.now()
	job.Running = true
	if err := s.store.PutJob(jobToRow(job)); err != nil {
		job.Running = false
		s.logError("commit failed while promoting revalidated job", sdJob(job.ID))
		s.cancelJob(job, "commit failure during revalidation promotion")
		return
	}
	if err := choice.Run(job.ID, job, true); err != nil {
		job.Running = false
		s.cancelJob(job, "chosen machine over capacity during revalidation")
		return
	}
	sess := job.Conn
	job.Conn = nil
	s.logInfo("revalidated job promoted", sdJob(job.ID), sdMachine(choice.Name))
	sendFrame(sess, wire.StatusJobAllocated,
		wire.Args{"machine": wire.String(choice.Name), "id": wire.Int64(int64(job.ID))}, true)
}
