/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

import (
	"github.com/bsd-hacker/qmanager/internal/catalog"
	"github.com/bsd-hacker/qmanager/internal/constraint"
	"github.com/bsd-hacker/qmanager/internal/machine"
	"github.com/bsd-hacker/qmanager/internal/wire"
)

// handleRun implements both try (blocking=false) and acquire
// (blocking=true): compile the submitted mdl, narrow to machines the
// caller's uid/gids may use, and either place the job immediately or
// (acquire only) block it on every still-eligible machine.
func (s *Scheduler) handleRun(req Request, blocking bool) error {
	name, err := argString(req.Args, "name")
	if err != nil {
		return err
	}
	jobType, err := argString(req.Args, "type")
	if err != nil {
		return err
	}
	priority, err := argInt64(req.Args, "priority")
	if err != nil {
		return err
	}
	mdl, err := argStrings(req.Args, "mdl")
	if err != nil {
		return err
	}

	candidates, err := s.eligibleMachines(mdl)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return errNoMachines
	}

	valid := s.filterValidated(candidates, req.Session.UID, req.Session.GIDs)
	if len(valid) == 0 {
		return errPermissionDenied
	}

	if choice := machine.Pick(valid); choice != nil {
		return s.placeRunning(req, choice, name, jobType, priority, mdl)
	}
	if !blocking {
		return errWouldBlock
	}
	return s.placeBlocked(req, valid, name, jobType, priority, mdl)
}

// eligibleMachines compiles mdl and returns every machine.Machine whose
// catalog row satisfies it, regardless of current load -- load and ACL
// narrowing happen afterward, matching suitable_machines()'s separate
// "matches mdl" then "validated for this user" passes.
func (s *Scheduler) eligibleMachines(mdl []string) ([]*machine.Machine, error) {
	pred, err := constraint.Compile(mdl)
	if err != nil {
		return nil, errArgumentError
	}
	rows := make([]constraint.Row, 0, len(s.machines))
	// Go's map iteration order is randomized per run, which already gives
	// suitable_machines()'s shuffle(mlist) for free: no single machine is
	// ever favored by name across repeated calls.
	for _, m := range s.machines {
		rows = append(rows, m.ToRow())
	}
	matched := constraint.Filter(pred, rows)
	out := make([]*machine.Machine, 0, len(matched))
	for _, r := range matched {
		out = append(out, s.machines[r.Name])
	}
	return out, nil
}

func (s *Scheduler) filterValidated(candidates []*machine.Machine, uid uint32, gids []uint32) []*machine.Machine {
	out := make([]*machine.Machine, 0, len(candidates))
	for _, m := range candidates {
		if m.ValidateUser(uid, gids) {
			out = append(out, m)
		}
	}
	return out
}

func machineNames(ms []*machine.Machine) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name
	}
	return out
}

// placeRunning commits and runs a job immediately on choice, replying
// 202 with the chosen machine name.
func (s *Scheduler) placeRunning(req Request, choice *machine.Machine, name, jobType string, priority int64, mdl []string) error {
	id, err := s.store.NextJobID()
	if err != nil {
		return errStorage
	}
	job := &Job{
		ID: id, Name: name, Type: jobType, Priority: priority,
		Owner: req.Session.UID, GIDs: req.Session.GIDs, MDL: mdl,
		Machines: []string{choice.Name}, StartTime: s.now(), Running: true,
	}
	if err := s.store.PutJob(jobToRow(job)); err != nil {
		return errStorage
	}
	if err := choice.Run(job.ID, job, true); err != nil {
		// Lost a capacity race against a concurrent caller on this same
		// event-loop turn cannot happen (single-threaded dispatch), so this
		// only fires if Pick's own Eligible() check was stale -- treat it
		// as no machines available rather than corrupt the catalog.
		s.store.DeleteJob(job.ID)
		return errNoMachines
	}
	s.jobs[job.ID] = job
	s.logInfo("job running", sdJob(job.ID), sdMachine(choice.Name))
	sendFrame(req.Session, wire.StatusJobAllocated,
		wire.Args{"machine": wire.String(choice.Name), "id": wire.Int64(int64(job.ID))}, true)
	return nil
}

// placeBlocked commits and blocks a job on every still-eligible machine
// in valid, replying 203 (non-final: the session stays open until the
// job is promoted, cancelled, or the connection drops).
func (s *Scheduler) placeBlocked(req Request, valid []*machine.Machine, name, jobType string, priority int64, mdl []string) error {
	id, err := s.store.NextJobID()
	if err != nil {
		return errStorage
	}
	job := &Job{
		ID: id, Name: name, Type: jobType, Priority: priority,
		Owner: req.Session.UID, GIDs: req.Session.GIDs, MDL: mdl,
		Machines: machineNames(valid), StartTime: s.now(), Running: false,
		Conn: req.Session,
	}
	if err := s.store.PutJob(jobToRow(job)); err != nil {
		return errStorage
	}
	for _, m := range valid {
		if err := m.Block(job); err != nil {
			s.logError("duplicate block on fresh job", sdJob(job.ID), sdMachine(m.Name))
		}
	}
	s.jobs[job.ID] = job
	s.logInfo("job blocked", sdJob(job.ID))
	sendFrame(req.Session, wire.StatusOKBlocking, wire.Args{"id": wire.Int64(int64(job.ID))}, false)
	return nil
}

// handleRelease implements release: the job must exist and be running.
// Freeing its machine's slot may immediately promote a blocked job.
func (s *Scheduler) handleRelease(req Request) error {
	id, err := argInt64(req.Args, "id")
	if err != nil {
		return err
	}
	job, ok := s.jobs[uint64(id)]
	if !ok {
		return errNoSuchJob
	}
	if !job.Running {
		return errJobNotRunning
	}
	if err := s.store.DeleteJob(job.ID); err != nil && err != catalog.ErrNotFound {
		return errStorage
	}
	delete(s.jobs, job.ID)

	m := s.machines[job.Machines[0]]
	if m != nil {
		m.Finish(job.ID)
		s.promoteNext(m)
	}

	s.logInfo("job released", sdJob(job.ID))
	sendFrame(req.Session, wire.StatusOK, nil, true)
	return nil
}

// handleReconnect re-attaches a session to a still-blocked job whose
// original connection was lost, so a retrying client can resume
// waiting for the same job instead of submitting a duplicate.
func (s *Scheduler) handleReconnect(req Request) error {
	id, err := argInt64(req.Args, "id")
	if err != nil {
		return err
	}
	job, ok := s.jobs[uint64(id)]
	if !ok {
		return errNoSuchJob
	}
	if job.Running {
		return errJobRunning
	}
	job.Conn = req.Session
	sendFrame(req.Session, wire.StatusJobReconnected, nil, false)
	return nil
}

// handleCancel implements the disconnect-triggered cancellation rule:
// only a still-blocked job is terminal on disconnect. A running job's
// owning session has already received its final frame, so losing the
// connection afterward is a no-op here; the job stays running until an
// explicit release.
func (s *Scheduler) handleCancel(req Request) {
	job, ok := s.jobs[req.JobID]
	if !ok || job.Running {
		return
	}
	s.cancelJob(job, "client disconnected")
}

// promoteNext pops blocked jobs off m's heap, trying each in priority
// order until one is successfully promoted or the heap is empty.
func (s *Scheduler) promoteNext(m *machine.Machine) {
	for {
		bj, ok := m.PopBlocked()
		if !ok {
			m.DecrCurJobs()
			return
		}
		job := bj.(*Job)
		if s.tryPromote(job, m) {
			return
		}
		s.cancelJob(job, "could not be delivered while promoting")
	}
}

// tryPromote commits job as running on m (already popped off m's
// heap) and unblocks it from every other machine it was still blocked
// on. It returns false -- asking the caller to cancel the job and try
// the next candidate -- if there is nobody left to notify or the
// commit fails.
func (s *Scheduler) tryPromote(job *Job, m *machine.Machine) bool {
	if job.Conn == nil {
		return false
	}
	prevMachines := job.Machines
	job.Machines = []string{m.Name}
	job.StartTime = s.now()
	job.Running = true
	if err := s.store.PutJob(jobToRow(job)); err != nil {
		job.Running = false
		job.Machines = prevMachines
		s.logError("commit failed while promoting job", sdJob(job.ID))
		return false
	}
	for _, name := range prevMachines {
		if name == m.Name {
			continue
		}
		if other, ok := s.machines[name]; ok {
			other.Unblock(job.ID)
		}
	}
	m.Run(job.ID, job, false)
	sess := job.Conn
	job.Conn = nil
	s.logInfo("blocked job promoted", sdJob(job.ID), sdMachine(m.Name))
	sendFrame(sess, wire.StatusJobAllocated,
		wire.Args{"machine": wire.String(m.Name), "id": wire.Int64(int64(job.ID))}, true)
	return true
}

// cancelJob tears down a blocked (or unpromotable) job: removes its
// catalog row, forgets it, unblocks it from every machine it still
// references, and replies 412 to whatever session is still waiting.
func (s *Scheduler) cancelJob(job *Job, reason string) {
	if err := s.store.DeleteJob(job.ID); err != nil && err != catalog.ErrNotFound {
		s.logError("failed to delete cancelled job row", sdJob(job.ID))
	}
	delete(s.jobs, job.ID)
	for _, name := range job.Machines {
		if m, ok := s.machines[name]; ok {
			m.Unblock(job.ID)
		}
	}
	s.logInfo("job cancelled: "+reason, sdJob(job.ID))
	sendFrame(job.Conn, wire.StatusJobCancelled, nil, true)
	job.Conn = nil
}

func jobToRow(j *Job) catalog.JobRow {
	return catalog.JobRow{
		ID: j.ID, Name: j.Name, Type: j.Type, Priority: j.Priority,
		Owner: j.Owner, GIDs: j.GIDs, Machines: j.Machines,
		StartTime: j.StartTime, MDL: j.MDL, Running: j.Running,
	}
}
