/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

// Job mirrors qmanagerobj.py's Job model. Priority and StartTime must
// never change while Running is false -- they key every machine's
// blocked heap.
type Job struct {
	ID        uint64
	Name      string
	Type      string
	Priority  int64
	Owner     uint32
	GIDs      []uint32
	MDL       []string // retained verbatim for revalidation
	Machines  []string // machine names job is running on (len 1) or blocked on
	StartTime int64
	Running   bool

	// Conn is the session currently awaiting the job's final reply, if
	// any (nil after a terminal reply has been sent).
	Conn *Session
}

// JobID implements machine.BlockedJob.
func (j *Job) JobID() uint64 { return j.ID }

// JobPriority implements machine.BlockedJob.
func (j *Job) JobPriority() int64 { return j.Priority }

// JobStartTime implements machine.BlockedJob.
func (j *Job) JobStartTime() int64 { return j.StartTime }
