/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package machine holds per-host runtime state for a build machine: its
// running job set, its blocked-job heap, and a memoized ACL cache,
// ported from qmanagerobj.py's Machine class.
package machine

import (
	"container/heap"
	"errors"
	"sort"
	"strconv"

	"github.com/bsd-hacker/qmanager/internal/acl"
	"github.com/bsd-hacker/qmanager/internal/constraint"
)

// ErrOverCapacity is returned by Run if incrementing curjobs would
// exceed maxjobs -- curjobs <= maxjobs is a standing invariant.
var ErrOverCapacity = errors.New("machine: curjobs would exceed maxjobs")

// ErrAlreadyBlocked is returned by Block when the job id is already
// present in this machine's blocked heap (duplicate inserts are
// forbidden, per qmanagerobj.py's Machine.block assertion).
var ErrAlreadyBlocked = errors.New("machine: job already blocked on this machine")

type validationKey struct {
	uid  uint32
	gids string // sorted, comma-joined, so it is comparable/hashable
}

// Machine is the runtime state for one build host.
type Machine struct {
	Name        string
	Domain      string
	PrimaryPool string
	Pools       []string
	Arch        string
	OSVersion   int64
	NumCPUs     int64
	MaxJobs     int64
	HasZFS      bool
	Online      bool
	ACLNames    []string

	aclObj    *acl.ACL
	curJobs   int64
	running   map[uint64]interface{}
	blocked   blockedHeap
	validated map[validationKey]bool
}

// New constructs a Machine runtime record. rules is the assembled ACL
// rule list for this machine's ACLNames, in order (the machine's own
// ACL object, per Machine.setup's aclobj).
func New(name, domain, primaryPool, arch string, pools []string, osVersion, numCPUs, maxJobs int64, hasZFS, online bool, aclNames []string, rules []acl.Rule) *Machine {
	return &Machine{
		Name:        name,
		Domain:      domain,
		PrimaryPool: primaryPool,
		Pools:       pools,
		Arch:        arch,
		OSVersion:   osVersion,
		NumCPUs:     numCPUs,
		MaxJobs:     maxJobs,
		HasZFS:      hasZFS,
		Online:      online,
		ACLNames:    aclNames,
		aclObj:      acl.New(rules),
		running:     make(map[uint64]interface{}),
		validated:   make(map[validationKey]bool),
	}
}

// SetACL replaces the machine's ACL rule list and clears the memoized
// validation cache, matching Machine.setup + clear_validated being
// called together whenever the acl field changes.
func (m *Machine) SetACL(aclNames []string, rules []acl.Rule) {
	m.ACLNames = aclNames
	m.aclObj = acl.New(rules)
	m.ClearValidated()
}

// ClearValidated empties the memoized ACL validation cache.
func (m *Machine) ClearValidated() {
	m.validated = make(map[validationKey]bool)
}

// ValidateUser evaluates (and memoizes) whether uid/gids are authorized
// against this machine's ACL.
func (m *Machine) ValidateUser(uid uint32, gids []uint32) bool {
	key := validationKey{uid: uid, gids: sortedGIDKey(gids)}
	if res, ok := m.validated[key]; ok {
		return res
	}
	res := m.aclObj.Evaluate(uid, gids)
	m.validated[key] = res
	return res
}

func sortedGIDKey(gids []uint32) string {
	cp := append([]uint32(nil), gids...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	s := ""
	for i, g := range cp {
		if i > 0 {
			s += ","
		}
		s += strconv.FormatUint(uint64(g), 10)
	}
	return s
}

// CurJobs returns the current running job count.
func (m *Machine) CurJobs() int64 { return m.curJobs }

// Load reports curjobs/maxjobs; machines with maxjobs == 0 are always
// treated as fully loaded.
func (m *Machine) Load() float64 {
	if m.MaxJobs <= 0 {
		return 1
	}
	return float64(m.curJobs) / float64(m.MaxJobs)
}

// Eligible reports whether the machine is online and has a free slot.
func (m *Machine) Eligible() bool {
	return m.Online && m.curJobs < m.MaxJobs
}

// ToRow projects the machine's catalog-schema fields for constraint
// evaluation.
func (m *Machine) ToRow() constraint.Row {
	return constraint.Row{
		Name: m.Name, Domain: m.Domain, PrimaryPool: m.PrimaryPool,
		Pools: m.Pools, Arch: m.Arch, OSVersion: m.OSVersion,
		NumCPUs: m.NumCPUs, MaxJobs: m.MaxJobs, HasZFS: m.HasZFS,
		Online: m.Online, CurJobs: m.curJobs,
	}
}

// Pick chooses the least-loaded eligible machine from candidates: among
// online machines with curjobs < maxjobs, the one minimizing
// curjobs/maxjobs. Ties are broken by iteration (caller-side) order, so
// callers should shuffle candidates before calling Pick to avoid
// hot-spotting the first machine in the list, mirroring
// suitable_machines()'s shuffle(mlist).
func Pick(candidates []*Machine) *Machine {
	var choice *Machine
	min := 2.0 // > any valid load, so the first eligible candidate always wins the first comparison
	for _, m := range candidates {
		if !m.Eligible() {
			continue
		}
		load := m.Load()
		if load < min {
			min = load
			choice = m
		}
	}
	return choice
}

// Run transitions job into this machine's running set. incr mirrors
// run(job, incr): callers promoting a previously-blocked job (which was
// never decremented) pass false.
func (m *Machine) Run(jobID uint64, job interface{}, incr bool) error {
	if incr && m.curJobs >= m.MaxJobs {
		return ErrOverCapacity
	}
	m.running[jobID] = job
	if incr {
		m.curJobs++
	}
	return nil
}

// Running returns the opaque job value previously stored by Run, if any.
func (m *Machine) Running(jobID uint64) (interface{}, bool) {
	j, ok := m.running[jobID]
	return j, ok
}

// RunningIDs returns every job id currently running on this machine.
func (m *Machine) RunningIDs() []uint64 {
	ids := make([]uint64, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Block pushes job onto this machine's blocked heap, keyed by
// (priority, starttime, id). Duplicate inserts are forbidden.
func (m *Machine) Block(job BlockedJob) error {
	id := job.JobID()
	for _, e := range m.blocked {
		if e.id == id {
			return ErrAlreadyBlocked
		}
	}
	heap.Push(&m.blocked, heapEntry{priority: job.JobPriority(), starttime: job.JobStartTime(), id: id, job: job})
	return nil
}

// Unblock removes jobID from the blocked heap, restoring the heap
// invariant. Absent entries are tolerated (revalidation may attempt to
// unblock a job from a machine it is not actually blocked on).
func (m *Machine) Unblock(jobID uint64) {
	for i, e := range m.blocked {
		if e.id == jobID {
			heap.Remove(&m.blocked, i)
			return
		}
	}
}

// BlockedLen reports how many jobs are currently blocked on this
// machine.
func (m *Machine) BlockedLen() int { return len(m.blocked) }

// PopBlocked pops the minimum (priority, starttime, id) entry off the
// blocked heap, for the caller to attempt promotion.
func (m *Machine) PopBlocked() (BlockedJob, bool) {
	if len(m.blocked) == 0 {
		return nil, false
	}
	e := heap.Pop(&m.blocked).(heapEntry)
	return e.job, true
}

// Finish removes jobID from the running set. Callers are responsible
// for the promotion loop over PopBlocked (mirroring Machine.finish's
// "pop, try to promote, retry on failure" loop) and for calling
// DecrCurJobs when the blocked heap is empty.
func (m *Machine) Finish(jobID uint64) {
	delete(m.running, jobID)
}

// DecrCurJobs decrements the running job counter; called when Finish
// finds no blocked job to promote into the freed slot.
func (m *Machine) DecrCurJobs() {
	if m.curJobs > 0 {
		m.curJobs--
	}
}
