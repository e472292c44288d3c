/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

import (
	"time"

	"github.com/crewjam/rfc5424"

	"github.com/bsd-hacker/qmanager/internal/acl"
	"github.com/bsd-hacker/qmanager/internal/catalog"
	qlog "github.com/bsd-hacker/qmanager/internal/log"
	"github.com/bsd-hacker/qmanager/internal/machine"
)

// Scheduler owns every piece of mutable scheduling state: the
// machine table, the ACL table, the in-flight job table, and the
// catalog handle used to persist mutations. Every method here is meant
// to be called only from the single goroutine running Run.
type Scheduler struct {
	store     *catalog.Store
	logger    *qlog.KVLogger
	in        chan Request
	machines  map[string]*machine.Machine
	aclRules  map[string]catalog.ACLRow
	jobs      map[uint64]*Job
	now       func() int64
}

// New constructs a Scheduler backed by store, rebuilding runtime state
// from the catalog's ACL and machine rows (job rows are never restored;
// catalog.Open already discarded them).
func New(store *catalog.Store, logger *qlog.KVLogger) (*Scheduler, error) {
	aclRows, machineRows, _, err := store.LoadAll()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		store:    store,
		logger:   logger,
		in:       make(chan Request, 64),
		machines: make(map[string]*machine.Machine),
		aclRules: make(map[string]catalog.ACLRow),
		jobs:     make(map[uint64]*Job),
		now:      func() int64 { return time.Now().Unix() },
	}

	for _, row := range aclRows {
		s.aclRules[row.Name] = row
	}
	for _, row := range machineRows {
		s.machines[row.Name] = machine.New(row.Name, row.Domain, row.PrimaryPool,
			row.Arch, row.Pools, row.OSVersion, row.NumCPUs, row.MaxJobs,
			row.HasZFS, row.Online, row.ACL, s.rulesFor(row.ACL))
	}
	return s, nil
}

// Submit enqueues req for processing on the scheduler's event loop. It
// is the only way anything outside this package mutates scheduler
// state, and it is safe to call concurrently -- it is a plain channel
// send, matching the admission server's "many producers" role against
// the worker's single input queue.
func (s *Scheduler) Submit(req Request) { s.in <- req }

// Cancel enqueues the disconnect-triggered cancellation of jobID. It is
// the admission server's only way to reach the non-wire "_cancel_"
// pseudo-command, so cancelCmd never needs to be exported.
func (s *Scheduler) Cancel(jobID uint64) {
	s.in <- Request{Cmd: cancelCmd, JobID: jobID}
}

// Run is the scheduler's event loop: it never suspends anywhere but on
// the input channel, so every request is handled atomically with
// respect to every other.
func (s *Scheduler) Run(stop <-chan struct{}) {
	for {
		select {
		case req := <-s.in:
			s.dispatch(req)
		case <-stop:
			return
		}
	}
}

func (s *Scheduler) rulesFor(names []string) []acl.Rule {
	rules := make([]acl.Rule, 0, len(names))
	for _, n := range names {
		if row, ok := s.aclRules[n]; ok {
			rules = append(rules, acl.Rule{Name: row.Name, UIDs: row.UIDs, GIDs: row.GIDs, Allow: row.Sense})
		}
	}
	return rules
}

func (s *Scheduler) logInfo(msg string, sds ...rfc5424.SDParam) {
	if s.logger != nil {
		s.logger.Info(msg, sds...)
	}
}

func (s *Scheduler) logError(msg string, sds ...rfc5424.SDParam) {
	if s.logger != nil {
		s.logger.Error(msg, sds...)
	}
}

func sdJob(id uint64) rfc5424.SDParam {
	return rfc5424.SDParam{Name: "job", Value: formatUint(id)}
}

func sdMachine(name string) rfc5424.SDParam {
	return rfc5424.SDParam{Name: "machine", Value: name}
}

func rfcParam(name, value string) rfc5424.SDParam {
	return rfc5424.SDParam{Name: name, Value: value}
}
