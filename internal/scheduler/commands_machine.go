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
	"github.com/bsd-hacker/qmanager/internal/machine"
	"github.com/bsd-hacker/qmanager/internal/wire"
)

// eligibilityFields names the machine columns whose change can turn a
// blocked job eligible, and so must trigger revalidateBlocked.
var eligibilityFields = map[string]bool{
	"acl": true, "online": true, "maxjobs": true, "pools": true, "arch": true,
	"osversion": true, "haszfs": true, "numcpus": true, "domain": true, "primarypool": true,
}

// handleAddMachine implements add: every field is required, and the
// name must be unused.
func (s *Scheduler) handleAddMachine(req Request) error {
	name, err := argString(req.Args, "name")
	if err != nil {
		return err
	}
	if _, exists := s.machines[name]; exists {
		return errStatusArgs(wire.StatusObjectExists, "machine already exists", wire.Args{"name": wire.String(name)})
	}

	domain, err := argString(req.Args, "domain")
	if err != nil {
		return err
	}
	primaryPool, err := argString(req.Args, "primarypool")
	if err != nil {
		return err
	}
	pools, err := argNormalizedStrings(req.Args, "pools")
	if err != nil {
		return err
	}
	arch, err := argString(req.Args, "arch")
	if err != nil {
		return err
	}
	osVersion, err := argInt64(req.Args, "osversion")
	if err != nil {
		return err
	}
	numCPUs, err := argInt64(req.Args, "numcpus")
	if err != nil {
		return err
	}
	maxJobs, err := argInt64(req.Args, "maxjobs")
	if err != nil {
		return err
	}
	hasZFS, err := argBool(req.Args, "haszfs")
	if err != nil {
		return err
	}
	online, err := argBool(req.Args, "online")
	if err != nil {
		return err
	}
	aclNames, err := argStrings(req.Args, "acl")
	if err != nil {
		return err
	}
	if err := s.checkACLNamesExist(aclNames); err != nil {
		return err
	}

	row := catalog.MachineRow{
		Name: name, Domain: domain, PrimaryPool: primaryPool, Pools: pools,
		Arch: arch, OSVersion: osVersion, NumCPUs: numCPUs, MaxJobs: maxJobs,
		HasZFS: hasZFS, Online: online, ACL: aclNames,
	}
	if err := s.store.PutMachine(row); err != nil {
		return errStorage
	}
	s.machines[name] = machine.New(name, domain, primaryPool, arch, pools,
		osVersion, numCPUs, maxJobs, hasZFS, online, aclNames, s.rulesFor(aclNames))

	s.logInfo("machine added", sdMachine(name))
	s.revalidateBlocked()
	sendFrame(req.Session, wire.StatusOK, nil, true)
	return nil
}

// pendingMachineUpdate holds the settable fields of a Machine while an
// update request is being decoded, so a bad field deep in the argument
// list can be rejected without having mutated the live Machine or the
// catalog.
type pendingMachineUpdate struct {
	domain      string
	primaryPool string
	pools       []string
	arch        string
	osVersion   int64
	numCPUs     int64
	maxJobs     int64
	hasZFS      bool
	online      bool
	aclNames    []string

	touched map[string]bool
}

// handleUpdateMachine implements update: only name is required; any
// other field present replaces the current value. Every present field
// is decoded onto a local copy first; the live Machine and the catalog
// are only touched once every field has decoded cleanly, so an
// argument error partway through the request leaves the machine
// exactly as it was.
func (s *Scheduler) handleUpdateMachine(req Request) error {
	name, err := argString(req.Args, "name")
	if err != nil {
		return err
	}
	m, ok := s.machines[name]
	if !ok {
		return errNoSuchMachine
	}

	pending := pendingMachineUpdate{
		domain:      m.Domain,
		primaryPool: m.PrimaryPool,
		pools:       m.Pools,
		arch:        m.Arch,
		osVersion:   m.OSVersion,
		numCPUs:     m.NumCPUs,
		maxJobs:     m.MaxJobs,
		hasZFS:      m.HasZFS,
		online:      m.Online,
		aclNames:    m.ACLNames,
		touched:     make(map[string]bool),
	}

	if v, ok := req.Args["domain"]; ok {
		if pending.domain, err = v.AsString(); err != nil {
			return errArgumentError
		}
		pending.touched["domain"] = true
	}
	if v, ok := req.Args["primarypool"]; ok {
		if pending.primaryPool, err = v.AsString(); err != nil {
			return errArgumentError
		}
		pending.touched["primarypool"] = true
	}
	if _, ok := req.Args["pools"]; ok {
		if pending.pools, err = argNormalizedStrings(req.Args, "pools"); err != nil {
			return err
		}
		pending.touched["pools"] = true
	}
	if v, ok := req.Args["arch"]; ok {
		if pending.arch, err = v.AsString(); err != nil {
			return errArgumentError
		}
		pending.touched["arch"] = true
	}
	if v, ok := req.Args["osversion"]; ok {
		if pending.osVersion, err = v.AsInt64(); err != nil {
			return errArgumentError
		}
		pending.touched["osversion"] = true
	}
	if v, ok := req.Args["numcpus"]; ok {
		if pending.numCPUs, err = v.AsInt64(); err != nil {
			return errArgumentError
		}
		pending.touched["numcpus"] = true
	}
	if v, ok := req.Args["maxjobs"]; ok {
		if pending.maxJobs, err = v.AsInt64(); err != nil {
			return errArgumentError
		}
		pending.touched["maxjobs"] = true
	}
	if v, ok := req.Args["haszfs"]; ok {
		if pending.hasZFS, err = v.AsBool(); err != nil {
			return errArgumentError
		}
		pending.touched["haszfs"] = true
	}
	if v, ok := req.Args["online"]; ok {
		if pending.online, err = v.AsBool(); err != nil {
			return errArgumentError
		}
		pending.touched["online"] = true
	}
	if _, ok := req.Args["acl"]; ok {
		aclNames, err := argStrings(req.Args, "acl")
		if err != nil {
			return err
		}
		if err := s.checkACLNamesExist(aclNames); err != nil {
			return err
		}
		pending.aclNames = aclNames
		pending.touched["acl"] = true
	}

	// every field decoded cleanly -- persist first, then commit to the
	// live Machine, mirroring handleUpdateACL's store-then-apply order.
	row := catalog.MachineRow{
		Name: name, Domain: pending.domain, PrimaryPool: pending.primaryPool, Pools: pending.pools,
		Arch: pending.arch, OSVersion: pending.osVersion, NumCPUs: pending.numCPUs, MaxJobs: pending.maxJobs,
		HasZFS: pending.hasZFS, Online: pending.online, ACL: pending.aclNames,
	}
	if err := s.store.PutMachine(row); err != nil {
		return errStorage
	}

	m.Domain = pending.domain
	m.PrimaryPool = pending.primaryPool
	m.Pools = pending.pools
	m.Arch = pending.arch
	m.OSVersion = pending.osVersion
	m.NumCPUs = pending.numCPUs
	m.MaxJobs = pending.maxJobs
	m.HasZFS = pending.hasZFS
	m.Online = pending.online
	if pending.touched["acl"] {
		m.SetACL(pending.aclNames, s.rulesFor(pending.aclNames))
	}

	changed := false
	for field := range pending.touched {
		changed = changed || eligibilityFields[field]
	}

	s.logInfo("machine updated", sdMachine(name))
	if changed {
		s.revalidateBlocked()
	}
	sendFrame(req.Session, wire.StatusOK, nil, true)
	return nil
}

// handleDeleteMachine implements delete: rejected while the machine has
// any running or blocked job.
func (s *Scheduler) handleDeleteMachine(req Request) error {
	name, err := argString(req.Args, "name")
	if err != nil {
		return err
	}
	m, ok := s.machines[name]
	if !ok {
		return errNoSuchMachine
	}
	if len(m.RunningIDs()) > 0 || m.BlockedLen() > 0 {
		return errStatusArgs(wire.StatusObjectExists, "machine has running or blocked jobs", wire.Args{"name": wire.String(name)})
	}
	if err := s.store.DeleteMachine(name); err != nil {
		return errStorage
	}
	delete(s.machines, name)
	s.logInfo("machine deleted", sdMachine(name))
	sendFrame(req.Session, wire.StatusOK, nil, true)
	return nil
}

func (s *Scheduler) checkACLNamesExist(names []string) error {
	for _, n := range names {
		if _, ok := s.aclRules[n]; !ok {
			return errNoSuchACL
		}
	}
	return nil
}
