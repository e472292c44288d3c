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
	"github.com/bsd-hacker/qmanager/internal/wire"
)

// handleAddACL implements add_acl: name, uidlist, gidlist, sense are all
// required, and the name must be unused. A fresh rule cannot yet be
// referenced by any machine, so no revalidation is needed.
func (s *Scheduler) handleAddACL(req Request) error {
	name, err := argString(req.Args, "name")
	if err != nil {
		return err
	}
	if _, exists := s.aclRules[name]; exists {
		return errStatusArgs(wire.StatusObjectExists, "acl already exists", wire.Args{"name": wire.String(name)})
	}
	uids, err := argUint32s(req.Args, "uidlist")
	if err != nil {
		return err
	}
	gids, err := argUint32s(req.Args, "gidlist")
	if err != nil {
		return err
	}
	sense, err := argBool(req.Args, "sense")
	if err != nil {
		return err
	}

	row := catalog.ACLRow{Name: name, UIDs: uids, GIDs: gids, Sense: sense}
	if err := s.store.PutACL(row); err != nil {
		return errStorage
	}
	s.aclRules[name] = row

	s.logInfo("acl added", rfcParam("acl", name))
	sendFrame(req.Session, wire.StatusOK, nil, true)
	return nil
}

// handleUpdateACL implements update_acl: name is required, the rest
// optional. Every machine referencing this rule gets its assembled ACL
// rebuilt and its validation cache cleared, then blocked jobs are
// revalidated since this may widen or narrow who may use those machines.
func (s *Scheduler) handleUpdateACL(req Request) error {
	name, err := argString(req.Args, "name")
	if err != nil {
		return err
	}
	row, ok := s.aclRules[name]
	if !ok {
		return errNoSuchACL
	}

	if v, ok := req.Args["uidlist"]; ok {
		uids, err := valueToUint32Slice(v)
		if err != nil {
			return errArgumentError
		}
		row.UIDs = uids
	}
	if v, ok := req.Args["gidlist"]; ok {
		gids, err := valueToUint32Slice(v)
		if err != nil {
			return errArgumentError
		}
		row.GIDs = gids
	}
	if v, ok := req.Args["sense"]; ok {
		sense, err := v.AsBool()
		if err != nil {
			return errArgumentError
		}
		row.Sense = sense
	}

	if err := s.store.PutACL(row); err != nil {
		return errStorage
	}
	s.aclRules[name] = row

	for _, m := range s.machines {
		if referencesACL(m.ACLNames, name) {
			m.SetACL(m.ACLNames, s.rulesFor(m.ACLNames))
		}
	}

	s.logInfo("acl updated", rfcParam("acl", name))
	s.revalidateBlocked()
	sendFrame(req.Session, wire.StatusOK, nil, true)
	return nil
}

// handleDelACL implements del_acl: rejected if any machine still lists
// this rule (mirrors the delete-machine-while-busy rejection).
func (s *Scheduler) handleDelACL(req Request) error {
	name, err := argString(req.Args, "name")
	if err != nil {
		return err
	}
	if _, ok := s.aclRules[name]; !ok {
		return errNoSuchACL
	}
	for _, m := range s.machines {
		if referencesACL(m.ACLNames, name) {
			return errStatusArgs(wire.StatusObjectExists, "acl is referenced by a machine", wire.Args{"name": wire.String(name)})
		}
	}
	if err := s.store.DeleteACL(name); err != nil {
		return errStorage
	}
	delete(s.aclRules, name)

	s.logInfo("acl deleted", rfcParam("acl", name))
	sendFrame(req.Session, wire.StatusOK, nil, true)
	return nil
}

func referencesACL(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}
