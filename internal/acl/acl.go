/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package acl evaluates an ordered list of allow/deny rules against a
// (uid, gid-set) principal, ported from acl.py's ACLElement/ACL.
package acl

// Rule is a single named allow/deny clause. Empty UIDs/GIDs act as
// wildcards for that half of the match.
type Rule struct {
	Name  string
	UIDs  []uint32
	GIDs  []uint32
	Allow bool // sense: true allows, false denies, on a match
}

// match reports whether the rule's uid/gid predicate matches, and if it
// does, returns its sense. The second return value mirrors acl.py's
// validate() returning None (no match) vs. True/False (match, sense).
func (r Rule) match(uid uint32, gids []uint32) (sense bool, matched bool) {
	uidMatch := len(r.UIDs) == 0 || containsU32(r.UIDs, uid)
	if !uidMatch {
		return false, false
	}
	gidMatch := len(r.GIDs) == 0 || intersects(gids, r.GIDs)
	if !gidMatch {
		return false, false
	}
	return r.Allow, true
}

func containsU32(list []uint32, v uint32) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func intersects(a, b []uint32) bool {
	for _, x := range a {
		if containsU32(b, x) {
			return true
		}
	}
	return false
}

// ACL is an ordered list of Rules, evaluated first-match.
type ACL struct {
	Rules []Rule
}

// New builds an ACL from an ordered rule list.
func New(rules []Rule) *ACL {
	return &ACL{Rules: rules}
}

// Evaluate walks the rule list in order and returns the sense of the first
// matching rule, or false (deny) if nothing matches.
func (a *ACL) Evaluate(uid uint32, gids []uint32) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Rules {
		if sense, matched := r.match(uid, gids); matched {
			return sense
		}
	}
	return false
}
