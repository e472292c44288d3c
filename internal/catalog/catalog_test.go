/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package catalog

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qmanager.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutLoadACL(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutACL(ACLRow{Name: "open", UIDs: nil, GIDs: nil, Sense: true}); err != nil {
		t.Fatalf("PutACL: %v", err)
	}
	acls, _, _, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(acls) != 1 || acls[0].Name != "open" || !acls[0].Sense {
		t.Fatalf("unexpected acls: %+v", acls)
	}
}

func TestDeleteACLUnknown(t *testing.T) {
	s := openTestStore(t)
	if err := s.DeleteACL("nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMachineRoundTrip(t *testing.T) {
	s := openTestStore(t)
	m := MachineRow{
		Name: "m1", Domain: "d", PrimaryPool: "p1", Pools: []string{"p1", "p2"},
		Arch: "amd64", OSVersion: 1200, NumCPUs: 4, MaxJobs: 2, HasZFS: true,
		Online: true, ACL: []string{"open"},
	}
	if err := s.PutMachine(m); err != nil {
		t.Fatalf("PutMachine: %v", err)
	}
	_, machines, _, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(machines) != 1 || machines[0].Name != "m1" || len(machines[0].Pools) != 2 {
		t.Fatalf("unexpected machines: %+v", machines)
	}
	if err := s.DeleteMachine("m1"); err != nil {
		t.Fatalf("DeleteMachine: %v", err)
	}
	_, machines, _, err = s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(machines) != 0 {
		t.Fatalf("expected no machines after delete, got %+v", machines)
	}
}

func TestNextJobIDMonotonic(t *testing.T) {
	s := openTestStore(t)
	first, err := s.NextJobID()
	if err != nil {
		t.Fatalf("NextJobID: %v", err)
	}
	second, err := s.NextJobID()
	if err != nil {
		t.Fatalf("NextJobID: %v", err)
	}
	if second <= first {
		t.Fatalf("expected monotonically increasing ids, got %d then %d", first, second)
	}
}

func TestJobsTruncatedOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qmanager.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := s.NextJobID()
	if err != nil {
		t.Fatalf("NextJobID: %v", err)
	}
	if err := s.PutJob(JobRow{ID: id, Name: "j1", Running: true}); err != nil {
		t.Fatalf("PutJob: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	_, _, jobs, err := s2.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected job rows discarded on reopen, got %+v", jobs)
	}
}
