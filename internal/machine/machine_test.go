/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package machine

import (
	"testing"

	"github.com/bsd-hacker/qmanager/internal/acl"
)

type testJob struct {
	id        uint64
	priority  int64
	starttime int64
}

func (j testJob) JobID() uint64        { return j.id }
func (j testJob) JobPriority() int64   { return j.priority }
func (j testJob) JobStartTime() int64  { return j.starttime }

func newOpenMachine(name string, maxJobs int64) *Machine {
	return New(name, "d", "p1", "amd64", []string{"p1"}, 1200, 4, maxJobs, true, true, []string{"open"}, nil)
}

func TestPickPrefersLeastLoaded(t *testing.T) {
	m1 := newOpenMachine("m1", 4)
	m1.Run(1, nil, true)
	m1.Run(2, nil, true) // load 0.5

	m2 := newOpenMachine("m2", 2)
	m2.Run(3, nil, true) // load 0.5

	m3 := newOpenMachine("m3", 10) // load 0

	choice := Pick([]*Machine{m1, m2, m3})
	if choice != m3 {
		t.Fatalf("expected m3 (lowest load), got %v", choice)
	}
}

func TestPickSkipsOfflineAndFull(t *testing.T) {
	offline := newOpenMachine("off", 4)
	offline.Online = false

	full := newOpenMachine("full", 1)
	full.Run(1, nil, true)

	choice := Pick([]*Machine{offline, full})
	if choice != nil {
		t.Fatalf("expected no eligible machine, got %v", choice)
	}
}

func TestBlockOrderingByPriorityThenStarttimeThenID(t *testing.T) {
	m := newOpenMachine("m1", 1)
	jobs := []testJob{
		{id: 3, priority: 5, starttime: 100},
		{id: 1, priority: 20, starttime: 50},
		{id: 2, priority: 5, starttime: 50},
		{id: 4, priority: 5, starttime: 50},
	}
	for _, j := range jobs {
		if err := m.Block(j); err != nil {
			t.Fatalf("Block: %v", err)
		}
	}

	var order []uint64
	for m.BlockedLen() > 0 {
		j, ok := m.PopBlocked()
		if !ok {
			t.Fatal("expected a blocked job")
		}
		order = append(order, j.JobID())
	}
	want := []uint64{2, 4, 3, 1} // priority 5 before 20; within priority 5, starttime 50 before 100; id 2 before 4
	if len(order) != len(want) {
		t.Fatalf("unexpected order length: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected pop order: got %v, want %v", order, want)
		}
	}
}

func TestBlockRejectsDuplicate(t *testing.T) {
	m := newOpenMachine("m1", 1)
	j := testJob{id: 1, priority: 5, starttime: 1}
	if err := m.Block(j); err != nil {
		t.Fatalf("Block: %v", err)
	}
	if err := m.Block(j); err != ErrAlreadyBlocked {
		t.Fatalf("expected ErrAlreadyBlocked, got %v", err)
	}
}

func TestUnblockTolerant(t *testing.T) {
	m := newOpenMachine("m1", 1)
	m.Unblock(999) // should not panic or error
}

func TestValidateUserMemoizesAndClears(t *testing.T) {
	rules := []acl.Rule{{Name: "deny1001", UIDs: []uint32{1001}, Allow: false}, {Name: "catchall", Allow: true}}
	m := New("m1", "d", "p1", "amd64", []string{"p1"}, 1200, 4, 2, true, true, []string{"r1", "r2"}, rules)

	if m.ValidateUser(1001, nil) {
		t.Fatal("expected deny for uid 1001")
	}
	if !m.ValidateUser(1002, nil) {
		t.Fatal("expected allow for uid 1002")
	}

	m.ClearValidated()
	m.SetACL([]string{"allow-all"}, []acl.Rule{{Name: "allow-all", Allow: true}})
	if !m.ValidateUser(1001, nil) {
		t.Fatal("expected allow for uid 1001 after ACL changed to allow-all")
	}
}

func TestRunOverCapacity(t *testing.T) {
	m := newOpenMachine("m1", 1)
	if err := m.Run(1, nil, true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := m.Run(2, nil, true); err != ErrOverCapacity {
		t.Fatalf("expected ErrOverCapacity, got %v", err)
	}
}

func TestFinishThenDecrWhenNoBlocked(t *testing.T) {
	m := newOpenMachine("m1", 1)
	m.Run(1, nil, true)
	m.Finish(1)
	if m.BlockedLen() != 0 {
		t.Fatal("expected no blocked jobs")
	}
	m.DecrCurJobs()
	if m.CurJobs() != 0 {
		t.Fatalf("expected curjobs 0, got %d", m.CurJobs())
	}
}
