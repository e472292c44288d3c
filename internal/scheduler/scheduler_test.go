/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bsd-hacker/qmanager/internal/catalog"
	"github.com/bsd-hacker/qmanager/internal/wire"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qmanager.db")
	store, err := catalog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	s, err := New(store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stop := make(chan struct{})
	go s.Run(stop)
	t.Cleanup(func() { close(stop) })
	return s
}

func recvFrame(t *testing.T, sess *Session) Frame {
	t.Helper()
	select {
	case f, ok := <-sess.Out:
		if !ok {
			t.Fatalf("session closed with no frame")
		}
		return f
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a frame")
		return Frame{}
	}
}

// addMachine adds an "open" ACL rule (empty uid and gid lists, allow) and
// then a machine referencing it; an empty ACL list would deny everyone.
func addMachine(t *testing.T, s *Scheduler, name string, maxJobs int64) {
	t.Helper()
	aclSess := NewSession(1, 0, nil)
	s.Submit(Request{Session: aclSess, Cmd: wire.CmdAddACL, Args: wire.Args{
		"name": wire.String("open"), "uidlist": wire.List(nil),
		"gidlist": wire.List(nil), "sense": wire.Bool(true),
	}})
	if f := recvFrame(t, aclSess); f.Status != wire.StatusOK {
		t.Fatalf("add acl: status %d: %v", f.Status, f.Args)
	}

	sess := NewSession(1, 0, nil)
	s.Submit(Request{Session: sess, Cmd: wire.CmdAdd, Args: wire.Args{
		"name": wire.String(name), "domain": wire.String("example.org"),
		"primarypool": wire.String("main"), "pools": wire.List([]wire.Value{wire.String("main")}),
		"arch": wire.String("amd64"), "osversion": wire.Int64(1300),
		"numcpus": wire.Int64(4), "maxjobs": wire.Int64(maxJobs),
		"haszfs": wire.Bool(true), "acl": wire.List([]wire.Value{wire.String("open")}), "online": wire.Bool(true),
	}})
	f := recvFrame(t, sess)
	if f.Status != wire.StatusOK {
		t.Fatalf("add machine: status %d: %v", f.Status, f.Args)
	}
}

func TestTryPlacesImmediately(t *testing.T) {
	s := newTestScheduler(t)
	addMachine(t, s, "builder0", 1)

	sess := NewSession(2, 500, nil)
	s.Submit(Request{Session: sess, Cmd: wire.CmdTry, Args: wire.Args{
		"name": wire.String("job1"), "type": wire.String("build"),
		"priority": wire.Int64(0), "mdl": wire.List(nil),
	}})
	f := recvFrame(t, sess)
	if f.Status != wire.StatusJobAllocated {
		t.Fatalf("expected StatusJobAllocated, got %d: %v", f.Status, f.Args)
	}
	if name, _ := f.Args["machine"].AsString(); name != "builder0" {
		t.Fatalf("expected builder0, got %q", name)
	}
}

func TestTryWouldBlockWhenFull(t *testing.T) {
	s := newTestScheduler(t)
	addMachine(t, s, "builder0", 1)

	fill := NewSession(2, 0, nil)
	s.Submit(Request{Session: fill, Cmd: wire.CmdTry, Args: wire.Args{
		"name": wire.String("job1"), "type": wire.String("build"),
		"priority": wire.Int64(0), "mdl": wire.List(nil),
	}})
	recvFrame(t, fill)

	blocked := NewSession(3, 0, nil)
	s.Submit(Request{Session: blocked, Cmd: wire.CmdTry, Args: wire.Args{
		"name": wire.String("job2"), "type": wire.String("build"),
		"priority": wire.Int64(0), "mdl": wire.List(nil),
	}})
	f := recvFrame(t, blocked)
	if f.Status != wire.StatusWouldBlock {
		t.Fatalf("expected StatusWouldBlock, got %d: %v", f.Status, f.Args)
	}
}

func TestAcquireBlocksThenPromotesOnRelease(t *testing.T) {
	s := newTestScheduler(t)
	addMachine(t, s, "builder0", 1)

	running := NewSession(2, 0, nil)
	s.Submit(Request{Session: running, Cmd: wire.CmdTry, Args: wire.Args{
		"name": wire.String("job1"), "type": wire.String("build"),
		"priority": wire.Int64(0), "mdl": wire.List(nil),
	}})
	first := recvFrame(t, running)
	runningID, _ := first.Args["id"].AsInt64()

	waiter := NewSession(3, 0, nil)
	s.Submit(Request{Session: waiter, Cmd: wire.CmdAcquire, Args: wire.Args{
		"name": wire.String("job2"), "type": wire.String("build"),
		"priority": wire.Int64(0), "mdl": wire.List(nil),
	}})
	block := recvFrame(t, waiter)
	if block.Status != wire.StatusOKBlocking {
		t.Fatalf("expected StatusOKBlocking, got %d: %v", block.Status, block.Args)
	}

	s.Submit(Request{Cmd: wire.CmdRelease, Args: wire.Args{"id": wire.Int64(runningID)}})

	promoted := recvFrame(t, waiter)
	if promoted.Status != wire.StatusJobAllocated {
		t.Fatalf("expected StatusJobAllocated after release, got %d: %v", promoted.Status, promoted.Args)
	}
}

func TestCancelOnDisconnectUnblocksJob(t *testing.T) {
	s := newTestScheduler(t)
	addMachine(t, s, "builder0", 1)

	running := NewSession(2, 0, nil)
	s.Submit(Request{Session: running, Cmd: wire.CmdTry, Args: wire.Args{
		"name": wire.String("job1"), "type": wire.String("build"),
		"priority": wire.Int64(0), "mdl": wire.List(nil),
	}})
	recvFrame(t, running)

	waiter := NewSession(3, 0, nil)
	s.Submit(Request{Session: waiter, Cmd: wire.CmdAcquire, Args: wire.Args{
		"name": wire.String("job2"), "type": wire.String("build"),
		"priority": wire.Int64(0), "mdl": wire.List(nil),
	}})
	block := recvFrame(t, waiter)
	waitID, _ := block.Args["id"].AsInt64()

	s.Cancel(uint64(waitID))
	cancelled := recvFrame(t, waiter)
	if cancelled.Status != wire.StatusJobCancelled {
		t.Fatalf("expected StatusJobCancelled, got %d: %v", cancelled.Status, cancelled.Args)
	}
}

func TestAddMachineDuplicateNameRejected(t *testing.T) {
	s := newTestScheduler(t)
	addMachine(t, s, "builder0", 1)

	sess := NewSession(2, 0, nil)
	s.Submit(Request{Session: sess, Cmd: wire.CmdAdd, Args: wire.Args{
		"name": wire.String("builder0"), "domain": wire.String("example.org"),
		"primarypool": wire.String("main"), "pools": wire.List([]wire.Value{wire.String("main")}),
		"arch": wire.String("amd64"), "osversion": wire.Int64(1300),
		"numcpus": wire.Int64(4), "maxjobs": wire.Int64(1),
		"haszfs": wire.Bool(true), "acl": wire.List(nil), "online": wire.Bool(true),
	}})
	f := recvFrame(t, sess)
	if f.Status != wire.StatusObjectExists {
		t.Fatalf("expected StatusObjectExists, got %d: %v", f.Status, f.Args)
	}
	if name, _ := f.Args["name"].AsString(); name != "builder0" {
		t.Fatalf("expected required name arg, got %q", name)
	}
}

func TestDeleteMachineRejectedWhileBusy(t *testing.T) {
	s := newTestScheduler(t)
	addMachine(t, s, "builder0", 1)

	running := NewSession(2, 0, nil)
	s.Submit(Request{Session: running, Cmd: wire.CmdTry, Args: wire.Args{
		"name": wire.String("job1"), "type": wire.String("build"),
		"priority": wire.Int64(0), "mdl": wire.List(nil),
	}})
	recvFrame(t, running)

	sess := NewSession(3, 0, nil)
	s.Submit(Request{Session: sess, Cmd: wire.CmdDelete, Args: wire.Args{"name": wire.String("builder0")}})
	f := recvFrame(t, sess)
	if f.Status != wire.StatusObjectExists {
		t.Fatalf("expected StatusObjectExists, got %d: %v", f.Status, f.Args)
	}
	if name, _ := f.Args["name"].AsString(); name != "builder0" {
		t.Fatalf("expected required name arg, got %q", name)
	}
}

func TestUpdateMaxJobsRevalidatesBlocked(t *testing.T) {
	s := newTestScheduler(t)
	// maxjobs=0 admits the job to the blocked heap (it matches the empty
	// mdl and passes ACL validation) but Machine.Eligible is never true,
	// so Pick can never choose it until the update below.
	addMachine(t, s, "builder0", 0)

	blocked := NewSession(2, 0, nil)
	s.Submit(Request{Session: blocked, Cmd: wire.CmdAcquire, Args: wire.Args{
		"name": wire.String("job1"), "type": wire.String("build"),
		"priority": wire.Int64(0), "mdl": wire.List(nil),
	}})
	f := recvFrame(t, blocked)
	if f.Status != wire.StatusOKBlocking {
		t.Fatalf("expected StatusOKBlocking while builder0 has no capacity, got %d: %v", f.Status, f.Args)
	}

	upd := NewSession(3, 0, nil)
	s.Submit(Request{Session: upd, Cmd: wire.CmdUpdate, Args: wire.Args{
		"name":    wire.String("builder0"),
		"maxjobs": wire.Int64(1),
	}})
	updReply := recvFrame(t, upd)
	if updReply.Status != wire.StatusOK {
		t.Fatalf("update machine: status %d: %v", updReply.Status, updReply.Args)
	}

	promoted := recvFrame(t, blocked)
	if promoted.Status != wire.StatusJobAllocated {
		t.Fatalf("expected revalidation to promote the blocked job, got %d: %v", promoted.Status, promoted.Args)
	}
}
