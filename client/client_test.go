/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package client

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"

	"github.com/bsd-hacker/qmanager/internal/wire"
)

// fakeServer accepts one connection, decodes one request frame, and
// hands it to respond to produce the reply frame(s) it writes back.
func fakeServer(t *testing.T, respond func(cmd string, args wire.Args, bw *bufioWriterT)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qmanager.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		br := bufio.NewReader(conn)
		bw := bufio.NewWriter(conn)
		cmd, args, err := wire.ReadFrame(br)
		if err != nil {
			return
		}
		respond(cmd, args, &bufioWriterT{bw})
	}()
	t.Cleanup(func() { ln.Close() })
	return path
}

// bufioWriterT narrows *bufio.Writer to the one helper tests need, so the
// fakeServer signature above stays readable.
type bufioWriterT struct{ bw *bufio.Writer }

func (w *bufioWriterT) frame(status int, args wire.Args) {
	wire.WriteFrame(w.bw, wire.FormatStatus(status), args)
}

func TestTrySuccess(t *testing.T) {
	path := fakeServer(t, func(cmd string, args wire.Args, bw *bufioWriterT) {
		if cmd != wire.CmdTry {
			t.Errorf("expected try, got %s", cmd)
		}
		bw.frame(wire.StatusJobAllocated, wire.Args{"machine": wire.String("builder0"), "id": wire.Int64(7)})
	})
	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	machine, id, err := c.Try("job1", "build", 0, nil)
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if machine != "builder0" || id != 7 {
		t.Fatalf("expected builder0/7, got %s/%d", machine, id)
	}
}

func TestTryWouldBlockReturnsStatusError(t *testing.T) {
	path := fakeServer(t, func(cmd string, args wire.Args, bw *bufioWriterT) {
		bw.frame(wire.StatusWouldBlock, wire.Args{"body": wire.String("no machines free")})
	})
	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	_, _, err = c.Try("job1", "build", 0, nil)
	serr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if serr.Code != wire.StatusWouldBlock {
		t.Fatalf("expected code %d, got %d", wire.StatusWouldBlock, serr.Code)
	}
}

func TestAcquireBlockingTwoFrame(t *testing.T) {
	path := fakeServer(t, func(cmd string, args wire.Args, bw *bufioWriterT) {
		bw.frame(wire.StatusOKBlocking, wire.Args{"id": wire.Int64(9)})
		bw.frame(wire.StatusJobAllocated, wire.Args{"machine": wire.String("builder1"), "id": wire.Int64(9)})
	})
	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	machine, id, err := c.Acquire("job1", "build", 0, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if machine != "builder1" || id != 9 {
		t.Fatalf("expected builder1/9, got %s/%d", machine, id)
	}
}

func TestStatusDecodesMachines(t *testing.T) {
	path := fakeServer(t, func(cmd string, args wire.Args, bw *bufioWriterT) {
		row := wire.List([]wire.Value{
			wire.String("builder0"), wire.String("example.org"), wire.String("main"),
			wire.List([]wire.Value{wire.String("main")}), wire.String("amd64"), wire.Int64(1300),
			wire.Int64(4), wire.Int64(2), wire.Bool(true), wire.Bool(true), wire.Int64(1),
			wire.List([]wire.Value{wire.String("open")}),
		})
		bw.frame(wire.StatusOK, wire.Args{"machines": wire.List([]wire.Value{row})})
	})
	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	machines, err := c.Status(nil)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(machines) != 1 || machines[0].Name != "builder0" || machines[0].CurJobs != 1 {
		t.Fatalf("unexpected decode: %+v", machines)
	}
}

func TestDeleteMachinePropagatesError(t *testing.T) {
	path := fakeServer(t, func(cmd string, args wire.Args, bw *bufioWriterT) {
		bw.frame(wire.StatusObjectExists, wire.Args{"name": wire.String("builder0"), "body": wire.String("busy")})
	})
	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	err = c.DeleteMachine("builder0")
	serr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if serr.Code != wire.StatusObjectExists || serr.Body != "busy" {
		t.Fatalf("unexpected error: %+v", serr)
	}
}
