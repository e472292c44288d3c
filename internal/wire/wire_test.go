/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package wire

import (
	"bufio"
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	args := Args{
		"name":     String("m1"),
		"priority": Int64(10),
		"online":   Bool(true),
		"pools":    List([]Value{String("p1"), String("p2")}),
		"gids":     Set([]Value{Int64(1), Int64(2)}),
	}
	if err := WriteFrame(&buf, CmdAcquire, args); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := bufio.NewReader(&buf)
	line, got, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != CmdAcquire {
		t.Fatalf("expected line %q, got %q", CmdAcquire, line)
	}
	name, _ := got["name"].AsString()
	if name != "m1" {
		t.Fatalf("expected name m1, got %q", name)
	}
	prio, _ := got["priority"].AsInt64()
	if prio != 10 {
		t.Fatalf("expected priority 10, got %d", prio)
	}
	online, _ := got["online"].AsBool()
	if !online {
		t.Fatal("expected online true")
	}
	pools, _ := got["pools"].AsStrings()
	if len(pools) != 2 || pools[0] != "p1" || pools[1] != "p2" {
		t.Fatalf("unexpected pools: %v", pools)
	}
}

func TestReadFrameRejectsBadVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("2\n")
	buf.WriteString("try\n")
	r := bufio.NewReader(&buf)
	if _, _, err := ReadFrame(r); err != ErrBadVersion {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

func TestReadFrameRejectsMissingEOM(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("1\n")
	buf.WriteString("jobs\n")
	buf.Write([]byte{0, 0, 0, 0}) // zero args
	buf.WriteString("NOTEOM\n")
	r := bufio.NewReader(&buf)
	if _, _, err := ReadFrame(r); err != ErrBadTerminator {
		t.Fatalf("expected ErrBadTerminator, got %v", err)
	}
}

func TestValidateCommandMissingRequired(t *testing.T) {
	err := ValidateCommand(CmdTry, Args{"name": String("m1")})
	if _, ok := err.(*MissingArgumentError); !ok {
		t.Fatalf("expected MissingArgumentError, got %v", err)
	}
}

func TestValidateCommandUnknownExtra(t *testing.T) {
	err := ValidateCommand(CmdJobs, Args{"bogus": String("x")})
	if _, ok := err.(*UnknownArgumentError); !ok {
		t.Fatalf("expected UnknownArgumentError, got %v", err)
	}
}

func TestValidateCommandUnknownCommand(t *testing.T) {
	err := ValidateCommand("frobnicate", Args{})
	if _, ok := err.(*UnknownCommandError); !ok {
		t.Fatalf("expected UnknownCommandError, got %v", err)
	}
}

func TestIsSuccess(t *testing.T) {
	for code, want := range map[int]bool{
		StatusOK:             true,
		StatusJobAllocated:   true,
		StatusOKBlocking:     true,
		StatusInvalidCommand: false,
		StatusNoSuchJob:      false,
	} {
		if got := IsSuccess(code); got != want {
			t.Errorf("IsSuccess(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestDecoderCannotProduceUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF}) // an invalid tag byte
	if _, err := readValue(&buf); err != ErrUnknownKind {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
