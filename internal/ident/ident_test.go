/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package ident

import (
	"os/user"
	"strconv"
	"testing"
)

func TestResolveUIDDigits(t *testing.T) {
	uid, err := ResolveUID("123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != 123 {
		t.Fatalf("expected 123, got %d", uid)
	}
}

func TestResolveGIDDigits(t *testing.T) {
	gid, err := ResolveGID("4206")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gid != 4206 {
		t.Fatalf("expected 4206, got %d", gid)
	}
}

func TestResolveUIDSelf(t *testing.T) {
	me, err := user.Current()
	if err != nil {
		t.Skipf("cannot determine current user: %v", err)
	}
	want, err := strconv.ParseUint(me.Uid, 10, 32)
	if err != nil {
		t.Skip("current uid is not numeric")
	}
	got, err := ResolveUID(me.Username)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != uint32(want) {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestResolveUIDUnknown(t *testing.T) {
	if _, err := ResolveUID("definitely-not-a-real-user-xyz"); err != ErrUnknownUser {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}
