/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package server

import (
	"reflect"
	"testing"

	"github.com/bsd-hacker/qmanager/internal/wire"
)

func TestApplyRootProxySubstitutesForRoot(t *testing.T) {
	args := wire.Args{
		"uid":  wire.Int64(500),
		"gids": wire.List([]wire.Value{wire.String("10"), wire.String("20")}),
	}
	uid, gids := applyRootProxy(0, []uint32{0}, args)
	if uid != 500 {
		t.Fatalf("expected uid 500, got %d", uid)
	}
	if !reflect.DeepEqual(gids, []uint32{10, 20}) {
		t.Fatalf("expected gids [10 20], got %v", gids)
	}
}

func TestApplyRootProxyIgnoredForNonRoot(t *testing.T) {
	args := wire.Args{"uid": wire.Int64(500)}
	uid, gids := applyRootProxy(1000, []uint32{1000}, args)
	if uid != 1000 {
		t.Fatalf("expected kernel-reported uid 1000 to win, got %d", uid)
	}
	if !reflect.DeepEqual(gids, []uint32{1000}) {
		t.Fatalf("expected unchanged gids, got %v", gids)
	}
}

func TestApplyRootProxyNoSubstitutionArgsAbsent(t *testing.T) {
	uid, gids := applyRootProxy(0, []uint32{0}, wire.Args{})
	if uid != 0 {
		t.Fatalf("expected uid to stay 0, got %d", uid)
	}
	if !reflect.DeepEqual(gids, []uint32{0}) {
		t.Fatalf("expected gids unchanged, got %v", gids)
	}
}

func TestParseUint32List(t *testing.T) {
	v := wire.List([]wire.Value{wire.String("1"), wire.String("2"), wire.String("3")})
	got, err := parseUint32List(v)
	if err != nil {
		t.Fatalf("parseUint32List: %v", err)
	}
	if !reflect.DeepEqual(got, []uint32{1, 2, 3}) {
		t.Fatalf("expected [1 2 3], got %v", got)
	}
}
