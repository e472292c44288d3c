/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package server

import (
	"strconv"

	"github.com/bsd-hacker/qmanager/internal/wire"
)

// applyRootProxy lets a uid-zero peer submit a request on behalf of
// another principal by supplying "uid"/"gids" arguments, which are
// otherwise ignored (the kernel-reported credentials always win for a
// non-root peer).
func applyRootProxy(uid uint32, gids []uint32, args wire.Args) (uint32, []uint32) {
	if uid != 0 {
		return uid, gids
	}
	if v, ok := args["uid"]; ok {
		if n, err := v.AsInt64(); err == nil {
			uid = uint32(n)
		}
	}
	if v, ok := args["gids"]; ok {
		if parsed, err := parseUint32List(v); err == nil {
			gids = parsed
		}
	}
	return uid, gids
}

func parseUint32List(v wire.Value) ([]uint32, error) {
	strs, err := v.AsStrings()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(strs))
	for _, s := range strs {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, err
		}
		out = append(out, uint32(n))
	}
	return out, nil
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }
