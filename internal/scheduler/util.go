/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

import (
	"strconv"

	"github.com/bsd-hacker/qmanager/internal/wire"
	"github.com/bsd-hacker/qmanager/utils"
)

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

// namesEqual reports whether two machine-name slices contain the same
// set of names, ignoring order, used to decide whether a blocked job's
// eligible machine set actually changed across a revalidation pass.
func namesEqual(a, b []string) bool { return utils.UnorderedEqual(a, b) }

func valueToUint32Slice(v wire.Value) ([]uint32, error) {
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
