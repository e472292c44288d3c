/*************************************************************************
 * Copyright 2021 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package utils provides various helpers that don't belong anywhere else
package utils

import (
	"slices"
)

// UnorderedEqual reports whether a and b hold the same multiset of
// elements, ignoring order.
func UnorderedEqual[T cmp](a, b []T) bool {
	A := append([]T(nil), a...)
	B := append([]T(nil), b...)
	slices.Sort(A)
	slices.Sort(B)
	return slices.Equal(A, B)
}

type cmp interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64 | ~string
}
