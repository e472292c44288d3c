/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

import (
	"strings"

	"github.com/bsd-hacker/qmanager/internal/wire"
)

// argString/argInt64/.../ wrap Value type assertions so a wrong-typed
// argument becomes an errArgumentError (407) rather than a panic --
// wire.ValidateCommand only checks argument *names*, not value kinds.

func argString(args wire.Args, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", errArgumentError
	}
	s, err := v.AsString()
	if err != nil {
		return "", errArgumentError
	}
	return s, nil
}

func argInt64(args wire.Args, name string) (int64, error) {
	v, ok := args[name]
	if !ok {
		return 0, errArgumentError
	}
	n, err := v.AsInt64()
	if err != nil {
		return 0, errArgumentError
	}
	return n, nil
}

func argBool(args wire.Args, name string) (bool, error) {
	v, ok := args[name]
	if !ok {
		return false, errArgumentError
	}
	b, err := v.AsBool()
	if err != nil {
		return false, errArgumentError
	}
	return b, nil
}

// argStrings returns a list-valued argument verbatim (case preserved) --
// used for mdl predicate lines and ACL-name references, where case
// carries meaning or is already normalized by the caller.
func argStrings(args wire.Args, name string) ([]string, error) {
	v, ok := args[name]
	if !ok {
		return nil, errArgumentError
	}
	ss, err := v.AsStrings()
	if err != nil {
		return nil, errArgumentError
	}
	return ss, nil
}

// argNormalizedStrings returns a list-valued argument lower-cased and
// trimmed, for schema fields (pools) normalized before storage.
func argNormalizedStrings(args wire.Args, name string) ([]string, error) {
	ss, err := argStrings(args, name)
	if err != nil {
		return nil, err
	}
	return normalizeList(ss), nil
}

// argUint32s parses a list-of-numeric-strings argument (uidlist/gidlist)
// into uint32s.
func argUint32s(args wire.Args, name string) ([]uint32, error) {
	v, ok := args[name]
	if !ok {
		return nil, errArgumentError
	}
	out, err := valueToUint32Slice(v)
	if err != nil {
		return nil, errArgumentError
	}
	return out, nil
}

// normalizeList lowercases every element, the normalization rule for
// comma-separated/list-valued fields.
func normalizeList(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
