/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package wire implements the queue manager's binary frame protocol: an
// ASCII version/command line followed by a self-describing argument
// encoding and an "EOM" terminator. The value encoding replaces the
// original cPickle-with-disabled-class-loading scheme with a closed union
// of primitive/composite kinds that the decoder structurally cannot grow
// beyond, so no application type can ever be instantiated off the wire.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Kind tags the concrete type carried by a Value.
type Kind uint8

const (
	KindString Kind = iota
	KindInt64
	KindBool
	KindList
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// maxValueLen bounds string/list/set lengths read off the wire so a
// corrupt or hostile peer cannot force an unbounded allocation.
const maxValueLen = 1 << 24

// ErrUnknownKind is returned when a value tag byte does not name one of
// the five closed kinds this codec understands.
var ErrUnknownKind = errors.New("wire: unknown value kind")

// ErrValueTooLarge is returned when a length prefix exceeds maxValueLen.
var ErrValueTooLarge = errors.New("wire: value length exceeds limit")

// Value is the closed union of argument types the protocol can carry.
type Value struct {
	Kind Kind
	Str  string
	Int  int64
	Bool bool
	List []Value // used for both KindList and KindSet
}

// String constructs a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Int64 constructs an integer Value.
func Int64(i int64) Value { return Value{Kind: KindInt64, Int: i} }

// Bool constructs a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// List constructs an ordered-sequence Value.
func List(vs []Value) Value { return Value{Kind: KindList, List: vs} }

// Set constructs an unordered-sequence Value.
func Set(vs []Value) Value { return Value{Kind: KindSet, List: vs} }

// AsString returns the Value as a string, or an error if it is not a
// KindString value.
func (v Value) AsString() (string, error) {
	if v.Kind != KindString {
		return "", fmt.Errorf("wire: expected string, got %s", v.Kind)
	}
	return v.Str, nil
}

// AsInt64 returns the Value as an int64.
func (v Value) AsInt64() (int64, error) {
	if v.Kind != KindInt64 {
		return 0, fmt.Errorf("wire: expected int64, got %s", v.Kind)
	}
	return v.Int, nil
}

// AsBool returns the Value as a bool.
func (v Value) AsBool() (bool, error) {
	if v.Kind != KindBool {
		return false, fmt.Errorf("wire: expected bool, got %s", v.Kind)
	}
	return v.Bool, nil
}

// AsStrings returns a KindList/KindSet of strings as a []string;
// lower-casing is NOT applied here, callers normalize where it matters.
func (v Value) AsStrings() ([]string, error) {
	if v.Kind != KindList && v.Kind != KindSet {
		return nil, fmt.Errorf("wire: expected list or set, got %s", v.Kind)
	}
	out := make([]string, 0, len(v.List))
	for _, e := range v.List {
		s, err := e.AsString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func writeValue(w io.Writer, v Value) error {
	if _, err := w.Write([]byte{byte(v.Kind)}); err != nil {
		return err
	}
	switch v.Kind {
	case KindString:
		return writeBytes(w, []byte(v.Str))
	case KindInt64:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v.Int))
		_, err := w.Write(buf[:])
		return err
	case KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		_, err := w.Write([]byte{b})
		return err
	case KindList, KindSet:
		var cbuf [4]byte
		binary.BigEndian.PutUint32(cbuf[:], uint32(len(v.List)))
		if _, err := w.Write(cbuf[:]); err != nil {
			return err
		}
		for _, e := range v.List {
			if err := writeValue(w, e); err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrUnknownKind
	}
}

func writeBytes(w io.Writer, b []byte) error {
	var lbuf [4]byte
	binary.BigEndian.PutUint32(lbuf[:], uint32(len(b)))
	if _, err := w.Write(lbuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readValue(r io.Reader) (Value, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Value{}, err
	}
	kind := Kind(tag[0])
	switch kind {
	case KindString:
		b, err := readBytes(r)
		if err != nil {
			return Value{}, err
		}
		return String(string(b)), nil
	case KindInt64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Value{}, err
		}
		return Int64(int64(binary.BigEndian.Uint64(buf[:]))), nil
	case KindBool:
		var buf [1]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Value{}, err
		}
		return Bool(buf[0] != 0), nil
	case KindList, KindSet:
		n, err := readCount(r)
		if err != nil {
			return Value{}, err
		}
		vs := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			e, err := readValue(r)
			if err != nil {
				return Value{}, err
			}
			vs = append(vs, e)
		}
		if kind == KindSet {
			return Set(vs), nil
		}
		return List(vs), nil
	default:
		return Value{}, ErrUnknownKind
	}
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readCount(r io.Reader) (uint32, error) {
	var lbuf [4]byte
	if _, err := io.ReadFull(r, lbuf[:]); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(lbuf[:])
	if n > maxValueLen {
		return 0, ErrValueTooLarge
	}
	return n, nil
}
