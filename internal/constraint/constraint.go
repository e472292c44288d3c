/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package constraint compiles a client-supplied mdl (machine-description
// list) of "COLUMN OP VALUE" predicates into a filter over the machine
// table, grounded on qmanagerobj.py's SQL class.
package constraint

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnknownColumn is returned when a predicate names a column the
// machine schema does not have.
var ErrUnknownColumn = errors.New("constraint: unknown column")

// ErrUnknownOperator is returned when a predicate uses an operator
// outside {=, !=, <, <=, >, >=}.
var ErrUnknownOperator = errors.New("constraint: unknown operator")

// ErrMalformedPredicate is returned when a predicate line does not split
// into exactly three whitespace-separated tokens.
var ErrMalformedPredicate = errors.New("constraint: malformed predicate, want \"COLUMN OP VALUE\"")

// Row is the queryable projection of a machine row: the columns the
// constraint language may reference, plus CurJobs for load-based
// queries (e.g. "status" introspection against current load).
type Row struct {
	Name        string
	Domain      string
	PrimaryPool string
	Pools       []string
	Arch        string
	OSVersion   int64
	NumCPUs     int64
	MaxJobs     int64
	HasZFS      bool
	Online      bool
	CurJobs     int64
}

type op int

const (
	opEQ op = iota
	opNE
	opLT
	opLE
	opGT
	opGE
)

func parseOp(s string) (op, bool) {
	switch s {
	case "=":
		return opEQ, true
	case "!=":
		return opNE, true
	case "<":
		return opLT, true
	case "<=":
		return opLE, true
	case ">":
		return opGT, true
	case ">=":
		return opGE, true
	default:
		return 0, false
	}
}

type predicate struct {
	column string
	op     op
	value  string
}

// Predicate is a compiled conjunction of column predicates.
type Predicate struct {
	preds []predicate
}

var columns = map[string]struct{}{
	"name": {}, "domain": {}, "primarypool": {}, "pools": {}, "arch": {},
	"osversion": {}, "numcpus": {}, "maxjobs": {}, "haszfs": {}, "online": {},
	"curjobs": {},
}

// Compile parses an mdl (a list of "COLUMN OP VALUE" lines, tokens
// separated by any run of whitespace, mirroring the source's
// line.split()) into a Predicate. Unknown columns and operators are
// rejected, matching SQL.construct's KeyError/ValueError.
func Compile(mdl []string) (Predicate, error) {
	var p Predicate
	for _, line := range mdl {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return Predicate{}, ErrMalformedPredicate
		}
		col, opStr, val := strings.ToLower(fields[0]), fields[1], fields[2]
		if _, ok := columns[col]; !ok {
			return Predicate{}, ErrUnknownColumn
		}
		o, ok := parseOp(opStr)
		if !ok {
			return Predicate{}, ErrUnknownOperator
		}
		p.preds = append(p.preds, predicate{column: col, op: o, value: val})
	}
	return p, nil
}

// Eval reports whether r satisfies every predicate in p (the conjunction
// over all compiled predicates; an empty Predicate matches everything).
func (p Predicate) Eval(r Row) bool {
	for _, pr := range p.preds {
		if !pr.eval(r) {
			return false
		}
	}
	return true
}

func (pr predicate) eval(r Row) bool {
	switch pr.column {
	case "name":
		return compareString(r.Name, pr.op, pr.value)
	case "domain":
		return compareString(r.Domain, pr.op, pr.value)
	case "primarypool":
		return compareString(r.PrimaryPool, pr.op, pr.value)
	case "arch":
		return compareString(r.Arch, pr.op, pr.value)
	case "osversion":
		return compareInt(r.OSVersion, pr.op, pr.value)
	case "numcpus":
		return compareInt(r.NumCPUs, pr.op, pr.value)
	case "maxjobs":
		return compareInt(r.MaxJobs, pr.op, pr.value)
	case "curjobs":
		return compareInt(r.CurJobs, pr.op, pr.value)
	case "haszfs":
		return compareBool(r.HasZFS, pr.op, pr.value)
	case "online":
		return compareBool(r.Online, pr.op, pr.value)
	case "pools":
		// XXX substring match for pools: equality only, ported as a known
		// gap from SQL.construct's own "XXX substring match for pools"
		// comment -- pools is a sequence column and only supports
		// membership testing against the column's normalized tags, not
		// the partial-match semantics a real query language would want.
		return containsFold(r.Pools, pr.value) == (pr.op != opNE)
	default:
		return false
	}
}

func compareString(have string, o op, want string) bool {
	switch o {
	case opEQ:
		return have == want
	case opNE:
		return have != want
	case opLT:
		return have < want
	case opLE:
		return have <= want
	case opGT:
		return have > want
	case opGE:
		return have >= want
	}
	return false
}

func compareInt(have int64, o op, want string) bool {
	w, err := strconv.ParseInt(want, 10, 64)
	if err != nil {
		return false
	}
	switch o {
	case opEQ:
		return have == w
	case opNE:
		return have != w
	case opLT:
		return have < w
	case opLE:
		return have <= w
	case opGT:
		return have > w
	case opGE:
		return have >= w
	}
	return false
}

func compareBool(have bool, o op, want string) bool {
	w := want == "1" || strings.EqualFold(want, "true")
	switch o {
	case opEQ:
		return have == w
	case opNE:
		return have != w
	default:
		// Ordering comparisons on a boolean column are nonsensical; the
		// source has no guard for this either, so treat as no match.
		return false
	}
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// Filter returns the subset of rows matching p, preserving the input
// (store iteration) order.
func Filter(p Predicate, rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if p.Eval(r) {
			out = append(out, r)
		}
	}
	return out
}
