/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

import "github.com/bsd-hacker/qmanager/internal/wire"

// statusError is the single place in the scheduler at which an internal
// failure becomes a wire status code; internal/acl, internal/constraint
// and internal/machine know nothing of status codes.
type statusError struct {
	status int
	msg    string
	args   wire.Args
}

func (e *statusError) Error() string { return e.msg }

func errStatus(status int, msg string) *statusError { return &statusError{status: status, msg: msg} }

// errStatusArgs attaches extra reply arguments a status requires beyond
// the generic diagnostic body (e.g. 411 Object-Exists must carry the
// colliding object's name).
func errStatusArgs(status int, msg string, args wire.Args) *statusError {
	return &statusError{status: status, msg: msg, args: args}
}

var (
	errNoMachines       = errStatus(wire.StatusNoMachines, "no machines match constraints")
	errWouldBlock       = errStatus(wire.StatusWouldBlock, "all machines in use")
	errNoSuchJob        = errStatus(wire.StatusNoSuchJob, "no such job")
	errJobNotRunning    = errStatus(wire.StatusJobNotRunning, "job is blocked, not running")
	errBodyError        = errStatus(wire.StatusBodyError, "error in body")
	errArgumentError    = errStatus(wire.StatusArgumentError, "error in argument")
	errPermissionDenied = errStatus(wire.StatusPermissionDenied, "permission denied")
	errJobRunning       = errStatus(wire.StatusJobRunning, "job already running")
	errNoSuchMachine    = errStatus(wire.StatusArgumentError, "no such machine")
	errNoSuchACL        = errStatus(wire.StatusArgumentError, "no such acl")
	// errStorage is the catch-all for a catalog commit failure, fatal to
	// the current command; 406 ("error in body") is the closest existing
	// status for "the command could not be completed as submitted."
	errStorage = errStatus(wire.StatusBodyError, "storage commit failed")
)

// statusOf extracts the wire status code, diagnostic message, and any
// required extra reply arguments for err, defaulting to a generic body
// error for anything not already classified.
func statusOf(err error) (int, string, wire.Args) {
	if se, ok := err.(*statusError); ok {
		return se.status, se.msg, se.args
	}
	return wire.StatusBodyError, err.Error(), nil
}
