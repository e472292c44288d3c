/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

import "github.com/bsd-hacker/qmanager/internal/wire"

// dispatch routes one Request to its handler and turns a returned error
// into the single terminal error-status frame for the session. A
// handler that completes successfully is responsible for sending its
// own success frame(s) and must return nil; dispatch never sends on
// the success path, so every request yields exactly one reply sequence.
func (s *Scheduler) dispatch(req Request) {
	if req.Cmd == cancelCmd {
		s.handleCancel(req)
		return
	}

	var err error
	switch req.Cmd {
	case wire.CmdTry:
		err = s.handleRun(req, false)
	case wire.CmdAcquire:
		err = s.handleRun(req, true)
	case wire.CmdRelease:
		err = s.handleRelease(req)
	case wire.CmdReconnect:
		err = s.handleReconnect(req)
	case wire.CmdStatus:
		err = s.handleStatus(req)
	case wire.CmdJobs:
		err = s.handleJobs(req)
	case wire.CmdAdd:
		err = s.handleAddMachine(req)
	case wire.CmdUpdate:
		err = s.handleUpdateMachine(req)
	case wire.CmdDelete:
		err = s.handleDeleteMachine(req)
	case wire.CmdAddACL:
		err = s.handleAddACL(req)
	case wire.CmdUpdateACL:
		err = s.handleUpdateACL(req)
	case wire.CmdDelACL:
		err = s.handleDelACL(req)
	default:
		err = errStatus(wire.StatusInvalidCommand, "unknown command")
	}

	if err != nil {
		status, msg, extra := statusOf(err)
		args := wire.Args{"body": wire.String(msg)}
		for k, v := range extra {
			args[k] = v
		}
		sendFrame(req.Session, status, args, true)
	}
}
