/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package scheduler owns the job lifecycle: eligibility, placement,
// blocking, unblocking, cancellation, and catalog CRUD. Every command
// handler runs on the scheduler's single event-loop goroutine (see
// Scheduler.Run); Submit and Cancel only enqueue work for it.
package scheduler

import "github.com/bsd-hacker/qmanager/internal/wire"

// cancelCmd is not a wire command; the admission server synthesizes it
// when an I/O goroutine observes client disconnect on a session that
// owns a blocked (or running) job.
const cancelCmd = "_cancel_"

// Frame is one outbound reply. Final marks the last frame of a session:
// the admission goroutine closes the socket after writing it.
type Frame struct {
	Status int
	Args   wire.Args
	Final  bool
}

// Session is the transient per-connection record shared between the
// admission server (which reads the request from a connection and hands
// it to Scheduler.Submit) and the scheduler (which exclusively writes to
// Out).
type Session struct {
	ID   uint64
	UID  uint32
	GIDs []uint32

	// Out carries every frame the scheduler ever sends this session: at
	// most one frame for a synchronous command, or two for a blocking
	// acquire (a non-final 203 followed later by a final 202/412/...).
	// The scheduler closes Out once it sends a Final frame.
	Out chan Frame
}

// Request is one unit of work enqueued by the admission server. Cmd ==
// cancelCmd carries no Args; JobID identifies the job to cancel.
type Request struct {
	Session *Session
	Cmd     string
	Args    wire.Args
	JobID   uint64
}

// NewSession constructs a Session for a newly accepted connection.
func NewSession(id uint64, uid uint32, gids []uint32) *Session {
	return &Session{ID: id, UID: uid, GIDs: gids, Out: make(chan Frame, 2)}
}

func sendFrame(sess *Session, status int, args wire.Args, final bool) {
	if sess == nil {
		return
	}
	if args == nil {
		args = wire.Args{}
	}
	sess.Out <- Frame{Status: status, Args: args, Final: final}
	if final {
		close(sess.Out)
	}
}
