/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package server is the admission server: it binds the
// Unix-domain socket clients connect to, reads exactly one request frame
// per connection, resolves the peer's identity (with root-proxy
// substitution), and hands the decoded request to the scheduler. It never
// touches scheduler state directly -- every mutation flows through
// Scheduler.Submit/Cancel.
package server

import (
	"bufio"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/crewjam/rfc5424"

	"github.com/bsd-hacker/qmanager/internal/ident"
	qlog "github.com/bsd-hacker/qmanager/internal/log"
	"github.com/bsd-hacker/qmanager/internal/scheduler"
	"github.com/bsd-hacker/qmanager/internal/wire"
)

// disconnectPollInterval bounds how quickly a dropped connection holding
// a blocked job is noticed; see watchDisconnect.
const disconnectPollInterval = 2 * time.Second

// Scheduler is the subset of *scheduler.Scheduler the admission server
// needs, so tests can substitute a fake without standing up bbolt.
type Scheduler interface {
	Submit(scheduler.Request)
	Cancel(jobID uint64)
}

// Server binds a Unix-domain stream socket and feeds every accepted
// connection's request into sched.
type Server struct {
	path     string
	perm     os.FileMode
	sched    Scheduler
	logger   *qlog.KVLogger
	nextConn uint64
}

// New constructs a Server. Listen must be called to actually bind the
// socket.
func New(socketPath string, perm os.FileMode, sched Scheduler, logger *qlog.KVLogger) *Server {
	return &Server{path: socketPath, perm: perm, sched: sched, logger: logger}
}

// Listen binds the Unix-domain socket at the server's configured path,
// removing a stale socket file left behind by an unclean shutdown first
// (mirrors the source binding over an abandoned socket on restart).
func (s *Server) Listen() (net.Listener, error) {
	if _, err := os.Stat(s.path); err == nil {
		os.Remove(s.path)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(s.path, s.perm); err != nil {
		ln.Close()
		return nil, err
	}
	return ln, nil
}

// Serve accepts connections on ln until it returns an error (typically
// because the caller closed ln), handling each on its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		uc, ok := conn.(*net.UnixConn)
		if !ok {
			conn.Close()
			continue
		}
		go s.handleConn(uc)
	}
}

func (s *Server) nextSessionID() uint64 {
	return atomic.AddUint64(&s.nextConn, 1)
}

func (s *Server) logError(msg string, sds ...rfc5424.SDParam) {
	if s.logger != nil {
		s.logger.Error(msg, sds...)
	}
}

// handleConn reads exactly one request frame from conn, resolves the
// caller's identity, enqueues the request, and relays every frame the
// scheduler sends back until the session closes Out.
func (s *Server) handleConn(conn *net.UnixConn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)

	line, args, err := wire.ReadFrame(br)
	if err != nil {
		return // malformed frame: nothing reliable to reply with
	}

	uid, gids, err := ident.PeerCredentials(conn)
	if err != nil {
		writeReply(bw, wire.StatusPermissionDenied, wire.Args{"body": wire.String("peer credentials: " + err.Error())})
		return
	}
	uid, gids = applyRootProxy(uid, gids, args)
	delete(args, "uid")
	delete(args, "gids")

	if verr := wire.ValidateCommand(line, args); verr != nil {
		status := wire.StatusArgumentError
		if _, ok := verr.(*wire.UnknownCommandError); ok {
			status = wire.StatusInvalidCommand
		}
		writeReply(bw, status, wire.Args{"body": wire.String(verr.Error())})
		return
	}

	sess := scheduler.NewSession(s.nextSessionID(), uid, gids)
	s.sched.Submit(scheduler.Request{Session: sess, Cmd: line, Args: args})

	done := make(chan struct{})
	defer close(done)
	watching := false

	// reconnect's job id is already known from the request itself, so the
	// disconnect watch can start immediately; a failed reconnect makes the
	// resulting cancel a harmless no-op (see Scheduler.handleCancel).
	if line == wire.CmdReconnect {
		if idv, ok := args["id"]; ok {
			if id, err := idv.AsInt64(); err == nil {
				go s.watchDisconnect(conn, uint64(id), done)
				watching = true
			}
		}
	}

	for frame := range sess.Out {
		if err := wire.WriteFrame(bw, wire.FormatStatus(frame.Status), frame.Args); err != nil {
			s.logError("write failed, dropping session", rfc5424.SDParam{Name: "session", Value: formatUint(sess.ID)})
			return
		}
		if !watching && !frame.Final && frame.Status == wire.StatusOKBlocking {
			if idv, ok := frame.Args["id"]; ok {
				if id, err := idv.AsInt64(); err == nil {
					go s.watchDisconnect(conn, uint64(id), done)
					watching = true
				}
			}
		}
	}
}

// watchDisconnect polls conn for readability while a blocking
// acquire/reconnect is still pending. A blocked client is not expected
// to send anything further, so any read activity (EOF, reset, or
// stray bytes) is treated as a disconnect and cancels jobID.
func (s *Server) watchDisconnect(conn *net.UnixConn, jobID uint64, done <-chan struct{}) {
	buf := make([]byte, 1)
	for {
		select {
		case <-done:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(disconnectPollInterval))
		if _, err := conn.Read(buf); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.sched.Cancel(jobID)
			return
		}
		s.sched.Cancel(jobID)
		return
	}
}

func writeReply(bw *bufio.Writer, status int, args wire.Args) {
	wire.WriteFrame(bw, wire.FormatStatus(status), args)
}
