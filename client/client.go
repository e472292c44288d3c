/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package client is a Go client library for the queue manager's wire
// protocol, grounded on qmanagerclient.py's QManagerClientConn: dial the
// admission socket, send one command frame, and read back one or two
// reply frames (a blocking acquire/reconnect gets a non-final 203/410
// followed later by the final outcome).
package client

import (
	"bufio"
	"fmt"
	"net"
	"strconv"

	"github.com/bsd-hacker/qmanager/internal/wire"
)

// StatusError wraps a non-success reply: Code is the three-digit wire
// status, Body is its optional diagnostic text.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qmanager: status %d", e.Code)
	}
	return fmt.Sprintf("qmanager: status %d: %s", e.Code, e.Body)
}

// Conn is one connection to the admission socket. The protocol is
// strictly request/reply (at most one in-flight command), matching the
// source client's synchronous socket usage.
type Conn struct {
	nc net.Conn
	br *bufio.Reader
	bw *bufio.Writer
}

// Dial connects to the admission socket at path.
func Dial(path string) (*Conn, error) {
	nc, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return &Conn{nc: nc, br: bufio.NewReader(nc), bw: bufio.NewWriter(nc)}, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// do sends one request frame and returns its first reply frame.
func (c *Conn) do(cmd string, args wire.Args) (int, wire.Args, error) {
	if err := wire.ValidateCommand(cmd, args); err != nil {
		return 0, nil, err
	}
	if err := wire.WriteFrame(c.bw, cmd, args); err != nil {
		return 0, nil, err
	}
	return c.readFrame()
}

// readFrame reads and decodes one reply frame, parsing its status line.
func (c *Conn) readFrame() (int, wire.Args, error) {
	line, args, err := wire.ReadFrame(c.br)
	if err != nil {
		return 0, nil, err
	}
	status, err := strconv.Atoi(line)
	if err != nil {
		return 0, nil, fmt.Errorf("qmanager: bad status line %q: %w", line, err)
	}
	return status, args, nil
}

// asError turns a non-success status into a *StatusError.
func asError(status int, args wire.Args) error {
	if wire.IsSuccess(status) {
		return nil
	}
	body := ""
	if v, ok := args["body"]; ok {
		body, _ = v.AsString()
	}
	return &StatusError{Code: status, Body: body}
}
