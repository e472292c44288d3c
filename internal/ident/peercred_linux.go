/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

//go:build linux

package ident

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials reads the kernel-reported credentials of the connected
// peer on a local stream socket via SO_PEERCRED.
func PeerCredentials(conn *net.UnixConn) (uid uint32, gids []uint32, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, nil, &IdentityError{Op: "syscallconn", Err: err}
	}

	var ucred *unix.Ucred
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil {
		return 0, nil, &IdentityError{Op: "getsockopt", Err: ctrlErr}
	}
	if sockErr != nil {
		return 0, nil, &IdentityError{Op: "getsockopt", Err: sockErr}
	}
	if ucred == nil {
		return 0, nil, &IdentityError{Op: "getsockopt", Err: errors.New("nil credential structure")}
	}

	// SO_PEERCRED only reports the effective gid; the rest of the peer's
	// supplementary groups are not available through this socket option on
	// Linux, so the gid-set is just the single effective gid.
	return ucred.Uid, []uint32{ucred.Gid}, nil
}
