/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

//go:build freebsd || darwin

package ident

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

// xucredVersion is the structure layout version this package understands,
// matching freebsd.py's check that res[0] == 0.
const xucredVersion = 0

// PeerCredentials reads the kernel-reported credentials of the connected
// peer via LOCAL_PEERCRED, the FreeBSD/Darwin analogue of Linux's
// SO_PEERCRED, ported from freebsd.py's getpeerid.
func PeerCredentials(conn *net.UnixConn) (uid uint32, gids []uint32, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, nil, &IdentityError{Op: "syscallconn", Err: err}
	}

	var cred *unix.Xucred
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptXucred(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
	})
	if ctrlErr != nil {
		return 0, nil, &IdentityError{Op: "getsockopt", Err: ctrlErr}
	}
	if sockErr != nil {
		return 0, nil, &IdentityError{Op: "getsockopt", Err: sockErr}
	}
	if cred == nil {
		return 0, nil, &IdentityError{Op: "getsockopt", Err: errors.New("nil credential structure")}
	}
	if cred.Version != xucredVersion {
		return 0, nil, &IdentityError{Op: "getsockopt", Err: errors.New("unexpected xucred structure version")}
	}

	n := int(cred.Ngroups)
	if n > len(cred.Groups) {
		n = len(cred.Groups)
	}
	gids = make([]uint32, n)
	for i := 0; i < n; i++ {
		gids[i] = cred.Groups[i]
	}
	return cred.Uid, gids, nil
}
