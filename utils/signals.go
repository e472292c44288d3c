/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package utils

import (
	"os"
	"os/signal"
	"syscall"
)

// WaitForQuit blocks qmanagerd's main goroutine until it receives SIGHUP,
// SIGINT, SIGQUIT, or SIGTERM, and returns the received signal so the
// caller can log it before shutting down.
func WaitForQuit() os.Signal {
	quitSig := make(chan os.Signal, 1)
	defer close(quitSig)
	signal.Notify(quitSig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	return <-quitSig
}
