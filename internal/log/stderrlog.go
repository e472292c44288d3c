/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package log

import "os"

// NewStderrLogger builds a Logger that writes to os.Stderr, the logger
// qmanagerd starts with before a configured log file (if any) is added via
// AddWriter. fileOverride is accepted for callers that want to name an
// alternate destination; qmanagerd never sets it, so it is ignored.
func NewStderrLogger(fileOverride string) (*Logger, error) {
	return New(stderrWriteCloser{}), nil
}

// stderrWriteCloser adapts os.Stderr to io.WriteCloser without letting
// Logger.Close tear down the process' real stderr.
type stderrWriteCloser struct{}

func (stderrWriteCloser) Write(b []byte) (int, error) {
	return os.Stderr.Write(b)
}

func (stderrWriteCloser) Close() error {
	return nil
}
