/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package log

import (
	"github.com/crewjam/rfc5424"
)

// KVLogger wraps a Logger with a set of structured data params attached to
// every entry it writes, so the scheduler and admission server can stamp
// every log line with fields like the daemon pid without repeating them
// at each call site.
type KVLogger struct {
	*Logger
	sds []rfc5424.SDParam
}

func NewLoggerWithKV(l *Logger, sds ...rfc5424.SDParam) *KVLogger {
	return &KVLogger{
		Logger: l,
		sds:    sds,
	}
}

// Info writes an INFO level structured log entry, merging kvl's standing
// fields ahead of the call's own.
func (kvl *KVLogger) Info(msg string, sds ...rfc5424.SDParam) error {
	return kvl.outputStructured(DEFAULT_DEPTH+1, INFO, msg, append(kvl.sds, sds...)...)
}

// Error writes an ERROR level structured log entry, merging kvl's standing
// fields ahead of the call's own.
func (kvl *KVLogger) Error(msg string, sds ...rfc5424.SDParam) error {
	return kvl.outputStructured(DEFAULT_DEPTH+1, ERROR, msg, append(kvl.sds, sds...)...)
}

// AddKV attaches additional standing fields, written on every subsequent
// call through kvl.
func (kvl *KVLogger) AddKV(sds ...rfc5424.SDParam) {
	kvl.sds = append(kvl.sds, sds...)
}
