/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package config loads the qmanagerd INI-style configuration file into a
// strongly typed struct using the gcfg tag conventions.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/gravwell/gcfg"
)

const (
	maxConfigSize int64 = 4 * mb // way larger than any qmanager config will ever be
)

var (
	ErrConfigFileTooLarge = errors.New("Config file is too large")
	ErrFailedFileRead     = errors.New("Failed to read entire config file")
)

// LoadConfigFile opens a config file, checks the file size, and loads the
// bytes using LoadConfigBytes.
func LoadConfigFile(v interface{}, p string) (err error) {
	var fin *os.File
	var fi os.FileInfo
	var n int64
	if fin, err = os.Open(p); err != nil {
		return
	} else if fi, err = fin.Stat(); err != nil {
		fin.Close()
		return
	} else if fi.Size() > maxConfigSize {
		fin.Close()
		err = ErrConfigFileTooLarge
		return
	}

	bb := bytes.NewBuffer(nil)
	if n, err = io.Copy(bb, fin); err != nil {
		fin.Close()
		return
	} else if n != fi.Size() {
		fin.Close()
		err = ErrFailedFileRead
	} else if err = fin.Close(); err == nil {
		err = LoadConfigBytes(v, bb.Bytes())
	}
	return
}

// LoadConfigBytes parses the contents of b into the given interface v.
func LoadConfigBytes(v interface{}, b []byte) error {
	if int64(len(b)) > maxConfigSize {
		return ErrConfigFileTooLarge
	}
	return gcfg.ReadStringInto(v, string(b))
}
