/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/
package config

import (
	"bufio"
	"errors"
	"os"
)

var (
	errNoEnvArg     = errors.New("no env arg")
	ErrEmptyEnvFile = errors.New("Environment secret file is empty")
)

// loadEnvFile reads the first line of nm, the _FILE indirection target
// for a secret that should not be passed as a bare environment value
// (e.g. QMANAGER_PATH_FILE pointing at a mounted secret).
func loadEnvFile(nm string) (r string, err error) {
	var fin *os.File
	if fin, err = os.Open(nm); err != nil {
		// they specified a file but we can't open it
		return
	}
	s := bufio.NewScanner(fin)
	s.Scan()
	if err = s.Err(); err != nil {
		fin.Close()
		return
	}
	r = s.Text()
	if err = fin.Close(); err != nil {
		return
	} else if r == `` {
		// there was nothing in the file?
		err = ErrEmptyEnvFile
	}
	return
}

func loadEnv(nm string) (s string, err error) {
	var ok bool
	if s, ok = os.LookupEnv(nm); ok {
		return
	}

	//try to load the FILE version
	if fp, ok := os.LookupEnv(nm + `_FILE`); ok {
		s, err = loadEnvFile(fp)
	} else {
		err = errNoEnvArg
	}
	return
}

// LoadEnvVar leaves *cnd untouched if it is already non-empty; otherwise it
// reads envName into *cnd if set, falling back to the envName+"_FILE"
// indirection (the first line of the named file), and to defVal if
// neither is present. qmanagerd's only string-valued environment
// variables (QMANAGER_PATH, QMANAGER_DATABASE_FILE) are the only
// callers, so this only needs the string case.
func LoadEnvVar(cnd *string, envName, defVal string) (err error) {
	if cnd == nil {
		return errors.New("nil destination")
	} else if len(*cnd) > 0 {
		return nil
	} else if len(envName) == 0 {
		return nil
	}
	if *cnd, err = loadEnv(envName); err != nil {
		if err == errNoEnvArg {
			err = nil
			*cnd = defVal
		}
	}
	return err
}
