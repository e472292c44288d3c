/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import "os"

// defaultSocketPermissions is the fixed mode applied to the admission
// socket so any local user may connect to it.
const defaultSocketPermissions = 0666

// Config is qmanagerd's configuration file.
type Config struct {
	Global struct {
		QMANAGER_Path          string
		QMANAGER_Database_File string
		Socket_Path            string
		Socket_Permissions     uint32
		Log_Level              string
		Log_File               string
		Log_File_Max_Size_MB   int64
		Log_File_Max_History   uint
	}
}

// Load reads path via LoadConfigFile, fills QMANAGER_Path and
// QMANAGER_Database_File from the QMANAGER_PATH and QMANAGER_DATABASE_FILE
// environment variables (and their _FILE indirections) via LoadEnvVar where
// the file left them blank, and fills in defaults for anything the file and
// environment both left blank. A value set in the file is kept.
func Load(path string) (*Config, error) {
	var c Config
	if err := LoadConfigFile(&c, path); err != nil {
		return nil, err
	}
	if err := LoadEnvVar(&c.Global.QMANAGER_Path, "QMANAGER_PATH", c.Global.QMANAGER_Path); err != nil {
		return nil, err
	}
	if err := LoadEnvVar(&c.Global.QMANAGER_Database_File, "QMANAGER_DATABASE_FILE", c.Global.QMANAGER_Database_File); err != nil {
		return nil, err
	}
	if c.Global.Socket_Path == "" {
		c.Global.Socket_Path = "/tmp/.qmgr"
	}
	if c.Global.Socket_Permissions == 0 {
		c.Global.Socket_Permissions = defaultSocketPermissions
	}
	if c.Global.Log_Level == "" {
		c.Global.Log_Level = "INFO"
	}
	return &c, nil
}

// DatabasePath joins QMANAGER_Path and QMANAGER_Database_File into the
// catalog file path the source reads from a single QMANAGER_PATH-rooted
// location.
func (c *Config) DatabasePath() string {
	if c.Global.QMANAGER_Database_File == "" {
		return c.Global.QMANAGER_Path
	}
	return c.Global.QMANAGER_Path + string(os.PathSeparator) + c.Global.QMANAGER_Database_File
}
