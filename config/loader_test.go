/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
[global]
QMANAGER-Path = /var/portbuild
QMANAGER-Database-File = qmanager.db
Socket-Path = /tmp/.qmgr
Socket-Permissions = 0666
Log-Level = INFO
Log-File = /var/log/qmanagerd.log
Log-File-Max-Size-MB = 8
Log-File-Max-History = 5
`

func TestLoadConfigBytes(t *testing.T) {
	var c Config
	if err := LoadConfigBytes(&c, []byte(sampleConfig)); err != nil {
		t.Fatal(err)
	}
	if c.Global.QMANAGER_Path != "/var/portbuild" {
		t.Fatalf("bad QMANAGER_Path: %q", c.Global.QMANAGER_Path)
	}
	if c.Global.QMANAGER_Database_File != "qmanager.db" {
		t.Fatalf("bad QMANAGER_Database_File: %q", c.Global.QMANAGER_Database_File)
	}
	if c.Global.Socket_Path != "/tmp/.qmgr" {
		t.Fatalf("bad Socket_Path: %q", c.Global.Socket_Path)
	}
	if c.Global.Log_File_Max_Size_MB != 8 {
		t.Fatalf("bad Log_File_Max_Size_MB: %d", c.Global.Log_File_Max_Size_MB)
	}
	if c.Global.Log_File_Max_History != 5 {
		t.Fatalf("bad Log_File_Max_History: %d", c.Global.Log_File_Max_History)
	}
}

func TestLoadConfigFileTooLarge(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "huge.conf")
	big := make([]byte, maxConfigSize+1)
	if err := os.WriteFile(p, big, 0644); err != nil {
		t.Fatal(err)
	}
	var c Config
	if err := LoadConfigFile(&c, p); err != ErrConfigFileTooLarge {
		t.Fatalf("expected ErrConfigFileTooLarge, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "qmanagerd.conf")
	if err := os.WriteFile(p, []byte("[global]\nQMANAGER-Path = /var/portbuild\n"), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Global.Socket_Path != "/tmp/.qmgr" {
		t.Fatalf("expected default socket path, got %q", c.Global.Socket_Path)
	}
	if c.Global.Socket_Permissions != defaultSocketPermissions {
		t.Fatalf("expected default socket permissions, got %o", c.Global.Socket_Permissions)
	}
	if c.DatabasePath() != "/var/portbuild" {
		t.Fatalf("expected DatabasePath to fall back to QMANAGER_Path, got %q", c.DatabasePath())
	}
}
