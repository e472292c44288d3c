/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Command qmanagerd is the queue manager daemon: it opens the catalog,
// rebuilds the scheduler's runtime state, and serves the admission socket
// until signalled to stop.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/crewjam/rfc5424"
	"golang.org/x/sync/errgroup"

	"github.com/bsd-hacker/qmanager/config"
	"github.com/bsd-hacker/qmanager/internal/catalog"
	qlog "github.com/bsd-hacker/qmanager/internal/log"
	"github.com/bsd-hacker/qmanager/internal/log/rotate"
	"github.com/bsd-hacker/qmanager/internal/scheduler"
	"github.com/bsd-hacker/qmanager/internal/server"
	"github.com/bsd-hacker/qmanager/utils"
	"github.com/bsd-hacker/qmanager/version"
)

const defaultConfigLoc = `/usr/local/etc/qmanagerd.conf`

var (
	confLoc = flag.String("config-file", defaultConfigLoc, "Location for configuration file")
	ver     = flag.Bool("version", false, "Print the version information and exit")
)

func main() {
	flag.Parse()
	if *ver {
		version.PrintVersion(os.Stdout)
		os.Exit(0)
	}

	lg, err := qlog.NewStderrLogger("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get stderr logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*confLoc)
	if err != nil {
		lg.FatalCode(1, fmt.Sprintf("failed to load configuration: %v", err))
		return
	}

	if cfg.Global.Log_File != "" {
		maxSize := cfg.Global.Log_File_Max_Size_MB * 1024 * 1024
		fout, err := rotate.OpenEx(cfg.Global.Log_File, 0640, maxSize, cfg.Global.Log_File_Max_History, true)
		if err != nil {
			lg.FatalCode(1, fmt.Sprintf("failed to open log file %s: %v", cfg.Global.Log_File, err))
			return
		}
		if err := lg.AddWriter(fout); err != nil {
			lg.FatalCode(1, fmt.Sprintf("failed to add log writer: %v", err))
			return
		}
	}
	if err := lg.SetLevelString(cfg.Global.Log_Level); err != nil {
		lg.FatalCode(1, fmt.Sprintf("invalid log level %q: %v", cfg.Global.Log_Level, err))
		return
	}
	kvlg := qlog.NewLoggerWithKV(lg)
	kvlg.AddKV(rfc5424.SDParam{Name: "pid", Value: strconv.Itoa(os.Getpid())})

	store, err := catalog.Open(cfg.DatabasePath())
	if err != nil {
		lg.FatalCode(1, fmt.Sprintf("failed to open catalog %s: %v", cfg.DatabasePath(), err))
		return
	}
	defer store.Close()

	sched, err := scheduler.New(store, kvlg)
	if err != nil {
		lg.FatalCode(1, fmt.Sprintf("failed to rebuild scheduler state: %v", err))
		return
	}

	srv := server.New(cfg.Global.Socket_Path, os.FileMode(cfg.Global.Socket_Permissions), sched, kvlg)
	ln, err := srv.Listen()
	if err != nil {
		lg.FatalCode(1, fmt.Sprintf("failed to bind admission socket %s: %v", cfg.Global.Socket_Path, err))
		return
	}

	schedStop := make(chan struct{})
	var eg errgroup.Group
	eg.Go(func() error {
		sched.Run(schedStop)
		return nil
	})
	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})

	lg.Info("qmanagerd running")
	sig := utils.WaitForQuit()
	lg.Info(fmt.Sprintf("received signal %v, shutting down", sig))

	ln.Close()
	close(schedStop)
	if err := eg.Wait(); err != nil {
		lg.Error(fmt.Sprintf("shutdown error: %v", err))
	}
}
