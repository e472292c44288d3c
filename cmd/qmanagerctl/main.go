/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Command qmanagerctl is the queue manager's interactive/scriptable
// client: a thin cobra CLI wrapping package client, one subcommand per
// wire command, plus dump (a direct read of the catalog file, grounded
// on dumpdb.py) and version.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bsd-hacker/qmanager/client"
	"github.com/bsd-hacker/qmanager/internal/catalog"
	"github.com/bsd-hacker/qmanager/version"
)

const defaultSocketPath = "/tmp/.qmgr"

var socketPath string

func main() {
	root := &cobra.Command{
		Use:           "qmanagerctl",
		Short:         "Query and administer a running qmanagerd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath, "admission socket path")

	root.AddCommand(
		statusCmd(), tryCmd(), acquireCmd(), releaseCmd(), jobsCmd(), reconnectCmd(),
		addCmd(), updateCmd(), deleteCmd(),
		addACLCmd(), updateACLCmd(), delACLCmd(),
		dumpCmd(), versionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "qmanagerctl:", err)
		os.Exit(1)
	}
}

func dial() (*client.Conn, error) { return client.Dial(socketPath) }

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func statusCmd() *cobra.Command {
	var mdl string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List machines matching a constraint list",
		RunE: func(*cobra.Command, []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			machines, err := c.Status(splitList(mdl))
			if err != nil {
				return err
			}
			for _, m := range machines {
				fmt.Printf("%-20s domain=%-15s pool=%-10s arch=%-8s cpus=%-3d jobs=%d/%d online=%v zfs=%v pools=%v acl=%v\n",
					m.Name, m.Domain, m.PrimaryPool, m.Arch, m.NumCPUs, m.CurJobs, m.MaxJobs, m.Online, m.HasZFS, m.Pools, m.ACL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mdl, "mdl", "", "comma-separated machine description list")
	return cmd
}

func jobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List every in-flight job",
		RunE: func(*cobra.Command, []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			jobs, err := c.Jobs()
			if err != nil {
				return err
			}
			for _, j := range jobs {
				state := "blocked"
				if j.Running {
					state = "running"
				}
				fmt.Printf("id=%-6d name=%-20s type=%-10s owner=%-6d priority=%-4d state=%-8s machines=%v\n",
					j.ID, j.Name, j.Type, j.Owner, j.Priority, state, j.Machines)
			}
			return nil
		},
	}
}

func placeCmd(use, short string, acquire bool) *cobra.Command {
	var (
		jobType  string
		priority int64
		mdl      string
	)
	cmd := &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			var (
				machine string
				id      uint64
			)
			if acquire {
				machine, id, err = c.Acquire(args[0], jobType, priority, splitList(mdl))
			} else {
				machine, id, err = c.Try(args[0], jobType, priority, splitList(mdl))
			}
			if err != nil {
				return err
			}
			fmt.Printf("id=%d machine=%s\n", id, machine)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "", "job type")
	cmd.Flags().Int64Var(&priority, "priority", 0, "job priority")
	cmd.Flags().StringVar(&mdl, "mdl", "", "comma-separated machine description list")
	return cmd
}

func tryCmd() *cobra.Command     { return placeCmd("try", "Place a job if a machine is free now", false) }
func acquireCmd() *cobra.Command { return placeCmd("acquire", "Place a job, blocking until a machine is free", true) }

func releaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release <id>",
		Short: "Release the machine a job is running on",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Release(id)
		},
	}
	return cmd
}

func reconnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconnect <id>",
		Short: "Reattach to a still-blocked job, blocking until it is promoted",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			machine, newID, err := c.Reconnect(id)
			if err != nil {
				return err
			}
			fmt.Printf("id=%d machine=%s\n", newID, machine)
			return nil
		},
	}
	return cmd
}

func addCmd() *cobra.Command {
	m := client.Machine{}
	var pools, acl string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new build machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			m.Name = args[0]
			m.Pools = splitList(pools)
			m.ACL = splitList(acl)
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.AddMachine(m)
		},
	}
	cmd.Flags().StringVar(&m.Domain, "domain", "", "machine domain")
	cmd.Flags().StringVar(&m.PrimaryPool, "primarypool", "", "primary pool name")
	cmd.Flags().StringVar(&pools, "pools", "", "comma-separated pool list")
	cmd.Flags().StringVar(&m.Arch, "arch", "", "architecture")
	cmd.Flags().Int64Var(&m.OSVersion, "osversion", 0, "OS version")
	cmd.Flags().Int64Var(&m.NumCPUs, "numcpus", 0, "CPU count")
	cmd.Flags().Int64Var(&m.MaxJobs, "maxjobs", 0, "maximum concurrent jobs")
	cmd.Flags().BoolVar(&m.HasZFS, "haszfs", false, "machine has ZFS")
	cmd.Flags().StringVar(&acl, "acl", "", "comma-separated ACL name list")
	cmd.Flags().BoolVar(&m.Online, "online", true, "machine accepts new jobs")
	return cmd
}

func updateCmd() *cobra.Command {
	fs := map[string]*string{}
	fields := []string{"domain", "primarypool", "pools", "arch", "osversion", "numcpus", "maxjobs", "haszfs", "acl", "online"}
	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Patch fields of an existing machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cc *cobra.Command, args []string) error {
			patch, err := buildUpdateArgs(cc, fs)
			if err != nil {
				return err
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.UpdateMachine(args[0], patch)
		},
	}
	for _, f := range fields {
		v := new(string)
		cmd.Flags().StringVar(v, f, "", "new value for "+f+" (omit to leave unchanged)")
		fs[f] = v
	}
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a machine with no running or blocked jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.DeleteMachine(args[0])
		},
	}
}

func addACLCmd() *cobra.Command {
	var uids, gids string
	var sense bool
	cmd := &cobra.Command{
		Use:   "add-acl <name>",
		Short: "Register a new named ACL rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			u, err := parseUintList(uids)
			if err != nil {
				return err
			}
			g, err := parseUintList(gids)
			if err != nil {
				return err
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.AddACL(args[0], u, g, sense)
		},
	}
	cmd.Flags().StringVar(&uids, "uids", "", "comma-separated uid list")
	cmd.Flags().StringVar(&gids, "gids", "", "comma-separated gid list")
	cmd.Flags().BoolVar(&sense, "sense", true, "true=allow listed principals, false=deny")
	return cmd
}

func updateACLCmd() *cobra.Command {
	var uids, gids string
	var senseSet bool
	var sense bool
	cmd := &cobra.Command{
		Use:   "update-acl <name>",
		Short: "Patch an existing ACL rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cc *cobra.Command, args []string) error {
			patch := client.Args()
			if cc.Flags().Changed("uids") {
				u, err := parseUintList(uids)
				if err != nil {
					return err
				}
				patch["uidlist"] = client.Uint32ListValue(u)
			}
			if cc.Flags().Changed("gids") {
				g, err := parseUintList(gids)
				if err != nil {
					return err
				}
				patch["gidlist"] = client.Uint32ListValue(g)
			}
			if senseSet {
				patch["sense"] = client.BoolValue(sense)
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.UpdateACL(args[0], patch)
		},
	}
	cmd.Flags().StringVar(&uids, "uids", "", "comma-separated uid list")
	cmd.Flags().StringVar(&gids, "gids", "", "comma-separated gid list")
	cmd.Flags().BoolVar(&sense, "sense", true, "true=allow listed principals, false=deny")
	cmd.PreRun = func(cc *cobra.Command, _ []string) { senseSet = cc.Flags().Changed("sense") }
	return cmd
}

func delACLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del-acl <name>",
		Short: "Remove an ACL rule not referenced by any machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.DelACL(args[0])
		},
	}
}

func dumpCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump every row of a catalog file without contacting qmanagerd",
		RunE: func(*cobra.Command, []string) error {
			store, err := catalog.OpenReadOnly(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			acls, machines, jobs, err := store.LoadAll()
			if err != nil {
				return err
			}
			fmt.Println("acls:")
			for _, a := range acls {
				fmt.Printf("  name=%s uids=%v gids=%v sense=%v\n", a.Name, a.UIDs, a.GIDs, a.Sense)
			}
			fmt.Println("machines:")
			for _, m := range machines {
				fmt.Printf("  name=%s domain=%s pool=%s pools=%v arch=%s osversion=%d numcpus=%d maxjobs=%d haszfs=%v online=%v acl=%v\n",
					m.Name, m.Domain, m.PrimaryPool, m.Pools, m.Arch, m.OSVersion, m.NumCPUs, m.MaxJobs, m.HasZFS, m.Online, m.ACL)
			}
			fmt.Println("jobs:")
			for _, j := range jobs {
				fmt.Printf("  id=%d name=%s type=%s priority=%d owner=%d gids=%v machines=%v starttime=%d mdl=%v running=%v\n",
					j.ID, j.Name, j.Type, j.Priority, j.Owner, j.GIDs, j.Machines, j.StartTime, j.MDL, j.Running)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the catalog file")
	cmd.MarkFlagRequired("db")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(*cobra.Command, []string) error {
			version.PrintVersion(os.Stdout)
			return nil
		},
	}
}

func buildUpdateArgs(cc *cobra.Command, fs map[string]*string) (client.ArgsMap, error) {
	patch := client.Args()
	for name, v := range fs {
		if !cc.Flags().Changed(name) {
			continue
		}
		switch name {
		case "pools", "acl":
			patch[name] = client.StringListValue(splitList(*v))
		case "osversion", "numcpus", "maxjobs":
			n, err := strconv.ParseInt(*v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			patch[name] = client.Int64Value(n)
		case "haszfs", "online":
			b, err := strconv.ParseBool(*v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			patch[name] = client.BoolValue(b)
		default:
			patch[name] = client.StringValue(*v)
		}
	}
	return patch, nil
}

func parseUintList(s string) ([]uint32, error) {
	parts := splitList(s)
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, err
		}
		out = append(out, uint32(n))
	}
	return out, nil
}
