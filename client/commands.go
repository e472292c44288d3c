/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package client

import (
	"strconv"

	"github.com/bsd-hacker/qmanager/internal/wire"
)

// Machine is the decoded form of one row in a status reply.
type Machine struct {
	Name, Domain, PrimaryPool, Arch string
	Pools, ACL                      []string
	OSVersion, NumCPUs, MaxJobs     int64
	HasZFS, Online                  bool
	CurJobs                         int64
}

// Job is the decoded form of one row in a jobs reply.
type Job struct {
	ID                 uint64
	Name, Type         string
	Priority           int64
	Owner              uint32
	Machines           []string
	StartTime          int64
	Running            bool
}

// Status returns every machine matching mdl along with its current load.
func (c *Conn) Status(mdl []string) ([]Machine, error) {
	status, args, err := c.do(wire.CmdStatus, wire.Args{"mdl": stringList(mdl)})
	if err != nil {
		return nil, err
	}
	if err := asError(status, args); err != nil {
		return nil, err
	}
	v, ok := args["machines"]
	if !ok {
		return nil, nil
	}
	out := make([]Machine, 0, len(v.List))
	for _, row := range v.List {
		m, err := decodeMachine(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Jobs returns every in-flight job, running or blocked.
func (c *Conn) Jobs() ([]Job, error) {
	status, args, err := c.do(wire.CmdJobs, wire.Args{})
	if err != nil {
		return nil, err
	}
	if err := asError(status, args); err != nil {
		return nil, err
	}
	v, ok := args["jobs"]
	if !ok {
		return nil, nil
	}
	out := make([]Job, 0, len(v.List))
	for _, row := range v.List {
		j, err := decodeJob(row)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Try places name on the least-loaded machine matching mdl immediately,
// or returns a *StatusError (403 if every match is full).
func (c *Conn) Try(name, jobType string, priority int64, mdl []string) (machine string, id uint64, err error) {
	return c.place(wire.CmdTry, name, jobType, priority, mdl)
}

// Acquire behaves like Try, but blocks -- holding the connection open --
// until a slot frees up if none is available now.
func (c *Conn) Acquire(name, jobType string, priority int64, mdl []string) (machine string, id uint64, err error) {
	return c.place(wire.CmdAcquire, name, jobType, priority, mdl)
}

func (c *Conn) place(cmd, name, jobType string, priority int64, mdl []string) (machine string, id uint64, err error) {
	args := wire.Args{
		"name": wire.String(name), "type": wire.String(jobType),
		"priority": wire.Int64(priority), "mdl": stringList(mdl),
	}
	status, reply, err := c.do(cmd, args)
	if err != nil {
		return "", 0, err
	}
	if status == wire.StatusOKBlocking {
		// the job is blocked: wait for the final frame (allocation or
		// cancellation) before returning.
		status, reply, err = c.readFrame()
		if err != nil {
			return "", 0, err
		}
	}
	if err := asError(status, reply); err != nil {
		return "", 0, err
	}
	return machineAndID(reply)
}

// Release frees the machine slot job id is running on, possibly
// promoting a blocked job into it.
func (c *Conn) Release(id uint64) error {
	status, args, err := c.do(wire.CmdRelease, wire.Args{"id": wire.Int64(int64(id))})
	if err != nil {
		return err
	}
	return asError(status, args)
}

// Reconnect re-attaches this connection to a still-blocked job, blocking
// until it is promoted or cancelled, just like Acquire.
func (c *Conn) Reconnect(id uint64) (machine string, newID uint64, err error) {
	status, reply, err := c.do(wire.CmdReconnect, wire.Args{"id": wire.Int64(int64(id))})
	if err != nil {
		return "", 0, err
	}
	if status == wire.StatusJobReconnected {
		status, reply, err = c.readFrame()
		if err != nil {
			return "", 0, err
		}
	}
	if err := asError(status, reply); err != nil {
		return "", 0, err
	}
	return machineAndID(reply)
}

// AddMachine registers a new build machine.
func (c *Conn) AddMachine(m Machine) error {
	args := wire.Args{
		"name": wire.String(m.Name), "domain": wire.String(m.Domain),
		"primarypool": wire.String(m.PrimaryPool), "pools": stringList(m.Pools),
		"arch": wire.String(m.Arch), "osversion": wire.Int64(m.OSVersion),
		"numcpus": wire.Int64(m.NumCPUs), "maxjobs": wire.Int64(m.MaxJobs),
		"haszfs": wire.Bool(m.HasZFS), "acl": stringList(m.ACL), "online": wire.Bool(m.Online),
	}
	status, reply, err := c.do(wire.CmdAdd, args)
	if err != nil {
		return err
	}
	return asError(status, reply)
}

// UpdateMachine patches fields of an existing machine. Only fields
// present in fields are sent.
func (c *Conn) UpdateMachine(name string, fields wire.Args) error {
	args := wire.Args{"name": wire.String(name)}
	for k, v := range fields {
		args[k] = v
	}
	status, reply, err := c.do(wire.CmdUpdate, args)
	if err != nil {
		return err
	}
	return asError(status, reply)
}

// DeleteMachine removes a machine; rejected if it has any job.
func (c *Conn) DeleteMachine(name string) error {
	status, reply, err := c.do(wire.CmdDelete, wire.Args{"name": wire.String(name)})
	if err != nil {
		return err
	}
	return asError(status, reply)
}

// AddACL registers a new named ACL rule.
func (c *Conn) AddACL(name string, uids, gids []uint32, sense bool) error {
	args := wire.Args{
		"name": wire.String(name), "uidlist": uint32List(uids),
		"gidlist": uint32List(gids), "sense": wire.Bool(sense),
	}
	status, reply, err := c.do(wire.CmdAddACL, args)
	if err != nil {
		return err
	}
	return asError(status, reply)
}

// UpdateACL patches an existing ACL rule. Only fields present in fields
// are sent.
func (c *Conn) UpdateACL(name string, fields wire.Args) error {
	args := wire.Args{"name": wire.String(name)}
	for k, v := range fields {
		args[k] = v
	}
	status, reply, err := c.do(wire.CmdUpdateACL, args)
	if err != nil {
		return err
	}
	return asError(status, reply)
}

// DelACL removes an ACL rule; rejected if any machine still references it.
func (c *Conn) DelACL(name string) error {
	status, reply, err := c.do(wire.CmdDelACL, wire.Args{"name": wire.String(name)})
	if err != nil {
		return err
	}
	return asError(status, reply)
}

// ArgsMap is the argument mapping UpdateMachine/UpdateACL take as a
// partial patch; callers build one with Args and the *Value helpers
// below without needing to import the wire package directly.
type ArgsMap = wire.Args

// Args returns an empty ArgsMap ready for StringValue/Int64Value/etc. to
// be inserted into.
func Args() ArgsMap { return ArgsMap{} }

// StringValue wraps s for use in an ArgsMap.
func StringValue(s string) wire.Value { return wire.String(s) }

// Int64Value wraps n for use in an ArgsMap.
func Int64Value(n int64) wire.Value { return wire.Int64(n) }

// BoolValue wraps b for use in an ArgsMap.
func BoolValue(b bool) wire.Value { return wire.Bool(b) }

// StringListValue wraps ss for use in an ArgsMap.
func StringListValue(ss []string) wire.Value { return stringList(ss) }

// Uint32ListValue wraps ns for use in an ArgsMap.
func Uint32ListValue(ns []uint32) wire.Value { return uint32List(ns) }

func stringList(ss []string) wire.Value {
	vs := make([]wire.Value, len(ss))
	for i, s := range ss {
		vs[i] = wire.String(s)
	}
	return wire.List(vs)
}

func uint32List(ns []uint32) wire.Value {
	vs := make([]wire.Value, len(ns))
	for i, n := range ns {
		vs[i] = wire.String(strconv.FormatUint(uint64(n), 10))
	}
	return wire.List(vs)
}

func machineAndID(args wire.Args) (string, uint64, error) {
	mv, ok := args["machine"]
	if !ok {
		return "", 0, nil
	}
	name, err := mv.AsString()
	if err != nil {
		return "", 0, err
	}
	idv, ok := args["id"]
	if !ok {
		return name, 0, nil
	}
	id, err := idv.AsInt64()
	if err != nil {
		return "", 0, err
	}
	return name, uint64(id), nil
}

func decodeMachine(v wire.Value) (Machine, error) {
	if len(v.List) != 12 {
		return Machine{}, errBadRow("machine", len(v.List))
	}
	pools, err := v.List[3].AsStrings()
	if err != nil {
		return Machine{}, err
	}
	acl, err := v.List[11].AsStrings()
	if err != nil {
		return Machine{}, err
	}
	return Machine{
		Name: v.List[0].Str, Domain: v.List[1].Str, PrimaryPool: v.List[2].Str,
		Pools: pools, Arch: v.List[4].Str, OSVersion: v.List[5].Int,
		NumCPUs: v.List[6].Int, MaxJobs: v.List[7].Int, HasZFS: v.List[8].Bool,
		Online: v.List[9].Bool, CurJobs: v.List[10].Int, ACL: acl,
	}, nil
}

func decodeJob(v wire.Value) (Job, error) {
	if len(v.List) != 8 {
		return Job{}, errBadRow("job", len(v.List))
	}
	machines, err := v.List[5].AsStrings()
	if err != nil {
		return Job{}, err
	}
	return Job{
		ID: uint64(v.List[0].Int), Name: v.List[1].Str, Type: v.List[2].Str,
		Priority: v.List[3].Int, Owner: uint32(v.List[4].Int), Machines: machines,
		StartTime: v.List[6].Int, Running: v.List[7].Bool,
	}, nil
}

func errBadRow(kind string, n int) error {
	return &StatusError{Code: 0, Body: "malformed " + kind + " row, got " + strconv.Itoa(n) + " fields"}
}
