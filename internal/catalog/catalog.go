/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package catalog is the durable store for ACL rules, machines, and job
// rows: a single bbolt file with one bucket per entity.
package catalog

import (
	"bytes"
	"encoding/gob"
	"errors"
	"os"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	dbTimeout       = 500 * time.Millisecond
	dbInitMmapSize  = 1024 * 1024
	dbOpenMode      = os.FileMode(0660)
)

var (
	bucketACL      = []byte("acl")
	bucketMachines = []byte("machines")
	bucketJobs     = []byte("jobs")
)

var (
	// ErrLocked is returned when another process already holds the
	// catalog file open.
	ErrLocked = errors.New("catalog: database is locked by another process")
	// ErrNotFound is returned by a per-entity Delete when the named
	// row does not exist.
	ErrNotFound = errors.New("catalog: no such row")
)

// ACLRow is the persisted form of an ACL rule.
type ACLRow struct {
	Name string
	UIDs []uint32
	GIDs []uint32
	Sense bool
}

// MachineRow is the persisted form of a machine.
type MachineRow struct {
	Name        string
	Domain      string
	PrimaryPool string
	Pools       []string
	Arch        string
	OSVersion   int64
	NumCPUs     int64
	MaxJobs     int64
	HasZFS      bool
	Online      bool
	ACL         []string
}

// JobRow is the persisted form of a job.
type JobRow struct {
	ID        uint64
	Name      string
	Type      string
	Priority  int64
	Owner     uint32
	GIDs      []uint32
	Machines  []string
	StartTime int64
	MDL       []string
	Running   bool
}

// Store wraps a bbolt database holding the acl/machines/jobs buckets.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the catalog file at path, ensures all
// three buckets exist, and performs crash recovery: every job row is
// unconditionally deleted, since revalidating blocked jobs across a
// restart is not implemented (qmanagerobj.py's startup() does the same --
// its commented-out restore-and-revalidate path was never finished).
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, dbOpenMode, &bolt.Options{
		Timeout:         dbTimeout,
		InitialMmapSize: dbInitMmapSize,
	})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, ErrLocked
		}
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketACL, bucketMachines, bucketJobs} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		// Crash recovery: forget every job row (qmanagerobj.py's
		// startup() does the same; its restore path was never finished).
		jb := tx.Bucket(bucketJobs)
		c := jb.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := jb.Delete(k); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenReadOnly opens the catalog file without mutating it, for the
// dumpdb/qmanagerctl-dump introspection tool.
func OpenReadOnly(path string) (*Store, error) {
	db, err := bolt.Open(path, dbOpenMode, &bolt.Options{
		Timeout:  dbTimeout,
		ReadOnly: true,
	})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, ErrLocked
		}
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

// LoadAll returns every ACL, machine, and job row currently in the store,
// in bucket key order.
func (s *Store) LoadAll() (acls []ACLRow, machines []MachineRow, jobs []JobRow, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		if e := tx.Bucket(bucketACL).ForEach(func(_, v []byte) error {
			var row ACLRow
			if e := decode(v, &row); e != nil {
				return e
			}
			acls = append(acls, row)
			return nil
		}); e != nil {
			return e
		}
		if e := tx.Bucket(bucketMachines).ForEach(func(_, v []byte) error {
			var row MachineRow
			if e := decode(v, &row); e != nil {
				return e
			}
			machines = append(machines, row)
			return nil
		}); e != nil {
			return e
		}
		return tx.Bucket(bucketJobs).ForEach(func(_, v []byte) error {
			var row JobRow
			if e := decode(v, &row); e != nil {
				return e
			}
			jobs = append(jobs, row)
			return nil
		})
	})
	return
}

// PutACL inserts or updates an ACL row.
func (s *Store) PutACL(row ACLRow) error {
	return s.put(bucketACL, []byte(row.Name), row)
}

// DeleteACL removes an ACL row by name.
func (s *Store) DeleteACL(name string) error {
	return s.delete(bucketACL, []byte(name))
}

// PutMachine inserts or updates a machine row.
func (s *Store) PutMachine(row MachineRow) error {
	return s.put(bucketMachines, []byte(row.Name), row)
}

// DeleteMachine removes a machine row by name.
func (s *Store) DeleteMachine(name string) error {
	return s.delete(bucketMachines, []byte(name))
}

// PutJob inserts or updates a job row.
func (s *Store) PutJob(row JobRow) error {
	return s.put(bucketJobs, jobKey(row.ID), row)
}

// DeleteJob removes a job row by id.
func (s *Store) DeleteJob(id uint64) error {
	return s.delete(bucketJobs, jobKey(id))
}

// NextJobID allocates the next monotonically increasing job id, replacing
// the SQL autoincrement primary key of the source schema.
func (s *Store) NextJobID() (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		n, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = n
		return nil
	})
	return id, err
}

func (s *Store) put(bucket, key []byte, v interface{}) error {
	buf, err := encode(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, buf)
	})
}

func (s *Store) delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get(key) == nil {
			return ErrNotFound
		}
		return b.Delete(key)
	})
}

func jobKey(id uint64) []byte {
	return []byte(strconv.FormatUint(id, 10))
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(b []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
