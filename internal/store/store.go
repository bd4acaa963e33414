/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package store implements the Durable Store: the on-disk persistence of
per-node Raft state across restarts, backed by go.etcd.io/bbolt.

Five logical tables, each its own bbolt bucket:

  - current_term: a single big-endian u64.
  - voted_for: a single optional NodeId (absent when the bucket's only
    key is unset).
  - logs: an append-only ordered list of Log Entries, keyed by
    big-endian index.
  - commits_length: a single big-endian u64.
  - commits: an append-only ordered list of committed payloads, keyed
    by big-endian index.

Every mutating operation commits its own bbolt transaction before
returning, so by the time a caller observes a successful Put/Append
call the write is durable on disk. Callers rely on this: term and vote
must reach the store before the corresponding reply is sent, and log
entries must reach the store before they are reported as acked.
*/
package store

import (
	"encoding/binary"

	bolt "go.etcd.io/bbolt"

	"taskmesh/internal/errors"
	"taskmesh/internal/nodeid"
	"taskmesh/internal/raftlog"
)

var (
	bucketTerm          = []byte("current_term")
	bucketVote          = []byte("voted_for")
	bucketLogs          = []byte("logs")
	bucketCommitsLength = []byte("commits_length")
	bucketCommits       = []byte("commits")

	singletonKey = []byte("value")
)

// Durable is the persisted per-node state returned by Load.
type Durable struct {
	CurrentTerm  uint64
	VotedFor     *nodeid.NodeId
	Log          *raftlog.Log
	CommitLength uint64
	Commits      [][]byte
}

// Store is a bbolt-backed implementation of the Durable Store contract.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) a Store at path, ensuring all five
// buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTerm, bucketVote, bucketLogs, bucketCommitsLength, bucketCommits} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.StoreFailure("failed to initialize buckets", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the tuple of all durable fields, with defaults (0, nil,
// empty log, 0, no commits) for anything never written.
func (s *Store) Load() (Durable, error) {
	var d Durable
	d.Log = raftlog.New()

	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketTerm); b != nil {
			if v := b.Get(singletonKey); v != nil {
				d.CurrentTerm = binary.BigEndian.Uint64(v)
			}
		}
		if b := tx.Bucket(bucketVote); b != nil {
			if v := b.Get(singletonKey); v != nil && len(v) == nodeid.Size {
				id, err := nodeid.FromBytes(v)
				if err == nil {
					d.VotedFor = &id
				}
			}
		}
		if b := tx.Bucket(bucketLogs); b != nil {
			entries := make([]raftlog.Entry, 0, b.Stats().KeyN)
			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				entry, err := decodeEntry(v)
				if err != nil {
					return err
				}
				entries = append(entries, entry)
			}
			d.Log = raftlog.FromSlice(entries)
		}
		if b := tx.Bucket(bucketCommitsLength); b != nil {
			if v := b.Get(singletonKey); v != nil {
				d.CommitLength = binary.BigEndian.Uint64(v)
			}
		}
		if b := tx.Bucket(bucketCommits); b != nil {
			commits := make([][]byte, 0, b.Stats().KeyN)
			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				payload := make([]byte, len(v))
				copy(payload, v)
				commits = append(commits, payload)
			}
			d.Commits = commits
		}
		return nil
	})
	if err != nil {
		return Durable{}, errors.StoreFailure("failed to load durable state", err)
	}
	return d, nil
}

// PutTerm overwrites the current_term slot.
func (s *Store) PutTerm(term uint64) error {
	return s.putUint64(bucketTerm, term)
}

// PutCommitLength overwrites the commits_length slot.
func (s *Store) PutCommitLength(length uint64) error {
	return s.putUint64(bucketCommitsLength, length)
}

func (s *Store) putUint64(bucket []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(singletonKey, buf)
	})
	if err != nil {
		return errors.StoreFailure("failed to persist value", err)
	}
	return nil
}

// PutVote overwrites the voted_for slot. A nil id clears it.
func (s *Store) PutVote(id *nodeid.NodeId) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVote)
		if id == nil {
			return b.Delete(singletonKey)
		}
		return b.Put(singletonKey, id[:])
	})
	if err != nil {
		return errors.StoreFailure("failed to persist vote", err)
	}
	return nil
}

// AppendLog appends a single entry to the logs table, keyed by its
// position (the table's current length).
func (s *Store) AppendLog(entry raftlog.Entry) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogs)
		key := indexKey(uint64(b.Stats().KeyN))
		return b.Put(key, encodeEntry(entry))
	})
	if err != nil {
		return errors.StoreFailure("failed to append log entry", err)
	}
	return nil
}

// ReplaceLog wipes the logs table and reinserts entries wholesale, used
// for the prefix-preserving truncate-and-rewrite path.
func (s *Store) ReplaceLog(entries []raftlog.Entry) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketLogs); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(bucketLogs)
		if err != nil {
			return err
		}
		for i, e := range entries {
			if err := b.Put(indexKey(uint64(i)), encodeEntry(e)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.StoreFailure("failed to replace log", err)
	}
	return nil
}

// AppendCommit appends a payload to the commits mirror table.
func (s *Store) AppendCommit(payload []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommits)
		key := indexKey(uint64(b.Stats().KeyN))
		return b.Put(key, payload)
	})
	if err != nil {
		return errors.StoreFailure("failed to append commit", err)
	}
	return nil
}

func indexKey(i uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, i)
	return buf
}

func encodeEntry(e raftlog.Entry) []byte {
	buf := make([]byte, 0, 8+4+len(e.Payload))
	buf = binary.BigEndian.AppendUint64(buf, e.Term)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Payload)))
	buf = append(buf, e.Payload...)
	return buf
}

func decodeEntry(b []byte) (raftlog.Entry, error) {
	if len(b) < 12 {
		return raftlog.Entry{}, errors.StoreCorrupted("log entry record too short")
	}
	term := binary.BigEndian.Uint64(b[0:8])
	length := binary.BigEndian.Uint32(b[8:12])
	if uint32(len(b)-12) < length {
		return raftlog.Entry{}, errors.StoreCorrupted("log entry payload truncated")
	}
	payload := make([]byte, length)
	copy(payload, b[12:12+length])
	return raftlog.Entry{Term: term, Payload: payload}, nil
}
