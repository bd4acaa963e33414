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

// Package raftlog holds the in-memory, index-addressed log of replicated
// entries. Indices are contiguous starting at 0; entry terms are
// non-decreasing.
package raftlog

import (
	"taskmesh/internal/errors"
)

// Entry is a single replicated log entry: the term in which it was
// appended by a leader, and the opaque application payload it carries.
type Entry struct {
	Term    uint64
	Payload []byte
}

// Log is an ordered, append-friendly sequence of Entry values.
type Log struct {
	entries []Entry
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// FromSlice wraps an existing slice of entries as a Log, taking
// ownership of it (callers should not mutate the slice afterward).
func FromSlice(entries []Entry) *Log {
	return &Log{entries: entries}
}

// Len returns the number of entries in the log.
func (l *Log) Len() uint64 {
	return uint64(len(l.entries))
}

// IsEmpty reports whether the log has no entries.
func (l *Log) IsEmpty() bool {
	return len(l.entries) == 0
}

// Get returns the entry at index i.
func (l *Log) Get(i uint64) (Entry, error) {
	if i >= l.Len() {
		return Entry{}, errors.BoundsViolation("Log.Get", i, l.Len())
	}
	return l.entries[i], nil
}

// Last returns the final entry in the log, if any.
func (l *Log) Last() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// LastTerm returns the term of the last entry, or 0 if the log is empty.
func (l *Log) LastTerm() uint64 {
	if e, ok := l.Last(); ok {
		return e.Term
	}
	return 0
}

// SliceFrom returns the suffix of the log starting at index i: empty if
// i == Len(), an error if i > Len().
func (l *Log) SliceFrom(i uint64) ([]Entry, error) {
	if i > l.Len() {
		return nil, errors.BoundsViolation("Log.SliceFrom", i, l.Len())
	}
	out := make([]Entry, l.Len()-i)
	copy(out, l.entries[i:])
	return out, nil
}

// SliceTo returns the prefix of the log of length i.
func (l *Log) SliceTo(i uint64) ([]Entry, error) {
	if i > l.Len() {
		return nil, errors.BoundsViolation("Log.SliceTo", i, l.Len())
	}
	out := make([]Entry, i)
	copy(out, l.entries[:i])
	return out, nil
}

// Push appends a single entry to the log.
func (l *Log) Push(e Entry) {
	l.entries = append(l.entries, e)
}

// Append appends a batch of entries in order.
func (l *Log) Append(entries []Entry) {
	l.entries = append(l.entries, entries...)
}

// ReplaceAll discards the current log and replaces it wholesale, used
// for the prefix-preserving truncate-and-rewrite path.
func (l *Log) ReplaceAll(entries []Entry) {
	fresh := make([]Entry, len(entries))
	copy(fresh, entries)
	l.entries = fresh
}

// ToSlice returns a defensive copy of the full log contents.
func (l *Log) ToSlice() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
