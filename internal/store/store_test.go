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

package store

import (
	"bytes"
	"path/filepath"
	"testing"

	"taskmesh/internal/nodeid"
	"taskmesh/internal/raftlog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadDefaultsOnEmptyStore(t *testing.T) {
	s := openTestStore(t)
	d, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.CurrentTerm != 0 {
		t.Errorf("expected term 0, got %d", d.CurrentTerm)
	}
	if d.VotedFor != nil {
		t.Errorf("expected no vote, got %v", d.VotedFor)
	}
	if !d.Log.IsEmpty() {
		t.Errorf("expected empty log")
	}
	if d.CommitLength != 0 {
		t.Errorf("expected commit length 0, got %d", d.CommitLength)
	}
	if len(d.Commits) != 0 {
		t.Errorf("expected no commits")
	}
}

func TestPutTermPersists(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutTerm(5); err != nil {
		t.Fatalf("PutTerm: %v", err)
	}
	d, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.CurrentTerm != 5 {
		t.Errorf("got %d want 5", d.CurrentTerm)
	}
}

func TestPutVoteAndClear(t *testing.T) {
	s := openTestStore(t)
	id := nodeid.FromAddress("peer:1")
	if err := s.PutVote(&id); err != nil {
		t.Fatalf("PutVote: %v", err)
	}
	d, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.VotedFor == nil || *d.VotedFor != id {
		t.Fatalf("got %v want %v", d.VotedFor, id)
	}

	if err := s.PutVote(nil); err != nil {
		t.Fatalf("PutVote(nil): %v", err)
	}
	d, err = s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.VotedFor != nil {
		t.Fatalf("expected vote cleared, got %v", d.VotedFor)
	}
}

func TestAppendLogOrderPreserved(t *testing.T) {
	s := openTestStore(t)
	entries := []raftlog.Entry{
		{Term: 1, Payload: []byte("a")},
		{Term: 1, Payload: []byte("b")},
		{Term: 2, Payload: []byte("c")},
	}
	for _, e := range entries {
		if err := s.AppendLog(e); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}
	d, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := d.Log.ToSlice()
	if len(got) != len(entries) {
		t.Fatalf("got %d entries want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if got[i].Term != e.Term || !bytes.Equal(got[i].Payload, e.Payload) {
			t.Errorf("entry %d: got %+v want %+v", i, got[i], e)
		}
	}
}

func TestReplaceLogWipesAndReinserts(t *testing.T) {
	s := openTestStore(t)
	for _, e := range []raftlog.Entry{{Term: 1, Payload: []byte("a")}, {Term: 1, Payload: []byte("b")}} {
		if err := s.AppendLog(e); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}

	replacement := []raftlog.Entry{{Term: 1, Payload: []byte("a")}, {Term: 2, Payload: []byte("x")}}
	if err := s.ReplaceLog(replacement); err != nil {
		t.Fatalf("ReplaceLog: %v", err)
	}

	d, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := d.Log.ToSlice()
	if len(got) != 2 || !bytes.Equal(got[1].Payload, []byte("x")) {
		t.Fatalf("got %+v", got)
	}

	// AppendLog after replace must key off the new length, not the old.
	if err := s.AppendLog(raftlog.Entry{Term: 2, Payload: []byte("y")}); err != nil {
		t.Fatalf("AppendLog after replace: %v", err)
	}
	d, err = s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got = d.Log.ToSlice()
	if len(got) != 3 || !bytes.Equal(got[2].Payload, []byte("y")) {
		t.Fatalf("got %+v", got)
	}
}

func TestAppendCommitOrderPreserved(t *testing.T) {
	s := openTestStore(t)
	payloads := [][]byte{[]byte("x"), []byte("y"), []byte("z")}
	for _, p := range payloads {
		if err := s.AppendCommit(p); err != nil {
			t.Fatalf("AppendCommit: %v", err)
		}
	}
	d, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(d.Commits) != 3 {
		t.Fatalf("got %d commits want 3", len(d.Commits))
	}
	for i, p := range payloads {
		if !bytes.Equal(d.Commits[i], p) {
			t.Errorf("commit %d: got %v want %v", i, d.Commits[i], p)
		}
	}
}

func TestRestartFidelity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id := nodeid.FromAddress("peer:1")
	if err := s.PutTerm(3); err != nil {
		t.Fatalf("PutTerm: %v", err)
	}
	if err := s.PutVote(&id); err != nil {
		t.Fatalf("PutVote: %v", err)
	}
	if err := s.AppendLog(raftlog.Entry{Term: 3, Payload: []byte("p")}); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if err := s.PutCommitLength(1); err != nil {
		t.Fatalf("PutCommitLength: %v", err)
	}
	if err := s.AppendCommit([]byte("p")); err != nil {
		t.Fatalf("AppendCommit: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	d, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load after restart: %v", err)
	}
	if d.CurrentTerm != 3 {
		t.Errorf("term: got %d want 3", d.CurrentTerm)
	}
	if d.VotedFor == nil || *d.VotedFor != id {
		t.Errorf("vote: got %v want %v", d.VotedFor, id)
	}
	if d.CommitLength != 1 {
		t.Errorf("commit length: got %d want 1", d.CommitLength)
	}
	if len(d.Commits) != 1 || !bytes.Equal(d.Commits[0], []byte("p")) {
		t.Errorf("commits: got %v", d.Commits)
	}
}
