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
Package consensus implements the Replication State Machine: the Raft
role machine (Follower / Candidate / Leader), election and heartbeat
timers, vote tallying, log-request/response handling, and commit
advancement. It is the heart of the replication core.

State Machine Overview:
========================

Each node can be in one of three roles:
  - Follower: passive, responds to leader/candidate requests
  - Candidate: actively seeking votes to become leader
  - Leader: replicates submitted payloads to followers

Term-Based Leadership:
=======================

Time is divided into terms (monotonically increasing integers). Each
term has at most one leader. Terms act as a logical clock.

Concurrency model: the Machine runs in a single goroutine (Run) that
selects over inbound messages, application submissions, timer expiry,
and shutdown. All mutation of role/log/term/vote/commit state happens
in that goroutine; the mutex below exists only so read-only callers
(the cmd/taskmeshctl admin REPL, via daemon.Status) can take a
consistent Status() snapshot concurrently — it is never held across a
blocking channel operation.
*/
package consensus

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"taskmesh/internal/logging"
	"taskmesh/internal/nodeid"
	"taskmesh/internal/raftlog"
	"taskmesh/internal/registry"
	"taskmesh/internal/router"
	"taskmesh/internal/store"
	"taskmesh/internal/wire"
)

// Role is the Raft role of a node.
type Role int32

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "FOLLOWER"
	case Candidate:
		return "CANDIDATE"
	case Leader:
		return "LEADER"
	default:
		return "UNKNOWN"
	}
}

// Config holds the Machine's tunables.
type Config struct {
	// SelfID is nil for a listener: a node with no transport address
	// that propagates traffic but never votes or acks.
	SelfID *nodeid.NodeId

	// HeartbeatInterval (H) is the fixed timeout used while Leader.
	HeartbeatInterval time.Duration
	// ElectionTimeoutBase (T) and ElectionTimeoutJitter (J) combine as
	// T + rand(0, J) for the non-Leader timer, resampled every restart.
	ElectionTimeoutBase   time.Duration
	ElectionTimeoutJitter time.Duration
}

// DefaultConfig returns reasonable default timings for a small cluster.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:     100 * time.Millisecond,
		ElectionTimeoutBase:   300 * time.Millisecond,
		ElectionTimeoutJitter: 200 * time.Millisecond,
	}
}

// Status is a read-only snapshot of Machine state for diagnostics.
type Status struct {
	Role          Role
	CurrentTerm   uint64
	CurrentLeader *nodeid.NodeId
	LogLength     uint64
	CommitLength  uint64
	VotesReceived int
}

// Machine is the Replication State Machine for one node.
type Machine struct {
	cfg      Config
	store    *store.Store
	registry *registry.Registry
	router   *router.Router
	log      *logging.Logger
	rng      *rand.Rand
	nextID   atomic.Uint32

	mu sync.Mutex

	role          Role
	currentTerm   uint64
	votedFor      *nodeid.NodeId
	raftLog       *raftlog.Log
	commitLength  uint64
	currentLeader *nodeid.NodeId
	votesReceived map[nodeid.NodeId]bool
	sentLength    map[nodeid.NodeId]uint64
	ackedLength   map[nodeid.NodeId]uint64
	lastTerm      uint64
}

// New constructs a Machine and loads its durable state from st.
// Volatile fields are initialized to Follower with empty election
// state.
func New(cfg Config, st *store.Store, reg *registry.Registry, rtr *router.Router) (*Machine, error) {
	durable, err := st.Load()
	if err != nil {
		return nil, err
	}

	m := &Machine{
		cfg:           cfg,
		store:         st,
		registry:      reg,
		router:        rtr,
		log:           logging.NewLogger("consensus"),
		rng:           rand.New(rand.NewSource(seed())),
		role:          Follower,
		currentTerm:   durable.CurrentTerm,
		votedFor:      durable.VotedFor,
		raftLog:       durable.Log,
		commitLength:  durable.CommitLength,
		votesReceived: make(map[nodeid.NodeId]bool),
		sentLength:    make(map[nodeid.NodeId]uint64),
		ackedLength:   make(map[nodeid.NodeId]uint64),
	}
	m.recomputeLastTerm()
	return m, nil
}

// seed draws wall-clock-derived entropy for the timer's jitter source.
// It is not the replicated state machine itself, so the "no Date.now"
// style restriction on deterministic replay doesn't apply here — this
// is local, node-specific randomness, never persisted or replicated.
func seed() int64 {
	return time.Now().UnixNano()
}

// IsListener reports whether this node has no NodeId and therefore
// never votes or acks.
func (m *Machine) IsListener() bool {
	return m.cfg.SelfID == nil
}

// Status returns a snapshot of the Machine's current state.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Role:          m.role,
		CurrentTerm:   m.currentTerm,
		CurrentLeader: m.currentLeader,
		LogLength:     m.raftLog.Len(),
		CommitLength:  m.commitLength,
		VotesReceived: len(m.votesReceived),
	}
}

func (m *Machine) recomputeLastTerm() {
	m.lastTerm = m.raftLog.LastTerm()
}

// electionTimerDuration returns T + rand(0, J), resampled every call.
func (m *Machine) electionTimerDuration() time.Duration {
	jitter := time.Duration(0)
	if m.cfg.ElectionTimeoutJitter > 0 {
		jitter = time.Duration(m.rng.Int63n(int64(m.cfg.ElectionTimeoutJitter)))
	}
	return m.cfg.ElectionTimeoutBase + jitter
}

// currentTimerDuration returns the timeout appropriate for the current
// role: the fixed heartbeat interval while Leader, else a freshly
// resampled randomized election timeout.
func (m *Machine) currentTimerDuration() time.Duration {
	m.mu.Lock()
	role := m.role
	m.mu.Unlock()
	if role == Leader {
		return m.cfg.HeartbeatInterval
	}
	return m.electionTimerDuration()
}

func (m *Machine) newMsgID() uint32 {
	return m.nextID.Add(1)
}

// emit sends msg on the router's outbound channel. Messages emitted in
// sequence from this goroutine arrive on the outbound channel in the
// same sequence.
func (m *Machine) emit(msg wire.NetMsg) {
	select {
	case m.router.Outbound() <- msg:
	default:
		// Outbound buffer full: log and drop. The next heartbeat or
		// backfill retry will re-drive progress.
		m.log.Warn("outbound channel full, dropping message", "method", msg.Method.String())
	}
}

// Run is the single-threaded cooperative state-machine task. It
// selects over four ready sources — inbound message, application
// submission, timer expiry, shutdown — until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) error {
	timer := time.NewTimer(m.currentTimerDuration())
	defer timer.Stop()

	m.logStart()

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg := <-m.router.Inbound():
			m.handleInbound(msg)

		case payload := <-m.router.Submit():
			m.handleSubmit(payload)

		case <-timer.C:
			m.handleTimerExpiry()
			resetTimer(timer, m.currentTimerDuration())
			continue
		}
		resetTimer(timer, m.currentTimerDuration())
	}
}

// resetTimer stops t, draining a pending tick if one raced the stop,
// before rearming it for d. Without the drain, a tick that became
// ready concurrently with a non-timer select branch stays buffered and
// fires immediately after Reset instead of after d.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (m *Machine) logStart() {
	st := m.Status()
	if m.IsListener() {
		m.log.Info("state machine starting", "role", st.Role.String(), "listener", true)
		return
	}
	m.log.Info("state machine starting", "role", st.Role.String(), "node_id", m.cfg.SelfID.ShortString(), "term", st.CurrentTerm)
}

func (m *Machine) handleTimerExpiry() {
	m.mu.Lock()
	role := m.role
	m.mu.Unlock()

	if role == Leader {
		m.sendHeartbeats()
		return
	}
	m.startElection()
}

// handleInbound dispatches a decoded NetMsg to the right handler,
// logging and dropping anything that fails to decode — decode failures
// on inbound messages are never fatal.
func (m *Machine) handleInbound(msg wire.NetMsg) {
	switch msg.Method {
	case wire.MethodVoteRequest:
		req, err := wire.DecodeVoteRequest(msg.Payload)
		if err != nil {
			m.logDecodeError(msg, err)
			return
		}
		m.handleVoteRequest(req)

	case wire.MethodVoteResponse:
		resp, err := wire.DecodeVoteResponse(msg.Payload)
		if err != nil {
			m.logDecodeError(msg, err)
			return
		}
		m.handleVoteResponse(resp)

	case wire.MethodLogRequest:
		req, err := wire.DecodeLogRequest(msg.Payload)
		if err != nil {
			m.logDecodeError(msg, err)
			return
		}
		m.handleLogRequest(req)

	case wire.MethodLogResponse:
		resp, err := wire.DecodeLogResponse(msg.Payload)
		if err != nil {
			m.logDecodeError(msg, err)
			return
		}
		m.handleLogResponse(resp)

	case wire.MethodBroadcastRequest:
		req, err := wire.DecodeBroadcastRequest(msg.Payload)
		if err != nil {
			m.logDecodeError(msg, err)
			return
		}
		m.handleBroadcastRequest(req)

	default:
		m.log.Warn("dropping message with unknown method", "method", byte(msg.Method))
	}
}

func (m *Machine) logDecodeError(msg wire.NetMsg, err error) {
	m.log.Warn("dropping undecodable inbound message", "method", msg.Method.String(), "id", msg.Id, "error", err.Error())
}

// adoptTerm advances current_term and clears voted_for, both
// persisted before this call returns — term and vote must reach the
// store before any reply that depends on them is sent.
func (m *Machine) adoptTerm(term uint64) error {
	if err := m.store.PutTerm(term); err != nil {
		m.log.Warn("failed to persist term, continuing with in-memory value", "error", err.Error())
	}
	if err := m.store.PutVote(nil); err != nil {
		m.log.Warn("failed to persist cleared vote, continuing with in-memory value", "error", err.Error())
	}
	m.currentTerm = term
	m.votedFor = nil
	return nil
}

func (m *Machine) becomeFollower(term uint64, leader *nodeid.NodeId) {
	if term > m.currentTerm {
		m.adoptTerm(term)
	}
	m.role = Follower
	m.currentLeader = leader
	m.votesReceived = make(map[nodeid.NodeId]bool)
}
