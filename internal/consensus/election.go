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

package consensus

import (
	"taskmesh/internal/nodeid"
	"taskmesh/internal/wire"
)

// startElection begins a new election. A listener (no NodeId) never
// starts an election — it has nothing to vote with.
func (m *Machine) startElection() {
	if m.IsListener() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	newTerm := m.currentTerm + 1
	if err := m.store.PutTerm(newTerm); err != nil {
		m.log.Warn("failed to persist term for election, continuing", "error", err.Error())
	}
	m.currentTerm = newTerm
	m.role = Candidate

	self := *m.cfg.SelfID
	if err := m.store.PutVote(&self); err != nil {
		m.log.Warn("failed to persist self-vote, continuing", "error", err.Error())
	}
	m.votedFor = &self

	m.votesReceived = map[nodeid.NodeId]bool{self: true}
	m.recomputeLastTerm()

	m.log.Info("starting election", "term", m.currentTerm, "node_id", self.ShortString())

	req := wire.VoteRequest{
		NodeId:    self,
		Term:      m.currentTerm,
		LogLength: m.raftLog.Len(),
		LastTerm:  m.lastTerm,
	}
	m.emit(wire.NetMsg{
		Id:      m.newMsgID(),
		Method:  wire.MethodVoteRequest,
		Payload: req.Encode(),
	})
}

// handleVoteRequest processes an incoming VoteRequest: adopts a
// higher term if present, then grants or withholds the vote based on
// log recency and the current term's vote. A listener without a
// NodeId is unreachable via an addressed NetMsg in the first place, so
// the reply path below only runs for nodes that do have one.
func (m *Machine) handleVoteRequest(req wire.VoteRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Term > m.currentTerm {
		m.adoptTerm(req.Term)
		m.role = Follower
	}
	m.recomputeLastTerm()

	if m.IsListener() {
		// No NodeId to vote with or reply as; state is still updated
		// above so the listener's own term tracking stays current.
		return
	}

	logOK := req.LastTerm > m.lastTerm ||
		(req.LastTerm == m.lastTerm && req.LogLength >= m.raftLog.Len())
	mayVote := m.votedFor == nil || *m.votedFor == req.NodeId

	grant := req.Term == m.currentTerm && logOK && mayVote
	if grant {
		m.votedFor = &req.NodeId
		if err := m.store.PutVote(&req.NodeId); err != nil {
			m.log.Warn("failed to persist granted vote, continuing", "error", err.Error())
		}
	}

	self := *m.cfg.SelfID
	resp := wire.VoteResponse{
		NodeId: self,
		Term:   m.currentTerm,
		Ok:     grant,
	}
	m.emit(wire.NetMsg{
		Id:          m.newMsgID(),
		Method:      wire.MethodVoteResponse,
		RecipientId: &req.NodeId,
		Payload:     resp.Encode(),
	})
}

// handleVoteResponse tallies an incoming VoteResponse and, once a
// quorum is reached, transitions to Leader. Self is always counted via
// votesReceived, and minAcks = ceil((N+1)/2) where N is the
// peer-registry snapshot size (excludes self).
func (m *Machine) handleVoteResponse(resp wire.VoteResponse) {
	if m.IsListener() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if resp.Term > m.currentTerm {
		m.becomeFollower(resp.Term, nil)
		return
	}

	if m.role != Candidate || resp.Term != m.currentTerm || !resp.Ok {
		return
	}

	m.votesReceived[resp.NodeId] = true

	n := m.registry.Size()
	minAcks := (n + 1 + 1) / 2
	if len(m.votesReceived) < minAcks {
		return
	}

	self := *m.cfg.SelfID
	m.role = Leader
	m.currentLeader = &self
	m.log.Info("became leader", "term", m.currentTerm, "node_id", self.ShortString())

	peers := m.registry.Snapshot()
	m.sentLength = make(map[nodeid.NodeId]uint64, len(peers))
	m.ackedLength = make(map[nodeid.NodeId]uint64, len(peers))
	for p := range peers {
		m.sentLength[p] = m.raftLog.Len()
		m.ackedLength[p] = 0
	}
	m.ackedLength[self] = m.raftLog.Len()

	for p, addr := range peers {
		m.sendLogRequestLocked(p, addr)
	}
}
