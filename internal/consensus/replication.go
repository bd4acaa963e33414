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
	"taskmesh/internal/raftlog"
	"taskmesh/internal/wire"
)

// sendHeartbeats sends a log update to every known peer. As Leader, on
// timer expiry, this is the heartbeat; it is the same message shape as
// an active replication push.
func (m *Machine) sendHeartbeats() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p, addr := range m.registry.Snapshot() {
		m.sendLogRequestLocked(p, addr)
	}
}

// sendLogRequestLocked builds and emits a LogRequest for peer p,
// skipping the peer this round if sentLength[p] > log.Len() — no
// suffix is available yet. Callers must hold m.mu.
func (m *Machine) sendLogRequestLocked(p nodeid.NodeId, _addr string) {
	sentLen, ok := m.sentLength[p]
	if !ok {
		sentLen = m.raftLog.Len()
		m.sentLength[p] = sentLen
	}
	if sentLen > m.raftLog.Len() {
		return
	}

	suffix, err := m.raftLog.SliceFrom(sentLen)
	if err != nil {
		m.log.Warn("failed to slice log for replication, skipping peer this round", "peer", p.ShortString(), "error", err.Error())
		return
	}

	prefixTerm := uint64(0)
	if sentLen > 0 {
		entry, err := m.raftLog.Get(sentLen - 1)
		if err != nil {
			m.log.Warn("failed to read prefix term, skipping peer this round", "peer", p.ShortString(), "error", err.Error())
			return
		}
		prefixTerm = entry.Term
	}

	self := nodeid.Zero
	if m.cfg.SelfID != nil {
		self = *m.cfg.SelfID
	}

	req := wire.LogRequest{
		LeaderId:     self,
		Term:         m.currentTerm,
		PrefixLen:    sentLen,
		PrefixTerm:   prefixTerm,
		CommitLength: m.commitLength,
		Suffix:       suffix,
	}
	m.emit(wire.NetMsg{
		Id:          m.newMsgID(),
		Method:      wire.MethodLogRequest,
		RecipientId: &p,
		Payload:     req.Encode(),
	})
}

// handleLogRequest processes an incoming LogRequest from the leader:
// prefix-matches the local log, appends or truncates as needed, and
// advances the local commit length.
func (m *Machine) handleLogRequest(req wire.LogRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Term > m.currentTerm {
		m.adoptTerm(req.Term)
	}
	if req.Term == m.currentTerm {
		m.role = Follower
		m.currentLeader = &req.LeaderId
	}

	logOK := m.raftLog.Len() >= req.PrefixLen &&
		(req.PrefixLen == 0 || m.prefixTermMatches(req.PrefixLen, req.PrefixTerm))

	var ack uint64
	if req.Term == m.currentTerm && logOK {
		if err := m.appendLog(req.PrefixLen, req.CommitLength, req.Suffix); err != nil {
			m.log.Warn("append_log failed, continuing with in-memory state", "error", err.Error())
		}
		ack = req.PrefixLen + uint64(len(req.Suffix))
	}

	m.recomputeLastTerm()

	if m.IsListener() {
		return
	}

	self := *m.cfg.SelfID
	resp := wire.LogResponse{
		NodeId: self,
		Term:   m.currentTerm,
		Ack:    ack,
		Ok:     req.Term == m.currentTerm && logOK,
	}
	m.emit(wire.NetMsg{
		Id:          m.newMsgID(),
		Method:      wire.MethodLogResponse,
		RecipientId: &req.LeaderId,
		Payload:     resp.Encode(),
	})
}

func (m *Machine) prefixTermMatches(prefixLen, wantTerm uint64) bool {
	entry, err := m.raftLog.Get(prefixLen - 1)
	if err != nil {
		return false
	}
	return entry.Term == wantTerm
}

// appendLog reconciles the local log against prefixLen/suffix from a
// LogRequest, truncating on term mismatch and appending whatever is
// missing, then advances commitLength. Callers must hold m.mu.
//
// Commit emission uses the half-open range [commit_length,
// commit_length'), inclusive of the final index — an off-by-one here
// would silently drop the last committed entry.
// TestAppendLogEmitsLastCommittedIndex pins this down.
func (m *Machine) appendLog(prefixLen, leaderCommit uint64, suffix []raftlog.Entry) error {
	if len(suffix) > 0 && m.raftLog.Len() > prefixLen {
		index := min(m.raftLog.Len(), prefixLen+uint64(len(suffix))) - 1
		existing, err := m.raftLog.Get(index)
		if err != nil {
			return err
		}
		if existing.Term != suffix[index-prefixLen].Term {
			truncated, err := m.raftLog.SliceTo(prefixLen)
			if err != nil {
				return err
			}
			m.raftLog.ReplaceAll(truncated)
			if err := m.store.ReplaceLog(truncated); err != nil {
				m.log.Warn("failed to persist truncated log, continuing", "error", err.Error())
			}
		}
	}

	if prefixLen+uint64(len(suffix)) > m.raftLog.Len() {
		start := m.raftLog.Len() - prefixLen
		for _, e := range suffix[start:] {
			m.raftLog.Push(e)
			if err := m.store.AppendLog(e); err != nil {
				m.log.Warn("failed to persist appended log entry, continuing", "error", err.Error())
			}
		}
	}

	if leaderCommit > m.commitLength {
		m.emitCommitsLocked(leaderCommit)
		m.commitLength = leaderCommit
		if err := m.store.PutCommitLength(leaderCommit); err != nil {
			m.log.Warn("failed to persist commit length, continuing", "error", err.Error())
		}
	}
	return nil
}

// emitCommitsLocked publishes every entry's payload in
// [m.commitLength, newCommitLength) to the committed stream, in order,
// persisting each to the commits mirror first. Callers must hold m.mu
// and must update m.commitLength themselves afterward.
func (m *Machine) emitCommitsLocked(newCommitLength uint64) {
	for i := m.commitLength; i < newCommitLength; i++ {
		entry, err := m.raftLog.Get(i)
		if err != nil {
			m.log.Warn("commit index missing from log, stopping emission early", "index", i, "error", err.Error())
			return
		}
		if err := m.store.AppendCommit(entry.Payload); err != nil {
			m.log.Warn("failed to persist commit mirror, continuing", "error", err.Error())
		}
		m.router.PublishCommit(entry.Payload)
	}
}

// handleLogResponse processes a follower's LogResponse: on success it
// advances sentLength/ackedLength and tries to advance the commit
// point; on failure it backs sentLength off by one and retries.
func (m *Machine) handleLogResponse(resp wire.LogResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if resp.Term > m.currentTerm {
		m.becomeFollower(resp.Term, nil)
		return
	}
	if resp.Term != m.currentTerm || m.role != Leader {
		return
	}

	if resp.Ok && resp.Ack >= m.ackedLength[resp.NodeId] {
		m.sentLength[resp.NodeId] = resp.Ack
		m.ackedLength[resp.NodeId] = resp.Ack
		m.commitAdvanceLocked()
		return
	}

	if m.sentLength[resp.NodeId] > 0 {
		m.sentLength[resp.NodeId]--
		addr, _ := m.registry.Lookup(resp.NodeId)
		m.sendLogRequestLocked(resp.NodeId, addr)
	}
}

// commitAdvanceLocked finds the highest log length acknowledged by a
// quorum and, if that length's entry belongs to the current term,
// advances the commit point to it. Required quorum is ceil((N+1)/2)
// over the peer-registry snapshot size N, self always counted via
// ackedLength[self]. Callers must hold m.mu.
func (m *Machine) commitAdvanceLocked() {
	peers := m.registry.Snapshot()
	n := len(peers)
	minAcks := (n + 1 + 1) / 2

	candidates := make(map[uint64]int)
	for p := range peers {
		acked := m.ackedLength[p]
		candidates[acked]++
	}
	if self := m.cfg.SelfID; self != nil {
		candidates[m.ackedLength[*self]]++
	}

	var maxQualifying uint64
	for length := range candidates {
		count := 0
		for l, c := range candidates {
			if l >= length {
				count += c
			}
		}
		if count >= minAcks && length > maxQualifying {
			maxQualifying = length
		}
	}

	if maxQualifying > m.commitLength {
		entry, err := m.raftLog.Get(maxQualifying - 1)
		if err != nil {
			return
		}
		if entry.Term == m.currentTerm {
			m.emitCommitsLocked(maxQualifying)
			m.commitLength = maxQualifying
			if err := m.store.PutCommitLength(maxQualifying); err != nil {
				m.log.Warn("failed to persist commit length, continuing", "error", err.Error())
			}
		}
	}
}
