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
	"taskmesh/internal/raftlog"
	"taskmesh/internal/wire"
)

// handleSubmit processes an application payload submission: a Leader
// appends locally and replicates; anyone else forwards the payload to
// the believed leader (or broadcasts it, if no leader is known yet).
func (m *Machine) handleSubmit(payload []byte) {
	m.mu.Lock()
	role := m.role
	m.mu.Unlock()

	if role == Leader {
		m.appendLocally(payload)
		return
	}
	m.forwardToLeader(payload)
}

func (m *Machine) appendLocally(payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := raftlog.Entry{Term: m.currentTerm, Payload: payload}
	m.raftLog.Push(entry)
	if err := m.store.AppendLog(entry); err != nil {
		m.log.Warn("failed to persist locally appended entry, continuing", "error", err.Error())
	}
	if self := m.cfg.SelfID; self != nil {
		m.ackedLength[*self] = m.raftLog.Len()
	}

	for p, addr := range m.registry.Snapshot() {
		m.sendLogRequestLocked(p, addr)
	}
}

func (m *Machine) forwardToLeader(payload []byte) {
	m.mu.Lock()
	leader := m.currentLeader
	m.mu.Unlock()

	req := wire.BroadcastRequest{Payload: payload}
	msg := wire.NetMsg{
		Id:      m.newMsgID(),
		Method:  wire.MethodBroadcastRequest,
		Payload: req.Encode(),
	}
	if leader != nil {
		msg.RecipientId = leader
	}
	// RecipientId nil means broadcast: the transport sends the message
	// to every peer in the registry, so whichever peer is leader picks
	// it up. Nothing delivers it back to this node.
	m.emit(msg)
}

// handleBroadcastRequest implements the leader-side half of payload
// forwarding: a BroadcastRequest arriving while we are Leader is
// treated exactly like a local submission.
func (m *Machine) handleBroadcastRequest(req wire.BroadcastRequest) {
	m.mu.Lock()
	role := m.role
	m.mu.Unlock()

	if role != Leader {
		// Not (or no longer) leader: drop. Nothing re-sends a dropped
		// payload; only a fresh submission brings it back.
		return
	}
	m.appendLocally(req.Payload)
}
