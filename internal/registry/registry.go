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

// Package registry implements the Peer Registry: a concurrent mapping
// from NodeId to transport address, refreshed periodically from peer
// discovery. Removal is out of scope — stale peers simply fail to
// respond and are ignored by the commit math in internal/consensus.
package registry

import (
	"sync"

	"taskmesh/internal/nodeid"
)

// Registry holds the current known peer set. The zero value is not
// usable; construct with New.
type Registry struct {
	mu    sync.Mutex
	peers map[nodeid.NodeId]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{peers: make(map[nodeid.NodeId]string)}
}

// Insert records (or updates the address for) a peer. Safe for
// concurrent use; the lock is held only for the duration of the map
// write.
func (r *Registry) Insert(id nodeid.NodeId, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[id] = addr
}

// Snapshot returns a point-in-time copy of the current peer set.
func (r *Registry) Snapshot() map[nodeid.NodeId]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[nodeid.NodeId]string, len(r.peers))
	for id, addr := range r.peers {
		out[id] = addr
	}
	return out
}

// Size returns the current number of known peers.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Lookup returns the address of a known peer, if any.
func (r *Registry) Lookup(id nodeid.NodeId) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.peers[id]
	return addr, ok
}
