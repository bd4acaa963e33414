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

// Package nodeid defines the opaque node identifier used throughout the
// replication core. A NodeId is derived deterministically from a node's
// transport address, so any two nodes dialing the same address agree on
// who that peer is without a separate identity-exchange handshake.
package nodeid

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Size is the fixed width, in bytes, of a NodeId.
const Size = 16

// NodeId is an opaque, comparable, fixed-width identifier. Being a plain
// byte array (not a slice), it is usable directly as a map key.
type NodeId [Size]byte

// Zero is the NodeId with no bits set. It is never assigned to a real
// node — it fills a NodeId field when the sending node has no id of
// its own (a listener).
var Zero NodeId

// FromAddress deterministically derives a NodeId from a transport
// address string (host:port). Two nodes computing FromAddress on the
// same address string always agree on the resulting id.
func FromAddress(addr string) NodeId {
	sum := blake2b.Sum256([]byte(addr))
	var id NodeId
	copy(id[:], sum[:Size])
	return id
}

// String renders the id as a lowercase hex string.
func (id NodeId) String() string {
	return hex.EncodeToString(id[:])
}

// ShortString renders a truncated hex prefix, for log lines.
func (id NodeId) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// IsZero reports whether id is the zero value.
func (id NodeId) IsZero() bool {
	return id == Zero
}

// Bytes returns a fresh copy of the id's bytes.
func (id NodeId) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, id[:])
	return out
}

// FromBytes parses a NodeId from a byte slice of exactly Size length.
func FromBytes(b []byte) (NodeId, error) {
	var id NodeId
	if len(b) != Size {
		return id, fmt.Errorf("nodeid: expected %d bytes, got %d", Size, len(b))
	}
	copy(id[:], b)
	return id, nil
}
