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
Package router implements the Message Router: it owns the inbound and
outbound channels to the transport, the application's submit input,
and the committed-payload output.

The state machine never holds a back-pointer to the transport — it
only ever touches these channels, which breaks the natural cyclic
dependency between "transport delivers to state machine" and "state
machine emits to transport".

Commits() diverges from a plain single shared channel: following the
original darkfi actor's get_commits()-cloned-per-subscriber shape, each
call to Commits() returns an independent receiver, and every committed
payload is fanned out to all of them. This lets more than one local
consumer (e.g. the application and an admin REPL watching "tail -f")
observe the same committed stream without racing each other for
delivery.
*/
package router

import (
	"sync"

	"taskmesh/internal/wire"
)

// Router owns the channels that connect the state machine, the
// transport, and the application.
type Router struct {
	inbound  chan wire.NetMsg
	outbound chan wire.NetMsg
	submit   chan []byte

	mu          sync.Mutex
	subscribers []chan []byte
}

// New creates a Router with unbounded-in-practice buffered channels.
// Backpressure is intentionally not modelled; the buffer
// size only avoids needless goroutine handoffs under normal load.
func New() *Router {
	return &Router{
		inbound:  make(chan wire.NetMsg, 256),
		outbound: make(chan wire.NetMsg, 256),
		submit:   make(chan []byte, 256),
	}
}

// Inbound returns the channel the transport delivers received NetMsg
// values on; the state machine reads from it.
func (r *Router) Inbound() chan wire.NetMsg {
	return r.inbound
}

// Outbound returns the channel the state machine writes NetMsg values
// to; internal/transport's Run loop reads from it and sends each
// message. Messages emitted here in sequence arrive
// on the transport in the same sequence — the only ordering guarantee
// the router makes between outbound messages.
func (r *Router) Outbound() chan wire.NetMsg {
	return r.outbound
}

// Submit returns the channel the application writes payloads to for
// replication; the state machine reads from it.
func (r *Router) Submit() chan []byte {
	return r.submit
}

// Commits returns a new, independent receiver of committed payloads.
// Every payload committed after this call (and only after) is
// delivered on it, in commit order.
func (r *Router) Commits() <-chan []byte {
	ch := make(chan []byte, 64)
	r.mu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.mu.Unlock()
	return ch
}

// PublishCommit fans a newly committed payload out to every current
// subscriber. Delivery to a slow subscriber never blocks the others —
// it is attempted with a non-blocking send per subscriber channel's
// buffer, and a full subscriber buffer drops the notification for that
// subscriber only (the durable commits mirror in internal/store remains
// the authoritative replay source for any subscriber that falls
// behind).
func (r *Router) PublishCommit(payload []byte) {
	r.mu.Lock()
	subs := make([]chan []byte, len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Close closes every subscriber channel. Called once the state machine
// has returned and no further commits will be published.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = nil
}
