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
Package transport provides a concrete broadcast transport over TCP: one
NetMsg per connection, dialed fresh for every send and accepted fresh
for every receive, matching the request/response style of a gossip-free
consensus cluster where messages are small and infrequent relative to
connection setup cost.

A unicast NetMsg (RecipientId set) is dialed directly to that peer's
known address. A broadcast NetMsg (RecipientId nil) is dialed to every
address currently in the peer registry.
*/
package transport

import (
	"context"
	"net"
	"time"

	"taskmesh/internal/compression"
	"taskmesh/internal/logging"
	"taskmesh/internal/registry"
	"taskmesh/internal/router"
	"taskmesh/internal/wire"

	"golang.org/x/net/netutil"
)

const (
	dialTimeout  = 500 * time.Millisecond
	connDeadline = 2 * time.Second
)

// Config holds the Transport's tunables.
type Config struct {
	// ListenAddr is the local address to accept incoming connections on,
	// e.g. ":7946". Empty disables the accept loop: the Transport then
	// only sends and accepts no inbound connections.
	ListenAddr string
	// MaxConns caps concurrent accepted connections; zero or less means
	// no cap.
	MaxConns int
	// Compression configures payload compression for outbound messages.
	// The zero Config has Algorithm AlgorithmNone, which disables it;
	// use compression.DefaultConfig() to enable it.
	Compression compression.Config
}

// DefaultConfig returns sensible defaults for a small cluster.
func DefaultConfig() Config {
	return Config{MaxConns: 256, Compression: compression.DefaultConfig()}
}

// Transport is the concrete broadcast transport wired between a
// consensus Machine's router and the network.
type Transport struct {
	cfg        Config
	registry   *registry.Registry
	router     *router.Router
	log        *logging.Logger
	compressor *compression.Compressor
}

// New constructs a Transport. reg is consulted for peer addresses on
// every broadcast and unicast send.
func New(cfg Config, reg *registry.Registry, rtr *router.Router) *Transport {
	return &Transport{
		cfg:        cfg,
		registry:   reg,
		router:     rtr,
		log:        logging.NewLogger("transport"),
		compressor: compression.NewCompressor(cfg.Compression),
	}
}

// Run accepts inbound connections (if ListenAddr is set) and pumps the
// router's outbound channel to the network, until ctx is cancelled.
func (t *Transport) Run(ctx context.Context) error {
	var ln net.Listener
	if t.cfg.ListenAddr != "" {
		raw, err := net.Listen("tcp", t.cfg.ListenAddr)
		if err != nil {
			return err
		}
		ln = raw
		if t.cfg.MaxConns > 0 {
			ln = netutil.LimitListener(raw, t.cfg.MaxConns)
		}
		defer ln.Close()
		go t.acceptLoop(ctx, ln)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-t.router.Outbound():
			t.send(msg)
		}
	}
}

func (t *Transport) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				t.log.Warn("accept failed, continuing", "error", err.Error())
				continue
			}
		}
		go t.handleConn(conn)
	}
}

func (t *Transport) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connDeadline))

	msg, err := wire.ReadFrom(conn)
	if err != nil {
		t.log.Warn("failed to read inbound message, dropping connection", "error", err.Error())
		return
	}

	if msg.Flags.Compressed() {
		payload, err := compression.DecodeWirePayload(msg.Payload, compression.Algorithm(msg.Flags.Algorithm()))
		if err != nil {
			t.log.Warn("failed to decompress inbound payload, dropping", "error", err.Error())
			return
		}
		msg.Payload = payload
		msg.Flags = wire.FlagNone
	}

	select {
	case t.router.Inbound() <- msg:
	default:
		t.log.Warn("inbound channel full, dropping message", "method", msg.Method.String())
	}
}

func (t *Transport) send(msg wire.NetMsg) {
	if msg.RecipientId != nil {
		addr, ok := t.registry.Lookup(*msg.RecipientId)
		if !ok {
			t.log.Warn("no known address for recipient, dropping", "recipient", msg.RecipientId.ShortString())
			return
		}
		t.dialAndWrite(addr, msg)
		return
	}

	for _, addr := range t.registry.Snapshot() {
		t.dialAndWrite(addr, msg)
	}
}

func (t *Transport) dialAndWrite(addr string, msg wire.NetMsg) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		t.log.Warn("dial failed, dropping message this round", "addr", addr, "error", err.Error())
		return
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(connDeadline))
	if err := wire.WriteTo(conn, t.compressedCopy(msg)); err != nil {
		t.log.Warn("write failed, dropping message", "addr", addr, "error", err.Error())
	}
}

// compressedCopy returns msg with its payload compressed and
// FlagCompressed (plus the algorithm used) set, if the payload meets
// the transport's configured compression threshold. msg is passed by
// value, so the caller's copy (and anything else sharing the original
// Payload slice) is untouched.
func (t *Transport) compressedCopy(msg wire.NetMsg) wire.NetMsg {
	if !t.compressor.ShouldCompress(len(msg.Payload)) {
		return msg
	}
	payload, algo, err := t.compressor.EncodeWirePayload(msg.Payload)
	if err != nil {
		t.log.Warn("failed to compress outbound payload, sending uncompressed", "error", err.Error())
		return msg
	}
	if algo == compression.AlgorithmNone {
		return msg
	}
	msg.Payload = payload
	msg.Flags = msg.Flags.WithAlgorithm(byte(algo))
	return msg
}
