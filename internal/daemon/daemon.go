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
Package daemon wires the store, peer registry, transport, router, and
consensus machine together into one running node, and manages the
lifecycle of the auxiliary tasks alongside the consensus loop itself:
the transport's accept/send loop and the registry's discovery
refresher. One cancellation stops all of them together.
*/
package daemon

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"taskmesh/internal/config"
	"taskmesh/internal/consensus"
	"taskmesh/internal/logging"
	"taskmesh/internal/nodeid"
	"taskmesh/internal/registry"
	"taskmesh/internal/router"
	"taskmesh/internal/store"
	"taskmesh/internal/transport"
)

// Daemon is one running node: its durable store, peer registry,
// network transport, message router, and consensus machine, plus the
// discovery advertisement that keeps the registry populated.
type Daemon struct {
	cfg   *config.Config
	log   *logging.Logger
	store *store.Store

	registry   *registry.Registry
	router     *router.Router
	transport  *transport.Transport
	discoverer *transport.MDNSDiscoverer
	refresher  *registry.Refresher
	machine    *consensus.Machine
}

// New opens the durable store at cfg.StorePath and wires every
// component together. Close must be called once the returned Daemon
// is no longer needed, whether or not Run was ever called.
func New(cfg *config.Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	reg := registry.New()
	rtr := router.New()

	discoverer, err := transport.NewMDNSDiscoverer(cfg.MDNSService, cfg.NodeAddr)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("starting discovery: %w", err)
	}

	refresher := registry.NewRefresher(reg, discoverer, cfg.HeartbeatInterval*10, cfg.NodeAddr)

	tr := transport.New(transport.Config{
		ListenAddr:  cfg.NodeAddr,
		MaxConns:    transport.DefaultConfig().MaxConns,
		Compression: cfg.CompressionConfig(),
	}, reg, rtr)

	var self *nodeid.NodeId
	if cfg.NodeAddr != "" {
		id := nodeid.FromAddress(cfg.NodeAddr)
		self = &id
	}
	machine, err := consensus.New(consensus.Config{
		SelfID:                self,
		HeartbeatInterval:     cfg.HeartbeatInterval,
		ElectionTimeoutBase:   cfg.ElectionTimeoutBase,
		ElectionTimeoutJitter: cfg.ElectionTimeoutJitter,
	}, st, reg, rtr)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("constructing consensus machine: %w", err)
	}

	return &Daemon{
		cfg:        cfg,
		log:        logging.NewLogger("daemon"),
		store:      st,
		registry:   reg,
		router:     rtr,
		transport:  tr,
		discoverer: discoverer,
		refresher:  refresher,
		machine:    machine,
	}, nil
}

// Submit enqueues an application payload for replication, same
// contract as the consensus machine's submit channel: accepted
// immediately by the Leader, forwarded by everyone else.
func (d *Daemon) Submit(payload []byte) {
	d.router.Submit() <- payload
}

// Commits returns a new independent channel of committed payloads, in
// commit order. Every call returns a fresh subscriber.
func (d *Daemon) Commits() <-chan []byte {
	return d.router.Commits()
}

// Status returns a snapshot of the consensus machine's current state.
func (d *Daemon) Status() consensus.Status {
	return d.machine.Status()
}

// Peers returns a snapshot of this node's current view of the peer
// registry: node id to transport address.
func (d *Daemon) Peers() map[nodeid.NodeId]string {
	return d.registry.Snapshot()
}

// Run starts every auxiliary task and the consensus machine, and
// blocks until ctx is cancelled or one of them returns an error, at
// which point every other task is also stopped.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info("daemon starting", "node_addr", d.cfg.NodeAddr, "store_path", d.cfg.StorePath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.transport.Run(gctx) })
	g.Go(func() error { return d.refresher.Run(gctx) })
	g.Go(func() error { return d.machine.Run(gctx) })

	err := g.Wait()
	d.log.Info("daemon stopped")
	return err
}

// Close releases the durable store and the mDNS advertisement. Call
// once Run has returned.
func (d *Daemon) Close() error {
	if err := d.discoverer.Close(); err != nil {
		d.log.Warn("failed to shut down discovery", "error", err.Error())
	}
	return d.store.Close()
}
