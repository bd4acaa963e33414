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

package registry

import (
	"context"
	"time"

	"taskmesh/internal/logging"
	"taskmesh/internal/nodeid"
)

// Discoverer is the transport's synchronous "current hosts" snapshot,
// The registry refresher polls it at a slow cadence;
// the transport itself decides how hosts are discovered (mDNS in
// internal/transport).
type Discoverer interface {
	CurrentHosts() []string
}

// Refresher periodically polls a Discoverer and inserts newly seen
// addresses into a Registry, deriving each peer's NodeId from its
// address the same way every node does (internal/nodeid.FromAddress).
type Refresher struct {
	registry   *Registry
	discoverer Discoverer
	interval   time.Duration
	selfAddr   string
	log        *logging.Logger
}

// NewRefresher creates a Refresher. selfAddr, if non-empty, is never
// inserted into the registry — a node never treats itself as a peer.
func NewRefresher(registry *Registry, discoverer Discoverer, interval time.Duration, selfAddr string) *Refresher {
	return &Refresher{
		registry:   registry,
		discoverer: discoverer,
		interval:   interval,
		selfAddr:   selfAddr,
		log:        logging.NewLogger("registry"),
	}
}

// Run polls on Refresher's interval until ctx is cancelled. It is
// meant to be launched as one of the daemon's auxiliary tasks.
func (f *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.poll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.poll()
		}
	}
}

func (f *Refresher) poll() {
	for _, addr := range f.discoverer.CurrentHosts() {
		if addr == "" || addr == f.selfAddr {
			continue
		}
		id := nodeid.FromAddress(addr)
		if _, known := f.registry.Lookup(id); !known {
			f.log.Info("discovered peer", "node_id", id.ShortString(), "addr", addr)
		}
		f.registry.Insert(id, addr)
	}
}
