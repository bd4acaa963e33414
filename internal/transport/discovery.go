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

package transport

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
)

const defaultQueryTimeout = 500 * time.Millisecond

// MDNSDiscoverer advertises this node's broadcast address over mDNS and
// answers registry.Discoverer's CurrentHosts() by querying the same
// service on the local network. It satisfies internal/registry's
// Discoverer interface.
type MDNSDiscoverer struct {
	service      string
	queryTimeout time.Duration
	server       *mdns.Server
}

// NewMDNSDiscoverer advertises hostPort (host:port) under service and
// returns a Discoverer ready for registry.NewRefresher. Advertising is
// skipped (nil server, advertise-only disabled) when hostPort is empty
// — a listener has nothing to advertise but can still query.
func NewMDNSDiscoverer(service, hostPort string) (*MDNSDiscoverer, error) {
	d := &MDNSDiscoverer{service: service, queryTimeout: defaultQueryTimeout}
	if hostPort == "" {
		return d, nil
	}

	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return nil, fmt.Errorf("invalid advertise address %q: %w", hostPort, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid advertise port %q: %w", portStr, err)
	}

	info, err := mdns.NewMDNSService(host, service, "", "", port, nil, []string{hostPort})
	if err != nil {
		return nil, fmt.Errorf("building mdns service record: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: info})
	if err != nil {
		return nil, fmt.Errorf("starting mdns server: %w", err)
	}
	d.server = server
	return d, nil
}

// CurrentHosts queries the local network for every node advertising
// this discoverer's service and returns their host:port addresses,
// read back out of each response's TXT record.
func (d *MDNSDiscoverer) CurrentHosts() []string {
	entries := make(chan *mdns.ServiceEntry, 32)
	params := mdns.DefaultParams(d.service)
	params.Timeout = d.queryTimeout
	params.Entries = entries

	done := make(chan struct{})
	go func() {
		mdns.Query(params)
		close(done)
	}()

	var hosts []string
	for {
		select {
		case entry := <-entries:
			if entry == nil {
				continue
			}
			for _, field := range entry.InfoFields {
				hosts = append(hosts, field)
			}
		case <-done:
			// Drain whatever arrived in the same instant as closing.
			for {
				select {
				case entry := <-entries:
					if entry != nil {
						hosts = append(hosts, entry.InfoFields...)
					}
				default:
					return hosts
				}
			}
		}
	}
}

// Close shuts down the mDNS advertisement, if one was started.
func (d *MDNSDiscoverer) Close() error {
	if d.server == nil {
		return nil
	}
	return d.server.Shutdown()
}
