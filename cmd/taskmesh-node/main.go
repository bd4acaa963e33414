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
taskmesh-node runs one node of a replicated task log: it opens the
durable store, joins peer discovery, and runs the consensus machine
until terminated.

Usage:

	taskmesh-node --addr :7946 --store ./node.db
	taskmesh-node --store ./listener.db
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"taskmesh/internal/config"
	"taskmesh/internal/daemon"
)

const version = "0.1.0"

func main() {
	addr := flag.String("addr", "", "transport address to listen on and advertise (host:port); empty starts a listener with no vote")
	storePath := flag.String("store", "taskmesh.db", "path to the durable store file")
	configFile := flag.String("config", "", "path to a config file (overridden by flags and TASKMESH_* env vars)")
	mdnsService := flag.String("mdns-service", "_taskmesh._tcp", "mDNS service name peers advertise and discover under")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logJSON := flag.Bool("log-json", false, "emit logs as JSON")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("taskmesh-node %s\n", version)
		return
	}

	mgr := config.NewManager()
	if *configFile != "" {
		if err := mgr.LoadFromFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "loading config file: %v\n", err)
			os.Exit(1)
		}
	}
	mgr.LoadFromEnv()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := mgr.Get()
	if *addr != "" {
		cfg.NodeAddr = *addr
	}
	if set["store"] {
		cfg.StorePath = *storePath
	}
	if set["mdns-service"] {
		cfg.MDNSService = *mdnsService
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if set["log-json"] {
		cfg.LogJSON = *logJSON
	}

	d, err := daemon.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start node: %v\n", err)
		os.Exit(1)
	}
	defer d.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "node exited with error: %v\n", err)
		os.Exit(1)
	}
}
