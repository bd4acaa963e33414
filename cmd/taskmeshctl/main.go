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
taskmeshctl is an interactive admin console for a taskmesh node. It
joins the same mesh as any other node — opening its own store,
discovering peers over mDNS, and running the consensus machine in the
background — and gives the operator a REPL to submit payloads, watch
commits, and inspect this node's view of cluster state.

It is not a client of a separate daemon process: the console and the
node it drives share one process. Run one taskmeshctl per operator
session alongside the taskmesh-node instances doing the real work, or
point it at a node's own store directly when no other node is up.

Usage:

	taskmeshctl --addr :7947 --store ./ctl.db

Commands inside the console:

	\submit <text>   submit a payload for replication
	\watch           print commits as they arrive until interrupted
	\status          show this node's role, term, and log/commit lengths
	\peers           list known peer addresses
	\help            show this help
	\quit            exit
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"taskmesh/internal/config"
	"taskmesh/internal/daemon"
	"taskmesh/pkg/cli"
)

const version = "0.1.0"

func main() {
	addr := flag.String("addr", "", "transport address for this console's own node (host:port); empty joins as a listener")
	storePath := flag.String("store", "", "path to this console's store file; defaults to a fresh per-session temp file")
	mdnsService := flag.String("mdns-service", "_taskmesh._tcp", "mDNS service name to discover peers under")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("taskmeshctl %s\n", version)
		return
	}

	cfg := config.DefaultConfig()
	cfg.NodeAddr = *addr
	cfg.MDNSService = *mdnsService
	if *storePath != "" {
		cfg.StorePath = *storePath
	} else {
		cfg.StorePath = fmt.Sprintf("taskmeshctl-%s.db", uuid.New().String())
	}
	cfg.LogLevel = "warn"

	d, err := daemon.New(cfg)
	if err != nil {
		cli.NewCLIError("Failed to start console node").WithDetail(err.Error()).Exit()
		return
	}
	defer d.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	fmt.Printf("%s\n", cli.Highlight(fmt.Sprintf("taskmeshctl %s — connected to %s", version, orListener(cfg.NodeAddr))))
	fmt.Println(cli.Dimmed("Type \\help for a list of commands."))

	rl, err := readline.New(cli.Info("taskmesh> "))
	if err != nil {
		cli.NewCLIError("Failed to start console input").WithDetail(err.Error()).Exit()
		return
	}
	defer rl.Close()

	repl(ctx, d, rl)

	cancel()
	<-runErr
}

func orListener(addr string) string {
	if addr == "" {
		return "(listener, no vote)"
	}
	return addr
}

func repl(ctx context.Context, d *daemon.Daemon, rl *readline.Instance) {
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return
		}
		if err != nil {
			cli.PrintError("reading input: %v", err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd := fields[0]
		rest := strings.TrimSpace(strings.TrimPrefix(line, cmd))

		switch cmd {
		case "\\quit", "\\q", "\\exit":
			return
		case "\\help", "\\h":
			printHelp()
		case "\\status", "\\s":
			printStatus(d)
		case "\\peers", "\\p":
			printPeers(d)
		case "\\submit":
			if rest == "" {
				cli.ErrMissingArgument("text", "\\submit <text>").Print()
				continue
			}
			d.Submit([]byte(rest))
			cli.PrintSuccess("submitted (%d bytes)", len(rest))
		case "\\watch", "\\w":
			watchCommits(ctx, d)
		default:
			cli.ErrInvalidCommand(cmd).Print()
		}
	}
}

func printHelp() {
	f := cli.NewHelpFormatter("taskmeshctl", version)
	f.AddCommand(cli.Command{Name: "\\submit", Description: "submit a payload for replication", Usage: "\\submit <text>"})
	f.AddCommand(cli.Command{Name: "\\watch", Description: "print commits as they arrive (Ctrl-C to stop)"})
	f.AddCommand(cli.Command{Name: "\\status", Description: "show this node's role, term, and log/commit lengths"})
	f.AddCommand(cli.Command{Name: "\\peers", Description: "list known peer addresses"})
	f.AddCommand(cli.Command{Name: "\\help", Description: "show this help"})
	f.AddCommand(cli.Command{Name: "\\quit", Description: "exit the console"})
	f.PrintUsage()
}

func printStatus(d *daemon.Daemon) {
	st := d.Status()
	leader := "(unknown)"
	if st.CurrentLeader != nil {
		leader = st.CurrentLeader.ShortString()
	}
	cli.KeyValue("role", st.Role.String(), 14)
	cli.KeyValue("current_term", fmt.Sprintf("%d", st.CurrentTerm), 14)
	cli.KeyValue("current_leader", leader, 14)
	cli.KeyValue("log_length", fmt.Sprintf("%d", st.LogLength), 14)
	cli.KeyValue("commit_length", fmt.Sprintf("%d", st.CommitLength), 14)
	cli.KeyValue("votes_received", fmt.Sprintf("%d", st.VotesReceived), 14)
}

func printPeers(d *daemon.Daemon) {
	peers := d.Peers()
	if len(peers) == 0 {
		cli.PrintInfo("no peers known yet; discovery runs in the background and may take a few seconds")
		return
	}
	t := cli.NewTable("node_id", "address")
	for id, addr := range peers {
		t.AddRow(id.ShortString(), addr)
	}
	t.Print()
}

func watchCommits(ctx context.Context, d *daemon.Daemon) {
	commits := d.Commits()
	fmt.Println(cli.Dimmed("watching for commits, Ctrl-C to stop..."))
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-commits:
			if !ok {
				return
			}
			fmt.Printf("[%s] %s\n", time.Now().Format(time.RFC3339), string(payload))
		}
	}
}
