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
taskmesh-dump opens a node's durable store file and prints its
contents: current term, voted-for id, log entries, commit length, and
committed payloads. It opens the file with store.Open, the same
read-write open a node uses, which takes bbolt's exclusive file lock;
while a running node holds the store, the open waits for that lock.

Usage:

	taskmesh-dump --store ./node.db
	taskmesh-dump --store ./node.db --format json
	taskmesh-dump --store ./node.db --payloads
*/
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"taskmesh/internal/store"
	"taskmesh/pkg/cli"
)

func main() {
	storePath := flag.String("store", "taskmesh.db", "path to the store file to inspect")
	format := flag.String("format", "table", "output format: table, json, or plain")
	showPayloads := flag.Bool("payloads", false, "include raw log and commit payloads (base64) in the output")
	flag.Parse()

	if _, err := os.Stat(*storePath); err != nil {
		cli.NewCLIError("Store file not found").
			WithDetail(fmt.Sprintf("Could not find: %s", *storePath)).
			Exit()
		return
	}

	st, err := store.Open(*storePath)
	if err != nil {
		cli.NewCLIError("Failed to open store").
			WithDetail(err.Error()).
			WithSuggestion("Ensure no other process (including a running node) holds the store open").
			Exit()
		return
	}
	defer st.Close()

	durable, err := st.Load()
	if err != nil {
		cli.NewCLIError("Failed to load store contents").WithDetail(err.Error()).Exit()
		return
	}

	outFormat := cli.ParseOutputFormat(*format)

	fmt.Println(cli.Highlight("STATE"))
	votedFor := "(none)"
	if durable.VotedFor != nil {
		votedFor = durable.VotedFor.String()
	}
	cli.KeyValue("current_term", fmt.Sprintf("%d", durable.CurrentTerm), 16)
	cli.KeyValue("voted_for", votedFor, 16)
	cli.KeyValue("commit_length", fmt.Sprintf("%d", durable.CommitLength), 16)
	cli.KeyValue("log_length", fmt.Sprintf("%d", durable.Log.Len()), 16)
	cli.KeyValue("commits_stored", fmt.Sprintf("%d", len(durable.Commits)), 16)
	fmt.Println()

	logTable := cli.NewTable("index", "term", "payload_len", "payload")
	logTable.SetFormat(outFormat)
	for i := uint64(0); i < durable.Log.Len(); i++ {
		entry, err := durable.Log.Get(i)
		if err != nil {
			cli.NewCLIError("Failed to read log entry").WithDetail(err.Error()).Exit()
			return
		}
		payload := "(hidden)"
		if *showPayloads {
			payload = base64.StdEncoding.EncodeToString(entry.Payload)
		}
		logTable.AddRow(fmt.Sprintf("%d", i), fmt.Sprintf("%d", entry.Term), fmt.Sprintf("%d", len(entry.Payload)), payload)
	}
	fmt.Println(cli.Highlight("LOG ENTRIES"))
	logTable.Print()
	fmt.Println()

	commitTable := cli.NewTable("index", "payload_len", "payload")
	commitTable.SetFormat(outFormat)
	for i, payload := range durable.Commits {
		rendered := "(hidden)"
		if *showPayloads {
			rendered = base64.StdEncoding.EncodeToString(payload)
		}
		commitTable.AddRow(fmt.Sprintf("%d", i), fmt.Sprintf("%d", len(payload)), rendered)
	}
	fmt.Println(cli.Highlight("COMMITS"))
	commitTable.Print()
}
