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

package wire

import (
	"bytes"
	"reflect"
	"testing"

	"taskmesh/internal/nodeid"
	"taskmesh/internal/raftlog"
)

func TestNetMsgRoundTripBroadcast(t *testing.T) {
	msg := NetMsg{
		Id:     42,
		Method: MethodVoteRequest,
		Flags:  FlagNone,
		Payload: VoteRequest{
			NodeId:    nodeid.FromAddress("a:1"),
			Term:      3,
			LogLength: 7,
			LastTerm:  2,
		}.Encode(),
	}

	var buf bytes.Buffer
	if err := WriteTo(&buf, msg); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	got, err := ReadFrom(&buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if got.RecipientId != nil {
		t.Fatalf("expected nil recipient, got %v", got.RecipientId)
	}
	if !reflect.DeepEqual(got.Payload, msg.Payload) {
		t.Fatalf("payload mismatch: got %v want %v", got.Payload, msg.Payload)
	}
	if got.Id != msg.Id || got.Method != msg.Method {
		t.Fatalf("header mismatch: got %+v", got)
	}
}

func TestNetMsgRoundTripWithRecipient(t *testing.T) {
	recipient := nodeid.FromAddress("b:2")
	msg := NetMsg{
		Id:          7,
		Method:      MethodLogResponse,
		RecipientId: &recipient,
		Payload: LogResponse{
			NodeId: nodeid.FromAddress("a:1"),
			Term:   1,
			Ack:    5,
			Ok:     true,
		}.Encode(),
	}

	var buf bytes.Buffer
	if err := WriteTo(&buf, msg); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	got, err := ReadFrom(&buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if got.RecipientId == nil || *got.RecipientId != recipient {
		t.Fatalf("recipient mismatch: got %v want %v", got.RecipientId, recipient)
	}
}

func TestVoteRequestRoundTrip(t *testing.T) {
	want := VoteRequest{NodeId: nodeid.FromAddress("a:1"), Term: 9, LogLength: 4, LastTerm: 8}
	got, err := DecodeVoteRequest(want.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestVoteResponseRoundTrip(t *testing.T) {
	want := VoteResponse{NodeId: nodeid.FromAddress("a:1"), Term: 9, Ok: true}
	got, err := DecodeVoteResponse(want.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestLogRequestRoundTrip(t *testing.T) {
	want := LogRequest{
		LeaderId:     nodeid.FromAddress("a:1"),
		Term:         3,
		PrefixLen:    1,
		PrefixTerm:   2,
		CommitLength: 1,
		Suffix: []raftlog.Entry{
			{Term: 2, Payload: []byte("hello")},
			{Term: 2, Payload: []byte{}},
		},
	}
	got, err := DecodeLogRequest(want.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.LeaderId != want.LeaderId || got.Term != want.Term || got.PrefixLen != want.PrefixLen ||
		got.PrefixTerm != want.PrefixTerm || got.CommitLength != want.CommitLength {
		t.Fatalf("header fields mismatch: got %+v want %+v", got, want)
	}
	if len(got.Suffix) != len(want.Suffix) {
		t.Fatalf("suffix length mismatch: got %d want %d", len(got.Suffix), len(want.Suffix))
	}
	for i := range want.Suffix {
		if got.Suffix[i].Term != want.Suffix[i].Term || !bytes.Equal(got.Suffix[i].Payload, want.Suffix[i].Payload) {
			t.Fatalf("entry %d mismatch: got %+v want %+v", i, got.Suffix[i], want.Suffix[i])
		}
	}
}

func TestLogResponseRoundTrip(t *testing.T) {
	want := LogResponse{NodeId: nodeid.FromAddress("a:1"), Term: 2, Ack: 5, Ok: false}
	got, err := DecodeLogResponse(want.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestBroadcastRequestRoundTrip(t *testing.T) {
	want := BroadcastRequest{Payload: []byte("submit-me")}
	got, err := DecodeBroadcastRequest(want.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("got %v want %v", got.Payload, want.Payload)
	}
}

func TestFlagWithAlgorithmRoundTrip(t *testing.T) {
	for _, algo := range []byte{0, 1, 2, 3, 4} {
		f := FlagNone.WithAlgorithm(algo)
		if !f.Compressed() {
			t.Fatalf("algo %d: expected Compressed true", algo)
		}
		if got := f.Algorithm(); got != algo {
			t.Fatalf("algo %d: Algorithm() = %d", algo, got)
		}
	}
	if FlagNone.Compressed() {
		t.Fatal("FlagNone should not report Compressed")
	}
}

func TestReadFromRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	msg := NetMsg{Id: 1, Method: MethodVoteRequest, Payload: []byte{1, 2, 3}}
	if err := WriteTo(&buf, msg); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[0] = 0xFF
	if _, err := ReadFrom(bytes.NewReader(corrupted)); err == nil {
		t.Fatal("expected error for bad magic byte")
	}
}
