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
	"encoding/binary"

	"taskmesh/internal/errors"
	"taskmesh/internal/nodeid"
	"taskmesh/internal/raftlog"
)

// encodeLogEntry appends the wire encoding of a raftlog.Entry: { term: u64,
// payload: bytes }.
func encodeLogEntry(buf []byte, e raftlog.Entry) []byte {
	buf = binary.BigEndian.AppendUint64(buf, e.Term)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Payload)))
	buf = append(buf, e.Payload...)
	return buf
}

func decodeLogEntry(b []byte) (raftlog.Entry, []byte, error) {
	if len(b) < 12 {
		return raftlog.Entry{}, nil, errors.ShortBuffer(12, len(b))
	}
	term := binary.BigEndian.Uint64(b[0:8])
	length := binary.BigEndian.Uint32(b[8:12])
	b = b[12:]
	if uint32(len(b)) < length {
		return raftlog.Entry{}, nil, errors.ShortBuffer(int(length), len(b))
	}
	payload := make([]byte, length)
	copy(payload, b[:length])
	return raftlog.Entry{Term: term, Payload: payload}, b[length:], nil
}

// VoteRequest is the body of a MethodVoteRequest message.
type VoteRequest struct {
	NodeId     nodeid.NodeId
	Term       uint64
	LogLength  uint64
	LastTerm   uint64
}

// Encode serializes the body.
func (v VoteRequest) Encode() []byte {
	buf := make([]byte, 0, nodeid.Size+24)
	buf = append(buf, v.NodeId[:]...)
	buf = binary.BigEndian.AppendUint64(buf, v.Term)
	buf = binary.BigEndian.AppendUint64(buf, v.LogLength)
	buf = binary.BigEndian.AppendUint64(buf, v.LastTerm)
	return buf
}

// DecodeVoteRequest parses a VoteRequest body.
func DecodeVoteRequest(b []byte) (VoteRequest, error) {
	if len(b) < nodeid.Size+24 {
		return VoteRequest{}, errors.ShortBuffer(nodeid.Size+24, len(b))
	}
	id, err := nodeid.FromBytes(b[:nodeid.Size])
	if err != nil {
		return VoteRequest{}, errors.MalformedNodeID(nodeid.Size)
	}
	b = b[nodeid.Size:]
	return VoteRequest{
		NodeId:    id,
		Term:      binary.BigEndian.Uint64(b[0:8]),
		LogLength: binary.BigEndian.Uint64(b[8:16]),
		LastTerm:  binary.BigEndian.Uint64(b[16:24]),
	}, nil
}

// VoteResponse is the body of a MethodVoteResponse message.
type VoteResponse struct {
	NodeId nodeid.NodeId
	Term   uint64
	Ok     bool
}

// Encode serializes the body.
func (v VoteResponse) Encode() []byte {
	buf := make([]byte, 0, nodeid.Size+9)
	buf = append(buf, v.NodeId[:]...)
	buf = binary.BigEndian.AppendUint64(buf, v.Term)
	if v.Ok {
		buf = append(buf, 0x01)
	} else {
		buf = append(buf, 0x00)
	}
	return buf
}

// DecodeVoteResponse parses a VoteResponse body.
func DecodeVoteResponse(b []byte) (VoteResponse, error) {
	if len(b) < nodeid.Size+9 {
		return VoteResponse{}, errors.ShortBuffer(nodeid.Size+9, len(b))
	}
	id, err := nodeid.FromBytes(b[:nodeid.Size])
	if err != nil {
		return VoteResponse{}, errors.MalformedNodeID(nodeid.Size)
	}
	b = b[nodeid.Size:]
	return VoteResponse{
		NodeId: id,
		Term:   binary.BigEndian.Uint64(b[0:8]),
		Ok:     b[8] == 0x01,
	}, nil
}

// LogRequest is the body of a MethodLogRequest message (the Raft
// AppendEntries-equivalent replication RPC).
type LogRequest struct {
	LeaderId     nodeid.NodeId
	Term         uint64
	PrefixLen    uint64
	PrefixTerm   uint64
	CommitLength uint64
	Suffix       []raftlog.Entry
}

// Encode serializes the body.
func (r LogRequest) Encode() []byte {
	buf := make([]byte, 0, nodeid.Size+32+4)
	buf = append(buf, r.LeaderId[:]...)
	buf = binary.BigEndian.AppendUint64(buf, r.Term)
	buf = binary.BigEndian.AppendUint64(buf, r.PrefixLen)
	buf = binary.BigEndian.AppendUint64(buf, r.PrefixTerm)
	buf = binary.BigEndian.AppendUint64(buf, r.CommitLength)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.Suffix)))
	for _, e := range r.Suffix {
		buf = encodeLogEntry(buf, e)
	}
	return buf
}

// DecodeLogRequest parses a LogRequest body.
func DecodeLogRequest(b []byte) (LogRequest, error) {
	if len(b) < nodeid.Size+36 {
		return LogRequest{}, errors.ShortBuffer(nodeid.Size+36, len(b))
	}
	id, err := nodeid.FromBytes(b[:nodeid.Size])
	if err != nil {
		return LogRequest{}, errors.MalformedNodeID(nodeid.Size)
	}
	b = b[nodeid.Size:]
	req := LogRequest{
		LeaderId:     id,
		Term:         binary.BigEndian.Uint64(b[0:8]),
		PrefixLen:    binary.BigEndian.Uint64(b[8:16]),
		PrefixTerm:   binary.BigEndian.Uint64(b[16:24]),
		CommitLength: binary.BigEndian.Uint64(b[24:32]),
	}
	count := binary.BigEndian.Uint32(b[32:36])
	b = b[36:]
	req.Suffix = make([]raftlog.Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		e, rest, err := decodeLogEntry(b)
		if err != nil {
			return LogRequest{}, err
		}
		req.Suffix = append(req.Suffix, e)
		b = rest
	}
	return req, nil
}

// LogResponse is the body of a MethodLogResponse message.
type LogResponse struct {
	NodeId nodeid.NodeId
	Term   uint64
	Ack    uint64
	Ok     bool
}

// Encode serializes the body.
func (r LogResponse) Encode() []byte {
	buf := make([]byte, 0, nodeid.Size+17)
	buf = append(buf, r.NodeId[:]...)
	buf = binary.BigEndian.AppendUint64(buf, r.Term)
	buf = binary.BigEndian.AppendUint64(buf, r.Ack)
	if r.Ok {
		buf = append(buf, 0x01)
	} else {
		buf = append(buf, 0x00)
	}
	return buf
}

// DecodeLogResponse parses a LogResponse body.
func DecodeLogResponse(b []byte) (LogResponse, error) {
	if len(b) < nodeid.Size+17 {
		return LogResponse{}, errors.ShortBuffer(nodeid.Size+17, len(b))
	}
	id, err := nodeid.FromBytes(b[:nodeid.Size])
	if err != nil {
		return LogResponse{}, errors.MalformedNodeID(nodeid.Size)
	}
	b = b[nodeid.Size:]
	return LogResponse{
		NodeId: id,
		Term:   binary.BigEndian.Uint64(b[0:8]),
		Ack:    binary.BigEndian.Uint64(b[8:16]),
		Ok:     b[16] == 0x01,
	}, nil
}

// BroadcastRequest is the body of a MethodBroadcastRequest message: a
// non-leader forwarding a submitted payload to the (believed) leader.
type BroadcastRequest struct {
	Payload []byte
}

// Encode serializes the body.
func (r BroadcastRequest) Encode() []byte {
	return append([]byte{}, r.Payload...)
}

// DecodeBroadcastRequest parses a BroadcastRequest body.
func DecodeBroadcastRequest(b []byte) (BroadcastRequest, error) {
	payload := make([]byte, len(b))
	copy(payload, b)
	return BroadcastRequest{Payload: payload}, nil
}
