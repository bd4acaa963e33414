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
Package wire implements taskmesh's binary wire protocol.

Protocol Overview:
==================

NetMsg framing carries typed Raft RPCs between peers over the broadcast
transport. It uses a fixed header followed by a method-tagged payload,
the same type-length-value shape the rest of the stack uses for its own
framing.

Message Format:
===============

	+--------+--------+--------+--------+--------+--------+--------+...+--------+--------+--------+...
	| Magic  | Version| Method | Flags  |      Id (4B)     |   HasRecipient (1B) | RecipientId (16B, if present) | Length (4B) | Payload...
	+--------+--------+--------+--------+--------+--------+--------+...+--------+--------+--------+...

	- Magic (1 byte): protocol magic number (0xA4 for taskmesh)
	- Version (1 byte): protocol version (currently 0x01)
	- Method (1 byte): message method tag
	- Flags (1 byte): message flags (compression, etc.)
	- Id (4 bytes): message id, big-endian
	- HasRecipient (1 byte): 0x00 broadcast, 0x01 recipient present
	- RecipientId (16 bytes, present only if HasRecipient == 0x01)
	- Length (4 bytes): payload length, big-endian
	- Payload: method-tagged body, variable length

Methods:
========

	- 0x00: VoteRequest
	- 0x01: VoteResponse
	- 0x02: LogRequest
	- 0x03: LogResponse
	- 0x04: BroadcastRequest
*/
package wire

import (
	"encoding/binary"
	"io"

	"taskmesh/internal/errors"
	"taskmesh/internal/nodeid"
)

// Protocol constants.
const (
	MagicByte       byte = 0xA4
	ProtocolVersion byte = 0x01

	// MaxPayloadSize bounds a single NetMsg payload (16 MiB).
	MaxPayloadSize = 16 * 1024 * 1024

	fixedHeaderSize = 1 + 1 + 1 + 1 + 4 + 1 // magic,version,method,flags,id,hasRecipient
)

// Method identifies the kind of Raft RPC a NetMsg payload carries.
type Method byte

const (
	MethodVoteRequest      Method = 0x00
	MethodVoteResponse     Method = 0x01
	MethodLogRequest       Method = 0x02
	MethodLogResponse      Method = 0x03
	MethodBroadcastRequest Method = 0x04
)

func (m Method) String() string {
	switch m {
	case MethodVoteRequest:
		return "VoteRequest"
	case MethodVoteResponse:
		return "VoteResponse"
	case MethodLogRequest:
		return "LogRequest"
	case MethodLogResponse:
		return "LogResponse"
	case MethodBroadcastRequest:
		return "BroadcastRequest"
	default:
		return "Unknown"
	}
}

// Flag carries per-message wire flags.
type Flag byte

const (
	FlagNone       Flag = 0x00
	FlagCompressed Flag = 0x01
)

// Bits 1-3 of the flags byte carry a small compression algorithm id
// alongside FlagCompressed, so a receiver can pick the matching
// decompressor without a separate negotiation round trip. The id
// space (0-7) is wide enough for every algorithm internal/compression
// defines today.
const (
	algorithmShift = 1
	algorithmMask  = 0x0E
)

// WithAlgorithm returns f with FlagCompressed set and the given
// algorithm id packed into the flag byte.
func (f Flag) WithAlgorithm(algo byte) Flag {
	cleared := f&^Flag(algorithmMask) | FlagCompressed
	return cleared | Flag((algo<<algorithmShift)&algorithmMask)
}

// Algorithm extracts the compression algorithm id packed by
// WithAlgorithm. Meaningless unless Compressed reports true.
func (f Flag) Algorithm() byte {
	return byte(f&Flag(algorithmMask)) >> algorithmShift
}

// Compressed reports whether FlagCompressed is set.
func (f Flag) Compressed() bool {
	return f&FlagCompressed != 0
}

// NetMsg is the envelope carried over the broadcast transport. A nil
// RecipientId means broadcast to all; a non-nil one makes the
// transport send it only to that peer. Nothing filters on receipt.
type NetMsg struct {
	Id          uint32
	RecipientId *nodeid.NodeId
	Method      Method
	Flags       Flag
	Payload     []byte
}

// WriteTo serializes msg to w.
func WriteTo(w io.Writer, msg NetMsg) error {
	if len(msg.Payload) > MaxPayloadSize {
		return errors.FrameTooLarge(uint32(len(msg.Payload)), MaxPayloadSize)
	}

	hasRecipient := byte(0x00)
	if msg.RecipientId != nil {
		hasRecipient = 0x01
	}

	header := make([]byte, fixedHeaderSize)
	header[0] = MagicByte
	header[1] = ProtocolVersion
	header[2] = byte(msg.Method)
	header[3] = byte(msg.Flags)
	binary.BigEndian.PutUint32(header[4:8], msg.Id)
	header[8] = hasRecipient
	if _, err := w.Write(header); err != nil {
		return err
	}

	if msg.RecipientId != nil {
		if _, err := w.Write(msg.RecipientId[:]); err != nil {
			return err
		}
	}

	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(msg.Payload)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	if len(msg.Payload) > 0 {
		if _, err := w.Write(msg.Payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrom deserializes a NetMsg from r.
func ReadFrom(r io.Reader) (NetMsg, error) {
	header := make([]byte, fixedHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return NetMsg{}, err
	}

	if header[0] != MagicByte {
		return NetMsg{}, errors.BadMagic(header[0])
	}
	if header[1] != ProtocolVersion {
		return NetMsg{}, errors.NewDecodeError("unsupported wire version")
	}

	method := Method(header[2])
	switch method {
	case MethodVoteRequest, MethodVoteResponse, MethodLogRequest, MethodLogResponse, MethodBroadcastRequest:
	default:
		return NetMsg{}, errors.BadMethod(header[2])
	}

	msg := NetMsg{
		Method: method,
		Flags:  Flag(header[3]),
		Id:     binary.BigEndian.Uint32(header[4:8]),
	}

	if header[8] == 0x01 {
		idBuf := make([]byte, nodeid.Size)
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return NetMsg{}, err
		}
		id, err := nodeid.FromBytes(idBuf)
		if err != nil {
			return NetMsg{}, errors.MalformedNodeID(len(idBuf))
		}
		msg.RecipientId = &id
	}

	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return NetMsg{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length > MaxPayloadSize {
		return NetMsg{}, errors.FrameTooLarge(length, MaxPayloadSize)
	}
	if length > 0 {
		msg.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, msg.Payload); err != nil {
			return NetMsg{}, err
		}
	}
	return msg, nil
}
