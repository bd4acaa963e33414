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
Package compression provides configurable compression for NetMsg
payloads carried over the broadcast transport.

Compression Overview:
=====================

Large LogRequest suffixes (a follower backfilling many entries at once)
and BroadcastRequest payloads benefit from compressing the wire payload
before it leaves the node. Compression is opt-in per message: a message
is compressed only if it is at least MinSize bytes, and the chosen
algorithm is recorded so the receiving peer can pick the matching
decompressor without negotiation.

Supported Algorithms:
=====================

1. LZ4: fast compression/decompression, moderate ratio
2. Snappy: very fast, lower ratio
3. Zstd: best ratio, configurable speed/ratio tradeoff
4. Gzip: stdlib only, used when configured
*/
package compression

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm int

const (
	AlgorithmNone Algorithm = iota
	AlgorithmGzip
	AlgorithmLZ4
	AlgorithmSnappy
	AlgorithmZstd
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmGzip:
		return "gzip"
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmSnappy:
		return "snappy"
	case AlgorithmZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseAlgorithm parses a compression algorithm from its string name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "none", "":
		return AlgorithmNone, nil
	case "gzip":
		return AlgorithmGzip, nil
	case "lz4":
		return AlgorithmLZ4, nil
	case "snappy":
		return AlgorithmSnappy, nil
	case "zstd":
		return AlgorithmZstd, nil
	default:
		return AlgorithmNone, fmt.Errorf("unknown compression algorithm: %s", s)
	}
}

// Config holds the compressor's tunables.
type Config struct {
	Algorithm Algorithm
	// MinSize is the smallest payload, in bytes, worth compressing.
	// Payloads under this size are sent uncompressed regardless of
	// Algorithm — the framing overhead of most algorithms outweighs
	// the saving below a few hundred bytes.
	MinSize int
}

// DefaultConfig returns sensible defaults for wire-payload compression.
func DefaultConfig() Config {
	return Config{Algorithm: AlgorithmZstd, MinSize: 256}
}

// Compressor compresses and decompresses NetMsg payloads for one
// configured algorithm.
type Compressor struct {
	config Config
}

// NewCompressor creates a Compressor for the given config.
func NewCompressor(config Config) *Compressor {
	return &Compressor{config: config}
}

// ShouldCompress reports whether a payload of the given size is worth
// compressing under the configured algorithm and threshold.
func (c *Compressor) ShouldCompress(size int) bool {
	return c.config.Algorithm != AlgorithmNone && size >= c.config.MinSize
}

// Compress compresses data using the configured algorithm. Callers
// should check ShouldCompress first; Compress itself always applies
// the configured algorithm (or returns data unchanged for
// AlgorithmNone).
func (c *Compressor) Compress(data []byte) ([]byte, Algorithm, error) {
	switch c.config.Algorithm {
	case AlgorithmNone:
		return data, AlgorithmNone, nil
	case AlgorithmGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, AlgorithmNone, err
		}
		if err := w.Close(); err != nil {
			return nil, AlgorithmNone, err
		}
		return buf.Bytes(), AlgorithmGzip, nil
	case AlgorithmSnappy:
		return snappy.Encode(nil, data), AlgorithmSnappy, nil
	case AlgorithmLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(data, buf)
		if err != nil {
			return nil, AlgorithmNone, err
		}
		if n == 0 && len(data) > 0 {
			// Incompressible block: lz4 signals this by writing 0 bytes.
			return data, AlgorithmNone, nil
		}
		return buf[:n], AlgorithmLZ4, nil
	case AlgorithmZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, AlgorithmNone, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), AlgorithmZstd, nil
	default:
		return nil, AlgorithmNone, fmt.Errorf("unsupported compression algorithm: %d", c.config.Algorithm)
	}
}

// EncodeWirePayload compresses data if it meets the configured
// threshold, returning the bytes to place on the wire and the
// algorithm actually used (AlgorithmNone if the payload was left
// alone). The compressed bytes are prefixed with data's original
// length as a big-endian uint32, so DecodeWirePayload never needs the
// original size supplied out of band — the NetMsg framing that
// carries this payload has no room for it.
func (c *Compressor) EncodeWirePayload(data []byte) ([]byte, Algorithm, error) {
	if !c.ShouldCompress(len(data)) {
		return data, AlgorithmNone, nil
	}
	compressed, algo, err := c.Compress(data)
	if err != nil {
		return nil, AlgorithmNone, err
	}
	if algo == AlgorithmNone {
		return compressed, AlgorithmNone, nil
	}
	out := make([]byte, 4, 4+len(compressed))
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	out = append(out, compressed...)
	return out, algo, nil
}

// DecodeWirePayload reverses EncodeWirePayload for a payload received
// with algo recorded as its compression algorithm.
func DecodeWirePayload(data []byte, algo Algorithm) ([]byte, error) {
	if algo == AlgorithmNone {
		return data, nil
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("compression: wire payload too short for size prefix")
	}
	originalSize := int(binary.BigEndian.Uint32(data[:4]))
	return Decompress(data[4:], algo, originalSize)
}

// Decompress reverses Compress for the given algorithm. originalSize
// is required only by the LZ4 path, which has no self-describing
// length prefix at the block level; pass 0 for the other algorithms.
func Decompress(data []byte, algo Algorithm, originalSize int) ([]byte, error) {
	switch algo {
	case AlgorithmNone:
		return data, nil
	case AlgorithmGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case AlgorithmSnappy:
		return snappy.Decode(nil, data)
	case AlgorithmLZ4:
		if originalSize <= 0 {
			return nil, fmt.Errorf("compression: lz4 decode requires a known original size")
		}
		buf := make([]byte, originalSize)
		n, err := lz4.UncompressBlock(data, buf)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	case AlgorithmZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %d", algo)
	}
}
