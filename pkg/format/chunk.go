// pkg/format/chunk.go
// Package format implements the binary chunk format: magic + checksum +
// type + length framing, the per-chunk column layouts, and the change and
// document codecs.
//
// Every binary artifact is a chunk:
//
//	0-3:  Magic number (85 6f 4a 83)
//	4-7:  Checksum: first 4 bytes of sha256(type || leb128(len) || data)
//	8:    Chunk type (0 document, 1 change, 2 deflated change, 4 bundle)
//	9-:   leb128 data length, then data
//
// The change hash of a change chunk is the full 32-byte sha256 over the
// same bytes the checksum covers.
package format

import (
	"bytes"
	"compress/flate"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"

	"weft/internal/encoding"
	"weft/pkg/change"
)

var magicBytes = [4]byte{0x85, 0x6f, 0x4a, 0x83}

// ChunkType tags the payload of a chunk.
type ChunkType byte

const (
	ChunkDocument   ChunkType = 0
	ChunkChange     ChunkType = 1
	ChunkCompressed ChunkType = 2
	ChunkBundle     ChunkType = 4
)

// deflateMinSize is the byte threshold at or above which change chunks and
// columns are deflated.
const deflateMinSize = 1024

// Chunk is one parsed frame.
type Chunk struct {
	Type ChunkType
	Data []byte
	Hash change.Hash
}

// hashChunk computes the content address of a chunk body.
func hashChunk(typ ChunkType, data []byte) change.Hash {
	h := sha256.New()
	h.Write([]byte{byte(typ)})
	h.Write(encoding.AppendUleb(nil, uint64(len(data))))
	h.Write(data)
	var out change.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// EncodeChunk frames a chunk body.
func EncodeChunk(typ ChunkType, data []byte) []byte {
	hash := hashChunk(typ, data)
	out := make([]byte, 0, len(data)+16)
	out = append(out, magicBytes[:]...)
	out = append(out, hash[:4]...)
	out = append(out, byte(typ))
	out = encoding.AppendUleb(out, uint64(len(data)))
	return append(out, data...)
}

// ParseChunk reads one chunk off the front of buf, verifying magic and
// checksum, and returns the remaining bytes.
func ParseChunk(buf []byte) (Chunk, []byte, error) {
	if len(buf) < len(magicBytes) {
		return Chunk{}, nil, ErrLengthMismatch
	}
	if !bytes.Equal(buf[:4], magicBytes[:]) {
		return Chunk{}, nil, ErrBadMagic
	}
	rest := buf[4:]
	if len(rest) < 5 {
		return Chunk{}, nil, ErrLengthMismatch
	}
	checksum := rest[:4]
	typ := ChunkType(rest[4])
	switch typ {
	case ChunkDocument, ChunkChange, ChunkCompressed, ChunkBundle:
	default:
		return Chunk{}, nil, ErrUnknownChunkType
	}
	rest = rest[5:]
	length, n := encoding.Uleb(rest)
	if n == 0 {
		return Chunk{}, nil, ErrLebOverflow
	}
	rest = rest[n:]
	if uint64(len(rest)) < length {
		return Chunk{}, nil, ErrLengthMismatch
	}
	data := rest[:length]
	hash := hashChunk(typ, data)
	if !bytes.Equal(hash[:4], checksum) {
		return Chunk{}, nil, ErrBadChecksum
	}
	return Chunk{Type: typ, Data: data, Hash: hash}, rest[length:], nil
}

// deflateBytes raw-deflate-compresses data.
func deflateBytes(data []byte) []byte {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	_, _ = w.Write(data)
	_ = w.Close()
	return buf.Bytes()
}

// inflateBytes reverses deflateBytes.
func inflateBytes(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(ErrLengthMismatch, "inflate")
	}
	return out, nil
}

// CompressChunk re-frames a change chunk as a compressed-change chunk when
// it is large enough to benefit. The change hash is always that of the
// uncompressed form.
func CompressChunk(c Chunk) []byte {
	if c.Type != ChunkChange || len(c.Data) < deflateMinSize {
		return EncodeChunk(c.Type, c.Data)
	}
	return EncodeChunk(ChunkCompressed, deflateBytes(c.Data))
}

// DecompressChunk resolves a compressed-change chunk to its change form;
// other chunk types pass through.
func DecompressChunk(c Chunk) (Chunk, error) {
	if c.Type != ChunkCompressed {
		return c, nil
	}
	data, err := inflateBytes(c.Data)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Type: ChunkChange, Data: data, Hash: hashChunk(ChunkChange, data)}, nil
}
