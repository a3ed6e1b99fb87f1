// pkg/columnar/packer.go
// Package columnar implements the per-column compression used by the chunk
// format: run-length encoding of packable scalars, delta encoding of
// integers, boolean run counts, raw byte streams, and the two-column value
// group. Encoded columns are carried in immutable slabs (see slab.go) so
// buffers can be shared structurally between documents.
package columnar

import (
	"errors"
	"unicode/utf8"

	"weft/internal/encoding"
)

var (
	ErrMalformedColumn = errors.New("malformed column data")
	ErrBadUtf8         = errors.New("invalid utf-8 in string column")
)

// Packer describes how items of one column type read and write themselves.
// Unpack returns the item and the number of bytes consumed; a count of 0
// signals malformed input.
type Packer[T any] interface {
	Pack(dst []byte, v T) []byte
	Unpack(buf []byte) (T, int)
	Equal(a, b T) bool
	// Acc is the item's contribution to a slab accumulator: the value for
	// unsigned integer columns, 1 for everything else (signed integer
	// columns included).
	Acc(v T) uint64
}

// UintPacker packs uint64 items as unsigned LEB128.
type UintPacker struct{}

func (UintPacker) Pack(dst []byte, v uint64) []byte { return encoding.AppendUleb(dst, v) }
func (UintPacker) Equal(a, b uint64) bool           { return a == b }
func (UintPacker) Acc(v uint64) uint64              { return v }

func (UintPacker) Unpack(buf []byte) (uint64, int) {
	return encoding.Uleb(buf)
}

// IntPacker packs int64 items as signed LEB128.
type IntPacker struct{}

func (IntPacker) Pack(dst []byte, v int64) []byte { return encoding.AppendLeb(dst, v) }
func (IntPacker) Equal(a, b int64) bool           { return a == b }
func (IntPacker) Acc(v int64) uint64              { return 1 }

func (IntPacker) Unpack(buf []byte) (int64, int) {
	return encoding.Leb(buf)
}

// StrPacker packs strings as uleb length-prefixed UTF-8.
type StrPacker struct{}

func (StrPacker) Pack(dst []byte, v string) []byte {
	dst = encoding.AppendUleb(dst, uint64(len(v)))
	return append(dst, v...)
}

func (StrPacker) Equal(a, b string) bool { return a == b }
func (StrPacker) Acc(v string) uint64    { return 1 }

func (StrPacker) Unpack(buf []byte) (string, int) {
	n, sz := encoding.Uleb(buf)
	if sz == 0 || uint64(len(buf)-sz) < n {
		return "", 0
	}
	if !utf8.Valid(buf[sz : sz+int(n)]) {
		return "", 0
	}
	return string(buf[sz : sz+int(n)]), sz + int(n)
}
