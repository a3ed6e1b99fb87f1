// pkg/columnar/raw.go
package columnar

import "weft/internal/encoding"

// Raw columns are a sequence of uleb length-prefixed opaque byte strings.

// RawEncoder encodes a raw column.
type RawEncoder struct {
	buf []byte
	len int
}

// NewRawEncoder returns an empty raw encoder.
func NewRawEncoder() *RawEncoder {
	return &RawEncoder{}
}

// Append adds one byte string.
func (e *RawEncoder) Append(b []byte) {
	e.len++
	e.buf = encoding.AppendUleb(e.buf, uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// Len returns the number of items appended.
func (e *RawEncoder) Len() int { return e.len }

// Finish returns the encoded bytes.
func (e *RawEncoder) Finish() []byte {
	out := e.buf
	e.buf, e.len = nil, 0
	return out
}

// RawDecoder walks a raw column.
type RawDecoder struct {
	buf []byte
	off int
	err error
}

// NewRawDecoder positions a decoder at the start of buf.
func NewRawDecoder(buf []byte) *RawDecoder {
	return &RawDecoder{buf: buf}
}

// Next returns the next byte string (aliasing the input buffer); ok is false
// at end of column or on error.
func (d *RawDecoder) Next() ([]byte, bool) {
	if d.err != nil || d.off >= len(d.buf) {
		return nil, false
	}
	n, sz := encoding.Uleb(d.buf[d.off:])
	if sz == 0 || uint64(len(d.buf)-d.off-sz) < n {
		d.err = ErrMalformedColumn
		return nil, false
	}
	start := d.off + sz
	d.off = start + int(n)
	return d.buf[start:d.off], true
}

// Err reports a malformed-column error.
func (d *RawDecoder) Err() error { return d.err }
