// pkg/columnar/boolean.go
package columnar

import "weft/internal/encoding"

// Boolean columns are a sequence of unsigned LEB128 run lengths of
// alternating values, starting with false. A column beginning with true
// therefore starts with a zero count.

// BoolEncoder encodes a boolean column.
type BoolEncoder struct {
	buf     []byte
	cur     bool
	runLen  uint64
	started bool
	len     int
}

// NewBoolEncoder returns an empty boolean encoder.
func NewBoolEncoder() *BoolEncoder {
	return &BoolEncoder{}
}

// Append adds one value.
func (e *BoolEncoder) Append(v bool) {
	e.len++
	if !e.started {
		e.started = true
		if v {
			// leading zero-length false run
			e.buf = encoding.AppendUleb(e.buf, 0)
		}
		e.cur, e.runLen = v, 1
		return
	}
	if v == e.cur {
		e.runLen++
		return
	}
	e.buf = encoding.AppendUleb(e.buf, e.runLen)
	e.cur, e.runLen = v, 1
}

// Len returns the number of items appended.
func (e *BoolEncoder) Len() int { return e.len }

// Finish flushes the trailing run and returns the encoded bytes.
func (e *BoolEncoder) Finish() []byte {
	if e.started {
		e.buf = encoding.AppendUleb(e.buf, e.runLen)
	}
	out := e.buf
	e.buf, e.started, e.runLen, e.len = nil, false, 0, 0
	return out
}

// BoolDecoder walks a boolean column.
type BoolDecoder struct {
	buf     []byte
	off     int
	cur     bool
	runLeft uint64
	primed  bool
	err     error
}

// NewBoolDecoder positions a decoder at the start of buf.
func NewBoolDecoder(buf []byte) *BoolDecoder {
	return &BoolDecoder{buf: buf}
}

// Next returns the next value; ok is false at end of column or on error.
func (d *BoolDecoder) Next() (bool, bool) {
	if d.err != nil {
		return false, false
	}
	for d.runLeft == 0 {
		if d.off >= len(d.buf) {
			return false, false
		}
		n, sz := encoding.Uleb(d.buf[d.off:])
		if sz == 0 {
			d.err = ErrMalformedColumn
			return false, false
		}
		d.off += sz
		if d.primed {
			d.cur = !d.cur
		} else {
			d.cur = false
			d.primed = true
		}
		d.runLeft = n
	}
	d.runLeft--
	return d.cur, true
}

// Err reports a malformed-column error.
func (d *BoolDecoder) Err() error { return d.err }
