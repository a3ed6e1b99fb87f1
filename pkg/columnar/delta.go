// pkg/columnar/delta.go
package columnar

// Delta columns store int64 sequences as the RLE of first differences. The
// running absolute value belongs to the cursor, not the encoding; a slab
// records the absolute value at its start so decoding can begin mid-column.

// DeltaEncoder encodes int64 items as RLE-compressed differences.
type DeltaEncoder struct {
	rle *RLEEncoder[int64, IntPacker]
	abs int64
}

// NewDeltaEncoder returns an encoder whose first item is encoded as a
// difference from start (0 for a fresh column).
func NewDeltaEncoder(start int64) *DeltaEncoder {
	return &DeltaEncoder{rle: NewRLEEncoder[int64, IntPacker](IntPacker{}), abs: start}
}

// Append adds one value.
func (e *DeltaEncoder) Append(v int64) {
	e.rle.Append(v - e.abs)
	e.abs = v
}

// AppendNull adds a null; the running absolute is unchanged.
func (e *DeltaEncoder) AppendNull() {
	e.rle.AppendNull()
}

// AppendCell adds a decoded cell.
func (e *DeltaEncoder) AppendCell(c Cell[int64]) {
	if c.Null {
		e.AppendNull()
	} else {
		e.Append(c.Val)
	}
}

// Abs returns the running absolute value after the last appended item.
func (e *DeltaEncoder) Abs() int64 { return e.abs }

// Len returns the number of items appended.
func (e *DeltaEncoder) Len() int { return e.rle.Len() }

// Finish returns the encoded bytes.
func (e *DeltaEncoder) Finish() []byte { return e.rle.Finish() }

// DeltaDecoder walks a delta column, reconstructing absolute values.
type DeltaDecoder struct {
	rle *RLEDecoder[int64, IntPacker]
	abs int64
}

// NewDeltaDecoder positions a decoder at the start of buf with the given
// starting absolute value.
func NewDeltaDecoder(buf []byte, start int64) *DeltaDecoder {
	return &DeltaDecoder{rle: NewRLEDecoder[int64, IntPacker](IntPacker{}, buf), abs: start}
}

// Next returns the next absolute value (or a null cell).
func (d *DeltaDecoder) Next() (Cell[int64], bool) {
	c, ok := d.rle.Next()
	if !ok {
		return Cell[int64]{}, false
	}
	if c.Null {
		return c, true
	}
	d.abs += c.Val
	return Some(d.abs), true
}

// Err reports a malformed-column error.
func (d *DeltaDecoder) Err() error { return d.rle.Err() }

// Done reports clean consumption of the whole column.
func (d *DeltaDecoder) Done() bool { return d.rle.Done() }
