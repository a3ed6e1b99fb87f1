// pkg/columnar/slab.go
package columnar

// Slab is an immutable encoded chunk of one column. The byte buffer is
// shared structurally (never mutated after construction); splices produce
// new slabs and leave the old buffer to other holders. A slab knows how many
// items it encodes, the accumulator total of those items, the min/max
// aggregate of non-null values (integer columns only), and, for delta
// columns, the running absolute value at its start.
type Slab struct {
	data  []byte
	count int
	acc   uint64
	min   uint64
	max   uint64
	abs   int64
}

// NewSlab wraps encoded bytes. The caller must not mutate data afterwards.
func NewSlab(data []byte, count int, acc uint64) Slab {
	return Slab{data: data, count: count, acc: acc, min: ^uint64(0)}
}

// WithMinMax attaches the min/max aggregate.
func (s Slab) WithMinMax(min, max uint64) Slab {
	s.min, s.max = min, max
	return s
}

// WithAbs attaches the delta-column starting absolute value.
func (s Slab) WithAbs(abs int64) Slab {
	s.abs = abs
	return s
}

// Bytes returns the encoded bytes. Callers must not mutate them.
func (s Slab) Bytes() []byte { return s.data }

// Abs returns the delta-column absolute value at slab start.
func (s Slab) Abs() int64 { return s.abs }

// SpanLen, SpanAcc, SpanMin and SpanMax implement slabtree.Span.
func (s Slab) SpanLen() int     { return s.count }
func (s Slab) SpanAcc() uint64  { return s.acc }
func (s Slab) SpanMin() uint64  { return s.min }
func (s Slab) SpanMax() uint64  { return s.max }

// maxSlabItems bounds how many items a re-encoded slab holds, keeping
// boundary decodes during splices cheap.
const maxSlabItems = 512

// EncodeSlabs encodes cells into one or more RLE slabs of bounded size.
func EncodeSlabs[T any, P Packer[T]](p P, cells []Cell[T]) []Slab {
	var out []Slab
	for start := 0; start < len(cells) || (start == 0 && len(cells) == 0); start += maxSlabItems {
		end := start + maxSlabItems
		if end > len(cells) {
			end = len(cells)
		}
		chunk := cells[start:end]
		enc := NewRLEEncoder[T, P](p)
		min, max := ^uint64(0), uint64(0)
		for _, c := range chunk {
			enc.AppendCell(c)
			if !c.Null {
				a := p.Acc(c.Val)
				if a < min {
					min = a
				}
				if a > max {
					max = a
				}
			}
		}
		acc := enc.Acc()
		out = append(out, NewSlab(enc.Finish(), len(chunk), acc).WithMinMax(min, max))
		if len(cells) == 0 {
			break
		}
	}
	return out
}

// DecodeSlab decodes every cell of an RLE slab.
func DecodeSlab[T any, P Packer[T]](p P, s Slab) ([]Cell[T], error) {
	dec := NewRLEDecoder[T, P](p, s.data)
	cells := make([]Cell[T], 0, s.count)
	for {
		c, ok := dec.Next()
		if !ok {
			break
		}
		cells = append(cells, c)
	}
	if dec.Err() != nil {
		return nil, dec.Err()
	}
	return cells, nil
}

// SpliceSlab replaces del cells at index at within s by ins, re-encoding the
// touched region. It returns the replacement slabs; run fusion across the
// splice boundaries falls out of re-encoding the whole slab through one
// encoder.
func SpliceSlab[T any, P Packer[T]](p P, s Slab, at, del int, ins []Cell[T]) ([]Slab, error) {
	cells, err := DecodeSlab[T, P](p, s)
	if err != nil {
		return nil, err
	}
	if at < 0 || at > len(cells) || at+del > len(cells) {
		return nil, ErrMalformedColumn
	}
	spliced := make([]Cell[T], 0, len(cells)-del+len(ins))
	spliced = append(spliced, cells[:at]...)
	spliced = append(spliced, ins...)
	spliced = append(spliced, cells[at+del:]...)
	return EncodeSlabs[T, P](p, spliced), nil
}

// EncodeDeltaSlabs encodes absolute int64 cells into delta slabs, recording
// each slab's starting absolute value. start is the absolute value before
// the first cell.
func EncodeDeltaSlabs(cells []Cell[int64], start int64) []Slab {
	var out []Slab
	abs := start
	for s := 0; s < len(cells) || (s == 0 && len(cells) == 0); s += maxSlabItems {
		end := s + maxSlabItems
		if end > len(cells) {
			end = len(cells)
		}
		chunk := cells[s:end]
		enc := NewDeltaEncoder(abs)
		min, max := ^uint64(0), uint64(0)
		slabStart := abs
		for _, c := range chunk {
			enc.AppendCell(c)
			if !c.Null {
				a := uint64(c.Val)
				if a < min {
					min = a
				}
				if a > max {
					max = a
				}
			}
		}
		abs = enc.Abs()
		out = append(out, NewSlab(enc.Finish(), len(chunk), uint64(len(chunk))).
			WithMinMax(min, max).WithAbs(slabStart))
		if len(cells) == 0 {
			break
		}
	}
	return out
}

// DecodeDeltaSlab decodes the absolute values of a delta slab.
func DecodeDeltaSlab(s Slab) ([]Cell[int64], error) {
	dec := NewDeltaDecoder(s.data, s.abs)
	cells := make([]Cell[int64], 0, s.count)
	for {
		c, ok := dec.Next()
		if !ok {
			break
		}
		cells = append(cells, c)
	}
	if dec.Err() != nil {
		return nil, dec.Err()
	}
	return cells, nil
}

// SpliceDeltaSlab splices a delta slab. Downstream slabs stay valid when the
// final absolute value is unchanged; otherwise the caller patches the next
// slab's starting absolute (the tree wrapper does this).
func SpliceDeltaSlab(s Slab, at, del int, ins []Cell[int64]) ([]Slab, int64, error) {
	cells, err := DecodeDeltaSlab(s)
	if err != nil {
		return nil, 0, err
	}
	if at < 0 || at > len(cells) || at+del > len(cells) {
		return nil, 0, ErrMalformedColumn
	}
	spliced := make([]Cell[int64], 0, len(cells)-del+len(ins))
	spliced = append(spliced, cells[:at]...)
	spliced = append(spliced, ins...)
	spliced = append(spliced, cells[at+del:]...)
	slabs := EncodeDeltaSlabs(spliced, s.abs)
	finalAbs := s.abs
	for _, c := range spliced {
		if !c.Null {
			finalAbs = c.Val
		}
	}
	return slabs, finalAbs, nil
}
