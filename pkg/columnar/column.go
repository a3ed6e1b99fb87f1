// pkg/columnar/column.go
package columnar

import "weft/pkg/slabtree"

// Column is a mutable, spliceable RLE column: a slab tree of encoded slabs
// plus a small pending tail batch that is flushed into slabs as it fills.
// Structure outside a touched slab is shared; a splice rewrites only the
// slabs covering the edited range.
type Column[T any, P Packer[T]] struct {
	p       P
	tree    *slabtree.Tree[Slab]
	pending []Cell[T]
	pendAcc uint64
}

// NewColumn returns an empty column.
func NewColumn[T any, P Packer[T]](p P) *Column[T, P] {
	return &Column[T, P]{p: p, tree: slabtree.New[Slab]()}
}

// Len returns the item count.
func (c *Column[T, P]) Len() int {
	return c.tree.Len() + len(c.pending)
}

// Acc returns the accumulator total.
func (c *Column[T, P]) Acc() uint64 {
	return c.tree.Acc() + c.pendAcc
}

// Append adds a cell at the end of the column.
func (c *Column[T, P]) Append(cell Cell[T]) {
	c.pending = append(c.pending, cell)
	if !cell.Null {
		c.pendAcc += c.p.Acc(cell.Val)
	}
	if len(c.pending) >= maxSlabItems {
		c.flush()
	}
}

// AppendVal adds a non-null value.
func (c *Column[T, P]) AppendVal(v T) { c.Append(Some(v)) }

// AppendNull adds a null cell.
func (c *Column[T, P]) AppendNull() { c.Append(NullCell[T]()) }

func (c *Column[T, P]) flush() {
	if len(c.pending) == 0 {
		return
	}
	for _, s := range EncodeSlabs[T, P](c.p, c.pending) {
		c.tree.Push(s)
	}
	c.pending = c.pending[:0]
	c.pendAcc = 0
}

// Splice replaces del cells at item index at with ins, rewriting only the
// slabs covering the range.
func (c *Column[T, P]) Splice(at, del int, ins []Cell[T]) error {
	c.flush()
	if at < 0 || del < 0 || at+del > c.tree.Len() {
		return ErrMalformedColumn
	}
	if c.tree.Len() == 0 || at == c.tree.Len() {
		// append-only splice
		for _, cell := range ins {
			c.Append(cell)
		}
		c.flush()
		return nil
	}
	firstSpan, firstOff, err := c.tree.SeekPos(at)
	if err != nil {
		return err
	}
	// gather the touched slabs
	lastSpan := firstSpan
	remaining := del - (mustSpan(c.tree, firstSpan).SpanLen() - firstOff)
	for remaining > 0 {
		lastSpan++
		remaining -= mustSpan(c.tree, lastSpan).SpanLen()
	}
	var cells []Cell[T]
	for i := firstSpan; i <= lastSpan; i++ {
		part, derr := DecodeSlab[T, P](c.p, mustSpan(c.tree, i))
		if derr != nil {
			return derr
		}
		cells = append(cells, part...)
	}
	spliced := make([]Cell[T], 0, len(cells)-del+len(ins))
	spliced = append(spliced, cells[:firstOff]...)
	spliced = append(spliced, ins...)
	spliced = append(spliced, cells[firstOff+del:]...)
	return c.tree.Splice(firstSpan, lastSpan-firstSpan+1, EncodeSlabs[T, P](c.p, spliced))
}

func mustSpan(t *slabtree.Tree[Slab], i int) Slab {
	s, err := t.SpanAt(i)
	if err != nil {
		panic(err)
	}
	return s
}

// Get returns the cell at item index i.
func (c *Column[T, P]) Get(i int) (Cell[T], error) {
	c.flush()
	spanIdx, off, err := c.tree.SeekPos(i)
	if err != nil {
		return Cell[T]{}, ErrMalformedColumn
	}
	cells, err := DecodeSlab[T, P](c.p, mustSpan(c.tree, spanIdx))
	if err != nil {
		return Cell[T]{}, err
	}
	return cells[off], nil
}

// Cells decodes the whole column.
func (c *Column[T, P]) Cells() ([]Cell[T], error) {
	c.flush()
	var out []Cell[T]
	for _, s := range c.tree.Spans() {
		cells, err := DecodeSlab[T, P](c.p, s)
		if err != nil {
			return nil, err
		}
		out = append(out, cells...)
	}
	return out, nil
}

// Encode returns the full column as one contiguous encoded byte stream.
// Adjacent slabs are re-fused through a single encoder so the output is
// canonical regardless of slab boundaries.
func (c *Column[T, P]) Encode() ([]byte, error) {
	cells, err := c.Cells()
	if err != nil {
		return nil, err
	}
	// trailing nulls are elided: a column never ends in a null run
	end := len(cells)
	for end > 0 && cells[end-1].Null {
		end--
	}
	enc := NewRLEEncoder[T, P](c.p)
	for _, cell := range cells[:end] {
		enc.AppendCell(cell)
	}
	return enc.Finish(), nil
}
