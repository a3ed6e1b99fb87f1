// pkg/format/change_codec.go
package format

import (
	"unicode/utf8"

	"github.com/pkg/errors"

	"weft/internal/encoding"
	"weft/pkg/change"
	"weft/pkg/types"
)

// EncodeChange serializes a change as a framed change chunk, filling in
// c.Hash and c.Raw. Encoding is deterministic: the same change always
// yields the same bytes.
func EncodeChange(c *change.Change) ([]byte, error) {
	if c.Raw != nil {
		return c.Raw, nil
	}
	body, err := encodeChangeBody(c)
	if err != nil {
		return nil, err
	}
	raw := EncodeChunk(ChunkChange, body)
	c.Hash = hashChunk(ChunkChange, body)
	c.Raw = raw
	return raw, nil
}

func encodeChangeBody(c *change.Change) ([]byte, error) {
	var out []byte
	out = encoding.AppendUleb(out, uint64(len(c.Deps)))
	deps := append([]change.Hash(nil), c.Deps...)
	change.SortHashes(deps)
	for _, dep := range deps {
		out = append(out, dep[:]...)
	}
	out = encoding.AppendUleb(out, uint64(len(c.Actor)))
	out = append(out, c.Actor...)

	// actors referenced by the ops beyond the author, in first-use order
	actors := []types.ActorID{c.Actor}
	index := map[types.ActorID]uint64{c.Actor: 0}
	actorIdx := func(a types.ActorID) uint64 {
		if i, ok := index[a]; ok {
			return i
		}
		i := uint64(len(actors))
		index[a] = i
		actors = append(actors, a)
		return i
	}
	w := newOpColumnWriter(actorIdx, false)
	for _, op := range c.Ops {
		w.appendOp(op, op.Pred)
	}
	cols, err := w.finish()
	if err != nil {
		return nil, err
	}

	out = encoding.AppendUleb(out, uint64(len(actors)-1))
	for _, a := range actors[1:] {
		out = encoding.AppendUleb(out, uint64(len(a)))
		out = append(out, a...)
	}
	out = encoding.AppendUleb(out, c.Seq)
	out = encoding.AppendUleb(out, c.StartOp)
	out = encoding.AppendLeb(out, c.Timestamp)
	out = encoding.AppendUleb(out, uint64(len(c.Message)))
	out = append(out, c.Message...)
	out = writeColumns(out, cols)
	out = append(out, c.Extra...)
	return out, nil
}

// DecodeChange parses a change (or compressed change) chunk.
func DecodeChange(chunk Chunk) (*change.Change, error) {
	chunk, err := DecompressChunk(chunk)
	if err != nil {
		return nil, err
	}
	if chunk.Type != ChunkChange {
		return nil, ErrUnknownChunkType
	}
	c := &change.Change{Hash: chunk.Hash, Raw: EncodeChunk(ChunkChange, chunk.Data)}
	buf := chunk.Data

	depCount, n := encoding.Uleb(buf)
	if n == 0 {
		return nil, ErrLebOverflow
	}
	buf = buf[n:]
	for i := uint64(0); i < depCount; i++ {
		if len(buf) < 32 {
			return nil, ErrLengthMismatch
		}
		var h change.Hash
		copy(h[:], buf[:32])
		c.Deps = append(c.Deps, h)
		buf = buf[32:]
	}

	actorBytes, rest, err := readBytes(buf)
	if err != nil {
		return nil, err
	}
	buf = rest
	c.Actor = types.ActorIDFromBytes(actorBytes)
	actors := []types.ActorID{c.Actor}

	otherCount, n := encoding.Uleb(buf)
	if n == 0 {
		return nil, ErrLebOverflow
	}
	buf = buf[n:]
	for i := uint64(0); i < otherCount; i++ {
		b, rest, err := readBytes(buf)
		if err != nil {
			return nil, err
		}
		buf = rest
		actors = append(actors, types.ActorIDFromBytes(b))
	}

	if c.Seq, n = encoding.Uleb(buf); n == 0 {
		return nil, ErrLebOverflow
	}
	buf = buf[n:]
	if c.StartOp, n = encoding.Uleb(buf); n == 0 {
		return nil, ErrLebOverflow
	}
	buf = buf[n:]
	if c.Timestamp, n = encoding.Leb(buf); n == 0 {
		return nil, ErrLebOverflow
	}
	buf = buf[n:]
	msg, rest, err := readBytes(buf)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(msg) {
		return nil, ErrBadUtf8
	}
	buf = rest
	c.Message = string(msg)

	cols, rest, err := readColumns(buf)
	if err != nil {
		return nil, errors.Wrap(err, "change op columns")
	}
	c.Extra = append([]byte(nil), rest...)

	rows, err := rowCountOf(cols)
	if err != nil {
		return nil, err
	}
	actorAt := func(i uint64) (types.ActorID, error) {
		if i >= uint64(len(actors)) {
			return "", ErrLengthMismatch
		}
		return actors[i], nil
	}
	r := newOpColumnReader(cols, actorAt)
	for i := 0; i < rows; i++ {
		op, pred, err := r.readOp(false)
		if err != nil {
			return nil, err
		}
		op.ID = types.OpID{Counter: c.StartOp + uint64(i), Actor: c.Actor}
		op.Pred = pred
		sortOpIDs(op.Pred)
		c.Ops = append(c.Ops, op)
	}
	if err := r.err(); err != nil {
		return nil, err
	}
	return c, nil
}

func readBytes(buf []byte) ([]byte, []byte, error) {
	length, n := encoding.Uleb(buf)
	if n == 0 {
		return nil, nil, ErrLebOverflow
	}
	buf = buf[n:]
	if uint64(len(buf)) < length {
		return nil, nil, ErrLengthMismatch
	}
	return buf[:length], buf[length:], nil
}

func sortOpIDs(ids []types.OpID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1].Cmp(ids[j]) > 0; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
