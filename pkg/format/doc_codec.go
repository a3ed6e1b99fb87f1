// pkg/format/doc_codec.go
package format

import (
	"sort"

	"github.com/pkg/errors"

	"weft/internal/encoding"
	"weft/pkg/change"
	"weft/pkg/columnar"
	"weft/pkg/opset"
	"weft/pkg/types"
)

// DocChunk is a decoded document chunk: the actor table, the declared
// heads, and the fully reconstructed changes in topological order.
type DocChunk struct {
	Actors  []types.ActorID
	Heads   []change.Hash
	Changes []*change.Change
}

// EncodeDocument serializes the whole document: change metadata columns,
// op columns in canonical object order with succ lists, and the verified
// head indices. The output depends only on the set of committed changes.
func EncodeDocument(g *change.Graph, s *opset.OpSet) ([]byte, error) {
	topo := g.TopoOrder()

	actorSet := make(map[types.ActorID]struct{})
	for _, c := range topo {
		actorSet[c.Actor] = struct{}{}
	}
	actors := make([]types.ActorID, 0, len(actorSet))
	for a := range actorSet {
		actors = append(actors, a)
	}
	sort.Slice(actors, func(i, j int) bool { return actors[i] < actors[j] })
	index := make(map[types.ActorID]uint64, len(actors))
	for i, a := range actors {
		index[a] = uint64(i)
	}
	actorIdx := func(a types.ActorID) uint64 { return index[a] }

	topoIndex := make(map[change.Hash]int, len(topo))
	for i, c := range topo {
		topoIndex[c.Hash] = i
	}

	// change metadata columns
	chActor := newUintCol()
	chSeq := columnar.NewDeltaEncoder(0)
	chMaxOp := columnar.NewDeltaEncoder(0)
	chTime := columnar.NewDeltaEncoder(0)
	chMsg := newStrCol()
	chDepsNum := newUintCol()
	chDepsIdx := columnar.NewDeltaEncoder(0)
	var extraCells []valueCell
	for _, c := range topo {
		chActor.AppendVal(actorIdx(c.Actor))
		chSeq.Append(int64(c.Seq))
		chMaxOp.Append(int64(c.MaxOp()))
		chTime.Append(c.Timestamp)
		if c.Message == "" {
			chMsg.AppendNull()
		} else {
			chMsg.AppendVal(c.Message)
		}
		chDepsNum.AppendVal(uint64(len(c.Deps)))
		for _, dep := range c.Deps {
			chDepsIdx.Append(int64(topoIndex[dep]))
		}
		if len(c.Extra) == 0 {
			extraCells = append(extraCells, valueCell{})
		} else {
			extraCells = append(extraCells, valueCell{has: true, val: types.Bytes(c.Extra)})
		}
	}
	extraMeta, extraRaw := encodeValueCells(extraCells)
	chActorData, err := chActor.Encode()
	if err != nil {
		return nil, err
	}
	chMsgData, err := chMsg.Encode()
	if err != nil {
		return nil, err
	}
	chDepsNumData, err := chDepsNum.Encode()
	if err != nil {
		return nil, err
	}
	changeCols := prepareColumns([]rawColumn{
		{spec: specChangeActor, data: chActorData},
		{spec: specChangeSeq, data: chSeq.Finish()},
		{spec: specChangeMaxOp, data: chMaxOp.Finish()},
		{spec: specChangeTime, data: chTime.Finish()},
		{spec: specChangeMessage, data: chMsgData},
		{spec: specChangeDepsNum, data: chDepsNumData},
		{spec: specChangeDepsIndex, data: chDepsIdx.Finish()},
		{spec: specChangeExtraMeta, data: extraMeta},
		{spec: specChangeExtraRaw, data: extraRaw},
	})

	// op columns, objects ascending with root first, ops in tree order
	w := newOpColumnWriter(actorIdx, true)
	s.WalkAllOps(func(_ types.ObjID, op *types.Op) bool {
		w.appendOp(op, op.Succ)
		return true
	})
	rawOpCols, err := w.finish()
	if err != nil {
		return nil, err
	}
	opCols := prepareColumns(rawOpCols)

	var out []byte
	out = encoding.AppendUleb(out, uint64(len(actors)))
	for _, a := range actors {
		out = encoding.AppendUleb(out, uint64(len(a)))
		out = append(out, a...)
	}
	heads := g.Heads()
	out = encoding.AppendUleb(out, uint64(len(heads)))
	for _, h := range heads {
		out = append(out, h[:]...)
	}
	out = writeColumnMeta(out, changeCols)
	out = writeColumnMeta(out, opCols)
	out = writeColumnData(out, changeCols)
	out = writeColumnData(out, opCols)
	for _, h := range heads {
		out = encoding.AppendUleb(out, uint64(topoIndex[h]))
	}
	return EncodeChunk(ChunkDocument, out), nil
}

// DecodeDocument parses a document chunk body and reconstructs its
// changes, including the delete ops implied by succ entries that name no
// stored op. Every declared head is verified against the recomputed
// hashes; a mismatch fails the whole chunk.
func DecodeDocument(data []byte) (*DocChunk, error) {
	doc := &DocChunk{}
	buf := data

	actorCount, n := encoding.Uleb(buf)
	if n == 0 {
		return nil, ErrLebOverflow
	}
	buf = buf[n:]
	for i := uint64(0); i < actorCount; i++ {
		b, rest, err := readBytes(buf)
		if err != nil {
			return nil, err
		}
		buf = rest
		doc.Actors = append(doc.Actors, types.ActorIDFromBytes(b))
	}

	headCount, n := encoding.Uleb(buf)
	if n == 0 {
		return nil, ErrLebOverflow
	}
	buf = buf[n:]
	for i := uint64(0); i < headCount; i++ {
		if len(buf) < 32 {
			return nil, ErrLengthMismatch
		}
		var h change.Hash
		copy(h[:], buf[:32])
		doc.Heads = append(doc.Heads, h)
		buf = buf[32:]
	}

	changeMetas, buf, err := readColumnMeta(buf)
	if err != nil {
		return nil, errors.Wrap(err, "change columns")
	}
	opMetas, buf, err := readColumnMeta(buf)
	if err != nil {
		return nil, errors.Wrap(err, "op columns")
	}
	changeCols, buf, err := bindColumnData(changeMetas, buf)
	if err != nil {
		return nil, err
	}
	opCols, buf, err := bindColumnData(opMetas, buf)
	if err != nil {
		return nil, err
	}

	actorAt := func(i uint64) (types.ActorID, error) {
		if i >= uint64(len(doc.Actors)) {
			return "", ErrLengthMismatch
		}
		return doc.Actors[i], nil
	}

	changes, err := decodeChangeRows(changeCols, actorAt)
	if err != nil {
		return nil, err
	}
	ops, succs, err := decodeOpRows(opCols, actorAt)
	if err != nil {
		return nil, err
	}
	if err := reconstructChanges(changes, ops, succs); err != nil {
		return nil, err
	}
	doc.Changes = make([]*change.Change, len(changes))
	for i, row := range changes {
		for _, depIdx := range row.depIndices {
			if depIdx >= uint64(i) {
				return nil, ErrLengthMismatch
			}
			row.change.Deps = append(row.change.Deps, changes[depIdx].change.Hash)
		}
		change.SortHashes(row.change.Deps)
		if _, err := EncodeChange(row.change); err != nil {
			return nil, err
		}
		doc.Changes[i] = row.change
	}

	// verify the declared heads against the recomputed hashes
	for _, h := range doc.Heads {
		idx, n := encoding.Uleb(buf)
		if n == 0 {
			return nil, ErrLebOverflow
		}
		buf = buf[n:]
		if idx >= uint64(len(doc.Changes)) {
			return nil, ErrLengthMismatch
		}
		if doc.Changes[idx].Hash != h {
			return nil, &HashMismatchError{Expected: h.String(), Actual: doc.Changes[idx].Hash.String()}
		}
	}
	return doc, nil
}

type changeRow struct {
	change     *change.Change
	depIndices []uint64
}

func decodeChangeRows(cols map[ColumnSpec][]byte, actorAt func(uint64) (types.ActorID, error)) ([]*changeRow, error) {
	actorDec := newUintDec(cols[specChangeActor])
	seqDec := columnar.NewDeltaDecoder(cols[specChangeSeq], 0)
	maxOpDec := columnar.NewDeltaDecoder(cols[specChangeMaxOp], 0)
	timeDec := columnar.NewDeltaDecoder(cols[specChangeTime], 0)
	msgDec := newStrDec(cols[specChangeMessage])
	depsNumDec := newUintDec(cols[specChangeDepsNum])
	depsIdxDec := columnar.NewDeltaDecoder(cols[specChangeDepsIndex], 0)
	extraDec := columnar.NewValueDecoder(cols[specChangeExtraMeta], cols[specChangeExtraRaw])

	var rows []*changeRow
	for {
		actorCell, ok := actorDec.Next()
		if !ok {
			break
		}
		if actorCell.Null {
			return nil, ErrUnexpectedNull
		}
		actor, err := actorAt(actorCell.Val)
		if err != nil {
			return nil, err
		}
		seq, ok := maxOpSafeNext(seqDec)
		if !ok {
			return nil, ErrUnexpectedNull
		}
		maxOp, ok := maxOpSafeNext(maxOpDec)
		if !ok {
			return nil, ErrUnexpectedNull
		}
		c := &change.Change{Actor: actor, Seq: uint64(seq)}
		c.StartOp = uint64(maxOp) // adjusted during reconstruction
		if ts, ok := maxOpSafeNext(timeDec); ok {
			c.Timestamp = ts
		}
		if msg, ok := msgDec.Next(); ok && !msg.Null {
			c.Message = msg.Val
		}
		row := &changeRow{change: c}
		if num, ok := depsNumDec.Next(); ok && !num.Null {
			for i := uint64(0); i < num.Val; i++ {
				idx, ok := maxOpSafeNext(depsIdxDec)
				if !ok || idx < 0 {
					return nil, ErrUnexpectedNull
				}
				row.depIndices = append(row.depIndices, uint64(idx))
			}
		}
		if v, ok := extraDec.Next(); ok && v.Kind() == types.KindBytes {
			c.Extra = v.Bytes()
		} else if err := extraDec.Err(); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := actorDec.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func maxOpSafeNext(d *columnar.DeltaDecoder) (int64, bool) {
	c, ok := d.Next()
	if !ok || c.Null {
		return 0, false
	}
	return c.Val, true
}

func decodeOpRows(cols map[ColumnSpec][]byte, actorAt func(uint64) (types.ActorID, error)) ([]*types.Op, [][]types.OpID, error) {
	rows, err := rowCountOf(cols)
	if err != nil {
		return nil, nil, err
	}
	r := newOpColumnReader(cols, actorAt)
	ops := make([]*types.Op, 0, rows)
	succs := make([][]types.OpID, 0, rows)
	for i := 0; i < rows; i++ {
		op, succ, err := r.readOp(true)
		if err != nil {
			return nil, nil, err
		}
		ops = append(ops, op)
		succs = append(succs, succ)
	}
	if err := r.err(); err != nil {
		return nil, nil, err
	}
	return ops, succs, nil
}

// reconstructChanges assigns doc ops (plus inferred delete ops) back to
// their changes. The maxOp column fixes each change's op range; succ
// entries naming absent ops become delete ops; pred sets are the
// inversion of the stored succ sets.
func reconstructChanges(rows []*changeRow, ops []*types.Op, succs [][]types.OpID) error {
	present := make(map[types.OpID]*types.Op, len(ops))
	for _, op := range ops {
		present[op.ID] = op
	}
	preds := make(map[types.OpID][]types.OpID)
	deletes := make(map[types.OpID]*types.Op)
	for i, op := range ops {
		for _, s := range succs[i] {
			preds[s] = append(preds[s], op.ID)
			if _, ok := present[s]; ok {
				continue
			}
			if _, ok := deletes[s]; ok {
				continue
			}
			key := op.Key
			if op.Key.Seq {
				key = op.ElemKey()
			}
			deletes[s] = &types.Op{
				ID:     s,
				Action: types.ActionDelete,
				Obj:    op.Obj,
				Key:    key,
			}
		}
	}

	byActor := make(map[types.ActorID][]*types.Op)
	addOp := func(op *types.Op) {
		byActor[op.ID.Actor] = append(byActor[op.ID.Actor], op)
	}
	for _, op := range ops {
		op.Pred = preds[op.ID]
		sortOpIDs(op.Pred)
		op.Succ = nil
		addOp(op)
	}
	for _, del := range deletes {
		del.Pred = preds[del.ID]
		sortOpIDs(del.Pred)
		addOp(del)
	}
	for _, list := range byActor {
		sort.Slice(list, func(i, j int) bool { return list[i].ID.Counter < list[j].ID.Counter })
	}

	// Each change owns its actor's ops in (previous change's maxOp, maxOp].
	// Counters within one change are consecutive, so startOp falls out of
	// the op count; actors may still skip counters between changes (their
	// Lamport clock advances on every op they observe).
	cursor := make(map[types.ActorID]int)
	for _, row := range rows {
		c := row.change
		maxOp := c.StartOp // maxOp was stashed here during decode
		list := byActor[c.Actor]
		i := cursor[c.Actor]
		for i < len(list) && list[i].ID.Counter <= maxOp {
			c.Ops = append(c.Ops, list[i])
			i++
		}
		cursor[c.Actor] = i
		c.StartOp = maxOp + 1 - uint64(len(c.Ops))
		for j, op := range c.Ops {
			if op.ID.Counter != c.StartOp+uint64(j) {
				return ErrLengthMismatch
			}
		}
	}
	return nil
}
