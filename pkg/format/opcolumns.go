// pkg/format/opcolumns.go
package format

import (
	"weft/pkg/columnar"
	"weft/pkg/types"
)

type uintCol = columnar.Column[uint64, columnar.UintPacker]
type strCol = columnar.Column[string, columnar.StrPacker]

func newUintCol() *uintCol {
	return columnar.NewColumn[uint64, columnar.UintPacker](columnar.UintPacker{})
}

func newStrCol() *strCol {
	return columnar.NewColumn[string, columnar.StrPacker](columnar.StrPacker{})
}

// opColumnWriter accumulates the per-op columns shared by change and
// document chunks. The id columns and the succ group are only emitted for
// document chunks; the pred group only for change chunks (same specs).
type opColumnWriter struct {
	actorIdx func(types.ActorID) uint64
	withIDs  bool

	objActor *uintCol
	objCtr   *uintCol
	keyActor *uintCol
	keyCtr   *columnar.DeltaEncoder
	keyStr   *strCol
	idActor  *uintCol
	idCtr    *columnar.DeltaEncoder
	insert   *columnar.BoolEncoder
	action   *uintCol
	values   []valueCell
	grpNum   *uintCol
	grpActor *uintCol
	grpCtr   *columnar.DeltaEncoder
	expand   *columnar.BoolEncoder
	markName *strCol
	anyMark  bool
}

type valueCell struct {
	has bool
	val types.ScalarValue
}

func newOpColumnWriter(actorIdx func(types.ActorID) uint64, withIDs bool) *opColumnWriter {
	return &opColumnWriter{
		actorIdx: actorIdx,
		withIDs:  withIDs,
		objActor: newUintCol(),
		objCtr:   newUintCol(),
		keyActor: newUintCol(),
		keyCtr:   columnar.NewDeltaEncoder(0),
		keyStr:   newStrCol(),
		idActor:  newUintCol(),
		idCtr:    columnar.NewDeltaEncoder(0),
		insert:   columnar.NewBoolEncoder(),
		action:   newUintCol(),
		grpNum:   newUintCol(),
		grpActor: newUintCol(),
		grpCtr:   columnar.NewDeltaEncoder(0),
		expand:   columnar.NewBoolEncoder(),
		markName: newStrCol(),
	}
}

// appendOp emits one op row. group carries the op's pred set (change
// chunks) or succ set (document chunks).
func (w *opColumnWriter) appendOp(op *types.Op, group []types.OpID) {
	if op.Obj.IsRoot() {
		w.objActor.AppendNull()
		w.objCtr.AppendNull()
	} else {
		w.objActor.AppendVal(w.actorIdx(op.Obj.Actor))
		w.objCtr.AppendVal(op.Obj.Counter)
	}
	if op.Key.Seq {
		if op.Key.Elem.IsHead() {
			w.keyActor.AppendNull()
			w.keyCtr.Append(0)
		} else {
			w.keyActor.AppendVal(w.actorIdx(op.Key.Elem.Actor))
			w.keyCtr.Append(int64(op.Key.Elem.Counter))
		}
		w.keyStr.AppendNull()
	} else {
		w.keyActor.AppendNull()
		w.keyCtr.Append(0)
		w.keyStr.AppendVal(op.Key.Str)
	}
	if w.withIDs {
		w.idActor.AppendVal(w.actorIdx(op.ID.Actor))
		w.idCtr.Append(int64(op.ID.Counter))
	}
	w.insert.Append(op.Insert)
	w.action.AppendVal(uint64(op.Action))
	switch op.Action {
	case types.ActionPut, types.ActionIncrement, types.ActionMarkBegin:
		w.values = append(w.values, valueCell{has: true, val: op.Value})
	default:
		w.values = append(w.values, valueCell{})
	}
	w.grpNum.AppendVal(uint64(len(group)))
	if len(group) > 1 {
		sorted := append([]types.OpID(nil), group...)
		sortOpIDs(sorted)
		group = sorted
	}
	for _, id := range group {
		w.grpActor.AppendVal(w.actorIdx(id.Actor))
		w.grpCtr.Append(int64(id.Counter))
	}
	if op.IsMark() {
		w.anyMark = true
	}
	w.expand.Append(op.Expand)
	if op.Action == types.ActionMarkBegin {
		w.markName.AppendVal(op.MarkName)
	} else {
		w.markName.AppendNull()
	}
}

// finish returns the encoded columns. The group triple is always written
// under the succ specs, which the pred group of a change chunk shares.
func (w *opColumnWriter) finish() ([]rawColumn, error) {
	valMeta, valRaw := encodeValueCells(w.values)
	var cols []rawColumn
	for _, c := range []struct {
		spec ColumnSpec
		col  *uintCol
	}{
		{specObjActor, w.objActor},
		{specObjCtr, w.objCtr},
		{specKeyActor, w.keyActor},
		{specAction, w.action},
		{specSuccNum, w.grpNum},
		{specSuccActor, w.grpActor},
	} {
		data, err := c.col.Encode()
		if err != nil {
			return nil, err
		}
		cols = append(cols, rawColumn{spec: c.spec, data: data})
	}
	keyStr, err := w.keyStr.Encode()
	if err != nil {
		return nil, err
	}
	cols = append(cols,
		rawColumn{spec: specKeyStr, data: keyStr},
		rawColumn{spec: specKeyCtr, data: w.keyCtr.Finish()},
		rawColumn{spec: specInsert, data: w.insert.Finish()},
		rawColumn{spec: specValMeta, data: valMeta},
		rawColumn{spec: specValRaw, data: valRaw},
		rawColumn{spec: specSuccCtr, data: w.grpCtr.Finish()},
	)
	if w.withIDs {
		idActor, err := w.idActor.Encode()
		if err != nil {
			return nil, err
		}
		cols = append(cols,
			rawColumn{spec: specIDActor, data: idActor},
			rawColumn{spec: specIDCtr, data: w.idCtr.Finish()},
		)
	}
	if w.anyMark {
		markName, err := w.markName.Encode()
		if err != nil {
			return nil, err
		}
		cols = append(cols,
			rawColumn{spec: specExpand, data: w.expand.Finish()},
			rawColumn{spec: specMarkName, data: markName},
		)
	}
	return cols, nil
}

// encodeValueCells builds the value group, eliding trailing no-value rows.
func encodeValueCells(cells []valueCell) (meta, raw []byte) {
	end := len(cells)
	for end > 0 && !cells[end-1].has {
		end--
	}
	enc := columnar.NewValueEncoder()
	for _, c := range cells[:end] {
		if c.has {
			enc.Append(c.val)
		} else {
			enc.AppendNull()
		}
	}
	return enc.Finish()
}

// opColumnReader decodes op rows from a parsed column set. Missing columns
// yield defaults (null / false / zero).
type opColumnReader struct {
	actorAt func(uint64) (types.ActorID, error)

	objActor *columnar.RLEDecoder[uint64, columnar.UintPacker]
	objCtr   *columnar.RLEDecoder[uint64, columnar.UintPacker]
	keyActor *columnar.RLEDecoder[uint64, columnar.UintPacker]
	keyCtr   *columnar.DeltaDecoder
	keyStr   *columnar.RLEDecoder[string, columnar.StrPacker]
	idActor  *columnar.RLEDecoder[uint64, columnar.UintPacker]
	idCtr    *columnar.DeltaDecoder
	insert   *columnar.BoolDecoder
	action   *columnar.RLEDecoder[uint64, columnar.UintPacker]
	values   *columnar.ValueDecoder
	grpNum   *columnar.RLEDecoder[uint64, columnar.UintPacker]
	grpActor *columnar.RLEDecoder[uint64, columnar.UintPacker]
	grpCtr   *columnar.DeltaDecoder
	expand   *columnar.BoolDecoder
	markName *columnar.RLEDecoder[string, columnar.StrPacker]
}

func newUintDec(data []byte) *columnar.RLEDecoder[uint64, columnar.UintPacker] {
	return columnar.NewRLEDecoder[uint64, columnar.UintPacker](columnar.UintPacker{}, data)
}

func newStrDec(data []byte) *columnar.RLEDecoder[string, columnar.StrPacker] {
	return columnar.NewRLEDecoder[string, columnar.StrPacker](columnar.StrPacker{}, data)
}

func newOpColumnReader(cols map[ColumnSpec][]byte, actorAt func(uint64) (types.ActorID, error)) *opColumnReader {
	return &opColumnReader{
		actorAt:  actorAt,
		objActor: newUintDec(cols[specObjActor]),
		objCtr:   newUintDec(cols[specObjCtr]),
		keyActor: newUintDec(cols[specKeyActor]),
		keyCtr:   columnar.NewDeltaDecoder(cols[specKeyCtr], 0),
		keyStr:   newStrDec(cols[specKeyStr]),
		idActor:  newUintDec(cols[specIDActor]),
		idCtr:    columnar.NewDeltaDecoder(cols[specIDCtr], 0),
		insert:   columnar.NewBoolDecoder(cols[specInsert]),
		action:   newUintDec(cols[specAction]),
		values:   columnar.NewValueDecoder(cols[specValMeta], cols[specValRaw]),
		grpNum:   newUintDec(cols[specSuccNum]),
		grpActor: newUintDec(cols[specSuccActor]),
		grpCtr:   columnar.NewDeltaDecoder(cols[specSuccCtr], 0),
		expand:   columnar.NewBoolDecoder(cols[specExpand]),
		markName: newStrDec(cols[specMarkName]),
	}
}

// nextOrNull reads a cell, treating a missing or exhausted column as a
// run of nulls (encoders elide all-null and trailing-null content).
func nextOrNull[T any, P columnar.Packer[T]](d *columnar.RLEDecoder[T, P]) columnar.Cell[T] {
	c, ok := d.Next()
	if !ok {
		return columnar.NullCell[T]()
	}
	return c
}

// readOp decodes one op row. id is filled from the id columns when
// withIDs; otherwise the caller assigns it. The returned group is the
// pred or succ set of the row.
func (r *opColumnReader) readOp(withIDs bool) (*types.Op, []types.OpID, error) {
	op := &types.Op{}

	objActor := nextOrNull(r.objActor)
	objCtr := nextOrNull(r.objCtr)
	if !objActor.Null && !objCtr.Null {
		actor, err := r.actorAt(objActor.Val)
		if err != nil {
			return nil, nil, err
		}
		op.Obj = types.ObjID{Counter: objCtr.Val, Actor: actor}
	}

	keyActor := nextOrNull(r.keyActor)
	keyCtr, _ := r.keyCtr.Next()
	keyStr := nextOrNull(r.keyStr)
	switch {
	case !keyStr.Null:
		op.Key = types.MapKey(keyStr.Val)
	case keyActor.Null:
		op.Key = types.HeadKey
	default:
		if keyCtr.Null {
			return nil, nil, ErrUnexpectedNull
		}
		actor, err := r.actorAt(keyActor.Val)
		if err != nil {
			return nil, nil, err
		}
		op.Key = types.SeqKey(types.ElemID{Counter: uint64(keyCtr.Val), Actor: actor})
	}

	if withIDs {
		idActor, ok := r.idActor.Next()
		idCtr, ok2 := r.idCtr.Next()
		if !ok || !ok2 || idActor.Null || idCtr.Null {
			return nil, nil, ErrUnexpectedNull
		}
		actor, err := r.actorAt(idActor.Val)
		if err != nil {
			return nil, nil, err
		}
		op.ID = types.OpID{Counter: uint64(idCtr.Val), Actor: actor}
	}

	insert, _ := r.insert.Next()
	op.Insert = insert

	actionCell, ok := r.action.Next()
	if !ok || actionCell.Null {
		return nil, nil, ErrUnexpectedNull
	}
	if !types.ValidAction(actionCell.Val) {
		return nil, nil, ErrUnknownAction
	}
	op.Action = types.Action(actionCell.Val)

	if v, ok := r.values.Next(); ok {
		op.Value = v
	} else if err := r.values.Err(); err != nil {
		return nil, nil, err
	}

	var group []types.OpID
	if num, ok := r.grpNum.Next(); ok && !num.Null {
		for i := uint64(0); i < num.Val; i++ {
			actorCell, ok := r.grpActor.Next()
			ctrCell, ok2 := r.grpCtr.Next()
			if !ok || !ok2 || actorCell.Null || ctrCell.Null {
				return nil, nil, ErrUnexpectedNull
			}
			actor, err := r.actorAt(actorCell.Val)
			if err != nil {
				return nil, nil, err
			}
			group = append(group, types.OpID{Counter: uint64(ctrCell.Val), Actor: actor})
		}
	}

	if expand, ok := r.expand.Next(); ok {
		op.Expand = expand
	}
	if name, ok := r.markName.Next(); ok && !name.Null {
		op.MarkName = name.Val
	}
	return op, group, nil
}

// err surfaces the first decoder error.
func (r *opColumnReader) err() error {
	decs := []interface{ Err() error }{
		r.objActor, r.objCtr, r.keyActor, r.keyCtr, r.keyStr,
		r.idActor, r.idCtr, r.insert, r.action, r.values,
		r.grpNum, r.grpActor, r.grpCtr, r.expand, r.markName,
	}
	for _, d := range decs {
		if err := d.Err(); err != nil {
			return err
		}
	}
	return nil
}

// rowCountOf returns the number of op rows: the length of the action column.
func rowCountOf(cols map[ColumnSpec][]byte) (int, error) {
	dec := newUintDec(cols[specAction])
	n := 0
	for {
		if _, ok := dec.Next(); !ok {
			break
		}
		n++
	}
	return n, dec.Err()
}
