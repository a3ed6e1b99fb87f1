// pkg/document/mutate.go
package document

import (
	"weft/pkg/change"
	"weft/pkg/format"
	"weft/pkg/opset"
	"weft/pkg/types"
)

// ExpandMark selects which side of a mark is sticky: whether inserts
// touching a boundary land inside the mark.
type ExpandMark int

const (
	ExpandNone ExpandMark = iota
	ExpandBefore
	ExpandAfter
	ExpandBoth
)

// CommitOptions annotate a committed change.
type CommitOptions struct {
	Message string
	Time    int64
}

// Transaction stages ops against the document. Ops take effect in the
// document's op set as they are authored; Commit seals them into a single
// change, Rollback rebuilds the document from its committed history.
type Transaction struct {
	doc     *Document
	deps    []change.Hash
	startOp uint64
	ops     []*types.Op
	closed  bool
}

// Transaction opens an explicit transaction. At most one may be open.
func (d *Document) Transaction() *Transaction {
	if d.tx != nil {
		return d.tx
	}
	d.tx = &Transaction{doc: d, deps: d.Heads(), startOp: d.maxOp + 1}
	return d.tx
}

// PendingOps returns the number of staged ops.
func (tx *Transaction) PendingOps() int { return len(tx.ops) }

// Commit seals the staged ops into one change. An empty transaction
// commits to nothing.
func (tx *Transaction) Commit(opts CommitOptions) (change.Hash, error) {
	if tx.closed {
		return change.Hash{}, ErrTransactionClosed
	}
	tx.closed = true
	tx.doc.tx = nil
	if len(tx.ops) == 0 {
		return change.Hash{}, nil
	}
	c := &change.Change{
		Actor:     tx.doc.actor,
		Seq:       tx.doc.graph.NextSeq(tx.doc.actor),
		StartOp:   tx.startOp,
		Timestamp: opts.Time,
		Message:   opts.Message,
		Deps:      tx.deps,
		Ops:       tx.ops,
	}
	if _, err := format.EncodeChange(c); err != nil {
		return change.Hash{}, err
	}
	if err := tx.doc.graph.Add(c); err != nil {
		return change.Hash{}, err
	}
	tx.doc.clockCache.Purge()
	return c.Hash, nil
}

// Rollback discards the staged ops, restoring the document to its
// committed state.
func (tx *Transaction) Rollback() error {
	if tx.closed {
		return ErrTransactionClosed
	}
	tx.closed = true
	tx.doc.tx = nil
	if len(tx.ops) == 0 {
		return nil
	}
	// rebuild the op set from the committed graph
	d := tx.doc
	d.set = opset.New()
	d.maxOp = 0
	for _, c := range d.graph.Changes() {
		for _, op := range c.Ops {
			if err := d.set.Apply(cloneOp(op)); err != nil {
				return err
			}
		}
		if c.MaxOp() > d.maxOp {
			d.maxOp = c.MaxOp()
		}
	}
	return nil
}

func (tx *Transaction) nextID() types.OpID {
	return types.OpID{Counter: tx.doc.maxOp + 1, Actor: tx.doc.actor}
}

// stage applies one op to the op set and appends it to the change under
// construction.
func (tx *Transaction) stage(op *types.Op) error {
	if tx.closed {
		return ErrTransactionClosed
	}
	if err := tx.doc.set.Apply(cloneOp(op)); err != nil {
		return err
	}
	tx.ops = append(tx.ops, op)
	tx.doc.maxOp = op.ID.Counter
	return nil
}

// visiblePreds returns the ids of the currently visible ops at a map key.
func (tx *Transaction) visiblePreds(obj types.ObjID, key string) ([]types.OpID, []opset.Value, error) {
	vals, err := tx.doc.set.GetAll(obj, key, nil)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]types.OpID, len(vals))
	for i, v := range vals {
		ids[i] = v.ID
	}
	return ids, vals, nil
}

// Put writes a scalar at a map key.
func (tx *Transaction) Put(obj types.ObjID, key string, val types.ScalarValue) (types.OpID, error) {
	if err := tx.checkMapTarget(obj, key); err != nil {
		return types.OpID{}, err
	}
	pred, vals, err := tx.visiblePreds(obj, key)
	if err != nil {
		return types.OpID{}, err
	}
	for _, v := range vals {
		if v.Scalar.Kind() == types.KindCounter && val.Kind() != types.KindCounter {
			return types.OpID{}, ErrCannotOverwriteCounter
		}
	}
	op := &types.Op{
		ID: tx.nextID(), Action: types.ActionPut, Obj: obj,
		Key: types.MapKey(key), Value: val, Pred: pred,
	}
	return op.ID, tx.stage(op)
}

// PutObject creates a container at a map key and returns its id.
func (tx *Transaction) PutObject(obj types.ObjID, key string, kind types.ObjKind) (types.ObjID, error) {
	if err := tx.checkMapTarget(obj, key); err != nil {
		return types.ObjID{}, err
	}
	pred, vals, err := tx.visiblePreds(obj, key)
	if err != nil {
		return types.ObjID{}, err
	}
	for _, v := range vals {
		if v.Scalar.Kind() == types.KindCounter {
			return types.ObjID{}, ErrCannotOverwriteCounter
		}
	}
	op := &types.Op{
		ID: tx.nextID(), Action: types.MakeAction(kind), Obj: obj,
		Key: types.MapKey(key), Pred: pred,
	}
	return types.ObjID(op.ID), tx.stage(op)
}

// Delete removes a map key.
func (tx *Transaction) Delete(obj types.ObjID, key string) error {
	pred, _, err := tx.visiblePreds(obj, key)
	if err != nil {
		return err
	}
	if len(pred) == 0 {
		return opset.ErrInvalidKey
	}
	op := &types.Op{
		ID: tx.nextID(), Action: types.ActionDelete, Obj: obj,
		Key: types.MapKey(key), Pred: pred,
	}
	return tx.stage(op)
}

// Increment adds delta to the counter at a map key.
func (tx *Transaction) Increment(obj types.ObjID, key string, delta int64) error {
	pred, vals, err := tx.visiblePreds(obj, key)
	if err != nil {
		return err
	}
	if len(vals) == 0 {
		return ErrNotACounter
	}
	for _, v := range vals {
		if v.Scalar.Kind() != types.KindCounter {
			return ErrNotACounter
		}
	}
	op := &types.Op{
		ID: tx.nextID(), Action: types.ActionIncrement, Obj: obj,
		Key: types.MapKey(key), Value: types.Int(delta), Pred: pred,
	}
	return tx.stage(op)
}

// Insert places a scalar at a list index (index == length appends).
func (tx *Transaction) Insert(obj types.ObjID, index int, val types.ScalarValue) (types.OpID, error) {
	key, err := tx.insertKey(obj, index)
	if err != nil {
		return types.OpID{}, err
	}
	op := &types.Op{
		ID: tx.nextID(), Action: types.ActionPut, Obj: obj,
		Key: key, Insert: true, Value: val,
	}
	if err := tx.stage(op); err != nil {
		return types.OpID{}, err
	}
	tx.doc.set.NoteLocalInsert(obj, index, types.ElemID(op.ID))
	return op.ID, nil
}

// InsertObject places a container at a list index and returns its id.
func (tx *Transaction) InsertObject(obj types.ObjID, index int, kind types.ObjKind) (types.ObjID, error) {
	key, err := tx.insertKey(obj, index)
	if err != nil {
		return types.ObjID{}, err
	}
	op := &types.Op{
		ID: tx.nextID(), Action: types.MakeAction(kind), Obj: obj,
		Key: key, Insert: true,
	}
	if err := tx.stage(op); err != nil {
		return types.ObjID{}, err
	}
	tx.doc.set.NoteLocalInsert(obj, index, types.ElemID(op.ID))
	return types.ObjID(op.ID), nil
}

func (tx *Transaction) insertKey(obj types.ObjID, index int) (types.Key, error) {
	kind, err := tx.doc.set.ObjKind(obj)
	if err != nil {
		return types.Key{}, err
	}
	if !kind.IsSequence() {
		return types.Key{}, ErrNotASequence
	}
	return tx.doc.set.InsertKeyFor(obj, index)
}

// DeleteAt tombstones the element at a list index.
func (tx *Transaction) DeleteAt(obj types.ObjID, index int) error {
	vals, elem, err := tx.doc.set.GetAllAt(obj, index, nil)
	if err != nil {
		return err
	}
	pred := make([]types.OpID, len(vals))
	for i, v := range vals {
		pred[i] = v.ID
	}
	op := &types.Op{
		ID: tx.nextID(), Action: types.ActionDelete, Obj: obj,
		Key: types.SeqKey(elem), Pred: pred,
	}
	return tx.stage(op)
}

// PutAt overwrites the element at a list index.
func (tx *Transaction) PutAt(obj types.ObjID, index int, val types.ScalarValue) (types.OpID, error) {
	vals, elem, err := tx.doc.set.GetAllAt(obj, index, nil)
	if err != nil {
		return types.OpID{}, err
	}
	pred := make([]types.OpID, len(vals))
	for i, v := range vals {
		pred[i] = v.ID
		if v.Scalar.Kind() == types.KindCounter && val.Kind() != types.KindCounter {
			return types.OpID{}, ErrCannotOverwriteCounter
		}
	}
	op := &types.Op{
		ID: tx.nextID(), Action: types.ActionPut, Obj: obj,
		Key: types.SeqKey(elem), Value: val, Pred: pred,
	}
	return op.ID, tx.stage(op)
}

// IncrementAt adds delta to the counter at a list index.
func (tx *Transaction) IncrementAt(obj types.ObjID, index int, delta int64) error {
	vals, elem, err := tx.doc.set.GetAllAt(obj, index, nil)
	if err != nil {
		return err
	}
	pred := make([]types.OpID, 0, len(vals))
	for _, v := range vals {
		if v.Scalar.Kind() != types.KindCounter {
			return ErrNotACounter
		}
		pred = append(pred, v.ID)
	}
	if len(pred) == 0 {
		return ErrNotACounter
	}
	op := &types.Op{
		ID: tx.nextID(), Action: types.ActionIncrement, Obj: obj,
		Key: types.SeqKey(elem), Value: types.Int(delta), Pred: pred,
	}
	return tx.stage(op)
}

// Splice deletes del elements at index and inserts vals in their place.
func (tx *Transaction) Splice(obj types.ObjID, index, del int, vals []types.ScalarValue) error {
	length, err := tx.doc.set.VisibleLen(obj, nil)
	if err != nil {
		return err
	}
	if index < 0 || del < 0 || index+del > length {
		return opset.ErrInvalidIndex
	}
	for i := 0; i < del; i++ {
		if err := tx.DeleteAt(obj, index); err != nil {
			return err
		}
	}
	for i, v := range vals {
		if _, err := tx.Insert(obj, index+i, v); err != nil {
			return err
		}
	}
	return nil
}

// SpliceText edits a text object: one op per rune inserted.
func (tx *Transaction) SpliceText(obj types.ObjID, index, del int, text string) error {
	vals := make([]types.ScalarValue, 0, len(text))
	for _, r := range text {
		vals = append(vals, types.Str(string(r)))
	}
	return tx.Splice(obj, index, del, vals)
}

// Mark annotates [start, end) of a text object. expand picks the sticky
// sides: a sticky boundary pulls adjacent inserts inside the mark.
func (tx *Transaction) Mark(obj types.ObjID, start, end int, name string, val types.ScalarValue, expand ExpandMark) error {
	if start < 0 || end <= start {
		return opset.ErrInvalidIndex
	}
	length, err := tx.doc.set.VisibleLen(obj, nil)
	if err != nil {
		return err
	}
	if end > length {
		return opset.ErrInvalidIndex
	}
	beginKey, err := tx.doc.set.InsertKeyFor(obj, start)
	if err != nil {
		return err
	}
	_, endElem, err := tx.doc.set.GetAllAt(obj, end-1, nil)
	if err != nil {
		return err
	}
	begin := &types.Op{
		ID: tx.nextID(), Action: types.ActionMarkBegin, Obj: obj,
		Key: beginKey, MarkName: name, Value: val,
		Expand: expand == ExpandBefore || expand == ExpandBoth,
	}
	if err := tx.stage(begin); err != nil {
		return err
	}
	endOp := &types.Op{
		ID: tx.nextID(), Action: types.ActionMarkEnd, Obj: obj,
		Key: types.SeqKey(endElem), Pred: []types.OpID{begin.ID},
		Expand: expand == ExpandAfter || expand == ExpandBoth,
	}
	return tx.stage(endOp)
}

// Unmark removes name over [start, end): a mark whose null value wins over
// the older values.
func (tx *Transaction) Unmark(obj types.ObjID, start, end int, name string) error {
	return tx.Mark(obj, start, end, name, types.Null(), ExpandNone)
}

func (tx *Transaction) checkMapTarget(obj types.ObjID, key string) error {
	kind, err := tx.doc.set.ObjKind(obj)
	if err != nil {
		return err
	}
	if kind.IsSequence() {
		return ErrNotAMap
	}
	if key == "" {
		return opset.ErrEmptyKey
	}
	return nil
}

// The single-shot mutation helpers below open and commit an implicit
// one-change transaction, the common case for callers without grouping
// needs.

func (d *Document) single(fn func(tx *Transaction) error) error {
	if d.tx != nil {
		return fn(d.tx)
	}
	tx := d.Transaction()
	if err := fn(tx); err != nil {
		rbErr := tx.Rollback()
		if rbErr != nil {
			return rbErr
		}
		return err
	}
	_, err := tx.Commit(CommitOptions{})
	return err
}

// Put writes a scalar at a map key, committing immediately.
func (d *Document) Put(obj types.ObjID, key string, val types.ScalarValue) (types.OpID, error) {
	var id types.OpID
	err := d.single(func(tx *Transaction) error {
		var err error
		id, err = tx.Put(obj, key, val)
		return err
	})
	return id, err
}

// PutObject creates a container at a map key, committing immediately.
func (d *Document) PutObject(obj types.ObjID, key string, kind types.ObjKind) (types.ObjID, error) {
	var id types.ObjID
	err := d.single(func(tx *Transaction) error {
		var err error
		id, err = tx.PutObject(obj, key, kind)
		return err
	})
	return id, err
}

// Delete removes a map key, committing immediately.
func (d *Document) Delete(obj types.ObjID, key string) error {
	return d.single(func(tx *Transaction) error { return tx.Delete(obj, key) })
}

// Increment bumps a counter, committing immediately.
func (d *Document) Increment(obj types.ObjID, key string, delta int64) error {
	return d.single(func(tx *Transaction) error { return tx.Increment(obj, key, delta) })
}

// Insert places a value at a list index, committing immediately.
func (d *Document) Insert(obj types.ObjID, index int, val types.ScalarValue) (types.OpID, error) {
	var id types.OpID
	err := d.single(func(tx *Transaction) error {
		var err error
		id, err = tx.Insert(obj, index, val)
		return err
	})
	return id, err
}

// InsertObject places a container at a list index, committing immediately.
func (d *Document) InsertObject(obj types.ObjID, index int, kind types.ObjKind) (types.ObjID, error) {
	var id types.ObjID
	err := d.single(func(tx *Transaction) error {
		var err error
		id, err = tx.InsertObject(obj, index, kind)
		return err
	})
	return id, err
}

// DeleteAt removes a list element, committing immediately.
func (d *Document) DeleteAt(obj types.ObjID, index int) error {
	return d.single(func(tx *Transaction) error { return tx.DeleteAt(obj, index) })
}

// Splice edits a sequence, committing immediately.
func (d *Document) Splice(obj types.ObjID, index, del int, vals []types.ScalarValue) error {
	return d.single(func(tx *Transaction) error { return tx.Splice(obj, index, del, vals) })
}

// SpliceText edits a text object, committing immediately.
func (d *Document) SpliceText(obj types.ObjID, index, del int, text string) error {
	return d.single(func(tx *Transaction) error { return tx.SpliceText(obj, index, del, text) })
}

// Mark annotates a text range, committing immediately.
func (d *Document) Mark(obj types.ObjID, start, end int, name string, val types.ScalarValue, expand ExpandMark) error {
	return d.single(func(tx *Transaction) error { return tx.Mark(obj, start, end, name, val, expand) })
}

// Unmark removes a mark over a range, committing immediately.
func (d *Document) Unmark(obj types.ObjID, start, end int, name string) error {
	return d.single(func(tx *Transaction) error { return tx.Unmark(obj, start, end, name) })
}
