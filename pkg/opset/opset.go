// pkg/opset/opset.go
package opset

import (
	"errors"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"weft/pkg/types"
)

var (
	ErrNotAnObject  = errors.New("not an object")
	ErrInvalidIndex = errors.New("invalid index")
	ErrInvalidKey   = errors.New("invalid key")
	ErrEmptyKey     = errors.New("map keys must not be empty")
)

// lastInsertCacheSize bounds the per-document append-shortcut cache.
const lastInsertCacheSize = 128

type objMeta struct {
	kind   types.ObjKind
	makeOp *types.Op // nil for the root
}

type insertHint struct {
	index int
	elem  types.ElemID
}

// OpSet is the central indexed structure of a document: one op tree per
// object plus object metadata. Two op sets that received the same set of
// ops, in any order, are identical.
type OpSet struct {
	trees map[types.ObjID]*opTree
	metas map[types.ObjID]objMeta

	// lastInsert caches the most recent local insert per object so the
	// append-at-end pattern skips the tree seek.
	lastInsert *lru.Cache[types.ObjID, insertHint]
}

// New returns an op set holding only the root map.
func New() *OpSet {
	cache, _ := lru.New[types.ObjID, insertHint](lastInsertCacheSize)
	return &OpSet{
		trees:      map[types.ObjID]*opTree{types.RootObj: newOpTree()},
		metas:      map[types.ObjID]objMeta{types.RootObj: {kind: types.ObjMap}},
		lastInsert: cache,
	}
}

// ObjKind returns the kind of an object.
func (s *OpSet) ObjKind(obj types.ObjID) (types.ObjKind, error) {
	m, ok := s.metas[obj]
	if !ok {
		return 0, ErrNotAnObject
	}
	return m.kind, nil
}

// HasObject reports whether obj exists.
func (s *OpSet) HasObject(obj types.ObjID) bool {
	_, ok := s.metas[obj]
	return ok
}

// Objects returns every object id in ascending order, root first.
func (s *OpSet) Objects() []types.ObjID {
	out := make([]types.ObjID, 0, len(s.trees))
	for id := range s.trees {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Parent returns the make op that created obj (nil for the root), from
// which the parent object and key are read.
func (s *OpSet) Parent(obj types.ObjID) (*types.Op, error) {
	m, ok := s.metas[obj]
	if !ok {
		return nil, ErrNotAnObject
	}
	return m.makeOp, nil
}

// Apply splices one op into the op set: find its position and overwritten
// ops, record successor links, and insert it. Ops arrive here exactly once,
// in any causal order consistent with their preds.
func (s *OpSet) Apply(op *types.Op) error {
	tree, ok := s.trees[op.Obj]
	if !ok {
		return ErrNotAnObject
	}
	if !op.Key.Seq && op.Key.Str == "" {
		return ErrEmptyKey
	}
	s.lastInsert.Remove(op.Obj)

	pos, succ := tree.seekOp(op)
	for _, i := range succ {
		s.overwrite(tree, i, op)
	}
	if op.Action == types.ActionMarkEnd && len(op.Pred) == 1 {
		// the mark-end's pred names its begin op, which lives at another key
		if bpos, begin := tree.FindByID(op.Pred[0]); begin != nil {
			before := begin.Visible()
			begin.AddSucc(op.ID)
			if before != begin.Visible() {
				tree.changeVis(bpos, indexKey(begin), -1)
			}
		}
	}
	if op.Action == types.ActionDelete {
		// tombstones live only in the succ links of their targets
		return nil
	}
	tree.Insert(pos, op)
	if op.Action.IsMake() {
		obj := types.ObjID(op.ID)
		s.trees[obj] = newOpTree()
		s.metas[obj] = objMeta{kind: op.Action.ObjKind(), makeOp: op}
	}
	return nil
}

func (s *OpSet) overwrite(tree *opTree, i int, op *types.Op) {
	target := tree.Get(i)
	before := target.Visible()
	if op.Action == types.ActionIncrement && target.IsCounter() {
		target.Incs++
		target.IncSum += op.Value.Int()
	}
	target.AddSucc(op.ID)
	if after := target.Visible(); before != after {
		delta := -1
		if after {
			delta = 1
		}
		tree.changeVis(i, indexKey(target), delta)
	}
}

// NoteLocalInsert records an append hint after a locally authored insert.
func (s *OpSet) NoteLocalInsert(obj types.ObjID, index int, elem types.ElemID) {
	s.lastInsert.Add(obj, insertHint{index: index, elem: elem})
}

// InsertKeyFor returns the sequence key for a new insert at visible index
// target in obj.
func (s *OpSet) InsertKeyFor(obj types.ObjID, target int) (types.Key, error) {
	tree, ok := s.trees[obj]
	if !ok {
		return types.Key{}, ErrNotAnObject
	}
	if hint, ok := s.lastInsert.Get(obj); ok && hint.index+1 == target {
		if last := tree.Get(tree.Len() - 1); last != nil &&
			last.Insert && last.Visible() && last.ElemID() == hint.elem {
			return types.SeqKey(hint.elem), nil
		}
	}
	key, ok := tree.insertNth(target)
	if !ok {
		return types.Key{}, ErrInvalidIndex
	}
	return key, nil
}

// visibleAt decides visibility under an optional clock. With a nil clock it
// is the current-visibility rule; with a clock, an op is visible when the
// clock covers it and covers none of its non-increment successors.
func (s *OpSet) visibleAt(tree *opTree, op *types.Op, clock types.Clock) bool {
	if clock == nil {
		return op.Visible()
	}
	switch op.Action {
	case types.ActionDelete, types.ActionIncrement, types.ActionMarkBegin, types.ActionMarkEnd:
		return false
	}
	if !clock.Covers(op.ID) {
		return false
	}
	for _, succ := range op.Succ {
		if !clock.Covers(succ) {
			continue
		}
		if op.IsCounter() {
			if _, sop := tree.FindByID(succ); sop != nil && sop.Action == types.ActionIncrement {
				continue
			}
		}
		return false
	}
	return true
}

// Value is a materialized op: either a scalar or a container reference.
type Value struct {
	ID     types.OpID
	IsObj  bool
	Obj    types.ObjID
	Kind   types.ObjKind
	Scalar types.ScalarValue
}

func (s *OpSet) materialize(tree *opTree, op *types.Op, clock types.Clock) Value {
	if op.Action.IsMake() {
		return Value{ID: op.ID, IsObj: true, Obj: types.ObjID(op.ID), Kind: op.Action.ObjKind()}
	}
	if op.IsCounter() {
		total := op.Value.Int()
		if clock == nil {
			total += op.IncSum
		} else {
			for _, succ := range op.Succ {
				if !clock.Covers(succ) {
					continue
				}
				if _, sop := tree.FindByID(succ); sop != nil && sop.Action == types.ActionIncrement {
					total += sop.Value.Int()
				}
			}
		}
		return Value{ID: op.ID, Scalar: types.Counter(total)}
	}
	return Value{ID: op.ID, Scalar: op.Value}
}

// visibleGroups walks obj's ops grouping them by key and yields, per group
// with at least one visible op, the visible ops in ascending id order. fn
// returning false stops the walk.
func (s *OpSet) visibleGroups(obj types.ObjID, clock types.Clock, fn func(key types.Key, ops []*types.Op) bool) error {
	tree, ok := s.trees[obj]
	if !ok {
		return ErrNotAnObject
	}
	var curKey types.Key
	var group []*types.Op
	started := false
	flush := func() bool {
		if len(group) == 0 {
			return true
		}
		ops := group
		group = nil
		return fn(curKey, ops)
	}
	tree.Walk(func(_ int, op *types.Op) bool {
		key := indexKey(op)
		if !started || key != curKey {
			if !flush() {
				return false
			}
			curKey, started = key, true
		}
		if s.visibleAt(tree, op, clock) {
			group = append(group, op)
		}
		return true
	})
	flush()
	return nil
}

// GetAll returns the conflict set — every concurrently visible value — at a
// map key, greatest-id winner last.
func (s *OpSet) GetAll(obj types.ObjID, key string, clock types.Clock) ([]Value, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	tree, ok := s.trees[obj]
	if !ok {
		return nil, ErrNotAnObject
	}
	var out []Value
	target := types.MapKey(key)
	err := s.visibleGroups(obj, clock, func(k types.Key, ops []*types.Op) bool {
		if k != target {
			return true
		}
		for _, op := range ops {
			out = append(out, s.materialize(tree, op, clock))
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAllAt returns the conflict set at a list index.
func (s *OpSet) GetAllAt(obj types.ObjID, index int, clock types.Clock) ([]Value, types.ElemID, error) {
	tree, ok := s.trees[obj]
	if !ok {
		return nil, types.ElemID{}, ErrNotAnObject
	}
	if clock == nil {
		elem, ops, found := tree.nth(index)
		if !found {
			return nil, types.ElemID{}, ErrInvalidIndex
		}
		out := make([]Value, 0, len(ops))
		for _, op := range ops {
			out = append(out, s.materialize(tree, op, clock))
		}
		return out, elem, nil
	}
	// historical reads walk the groups counting visible elements
	var out []Value
	var elem types.ElemID
	i := 0
	err := s.visibleGroups(obj, clock, func(k types.Key, ops []*types.Op) bool {
		if i == index {
			elem = k.Elem
			for _, op := range ops {
				out = append(out, s.materialize(tree, op, clock))
			}
			return false
		}
		i++
		return true
	})
	if err != nil {
		return nil, types.ElemID{}, err
	}
	if out == nil {
		return nil, types.ElemID{}, ErrInvalidIndex
	}
	return out, elem, nil
}

// MapEntry is one visible map property.
type MapEntry struct {
	Key   string
	Value Value
	// Conflicts holds every visible value, winner last; Value repeats the
	// winner.
	Conflicts []Value
}

// MapRange iterates the visible properties of a map object in key order.
func (s *OpSet) MapRange(obj types.ObjID, clock types.Clock) ([]MapEntry, error) {
	tree, ok := s.trees[obj]
	if !ok {
		return nil, ErrNotAnObject
	}
	var out []MapEntry
	err := s.visibleGroups(obj, clock, func(k types.Key, ops []*types.Op) bool {
		if k.Seq {
			return true
		}
		vals := make([]Value, 0, len(ops))
		for _, op := range ops {
			vals = append(vals, s.materialize(tree, op, clock))
		}
		out = append(out, MapEntry{Key: k.Str, Value: vals[len(vals)-1], Conflicts: vals})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListEntry is one visible list element.
type ListEntry struct {
	Index     int
	Elem      types.ElemID
	Value     Value
	Conflicts []Value
}

// ListRange iterates the visible elements of a sequence object.
func (s *OpSet) ListRange(obj types.ObjID, clock types.Clock) ([]ListEntry, error) {
	tree, ok := s.trees[obj]
	if !ok {
		return nil, ErrNotAnObject
	}
	var out []ListEntry
	i := 0
	err := s.visibleGroups(obj, clock, func(k types.Key, ops []*types.Op) bool {
		if !k.Seq {
			return true
		}
		vals := make([]Value, 0, len(ops))
		for _, op := range ops {
			vals = append(vals, s.materialize(tree, op, clock))
		}
		out = append(out, ListEntry{Index: i, Elem: k.Elem, Value: vals[len(vals)-1], Conflicts: vals})
		i++
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// VisibleLen returns the number of visible elements of a sequence object.
func (s *OpSet) VisibleLen(obj types.ObjID, clock types.Clock) (int, error) {
	tree, ok := s.trees[obj]
	if !ok {
		return 0, ErrNotAnObject
	}
	if clock == nil {
		return tree.root.index.visibleLen(), nil
	}
	n := 0
	err := s.visibleGroups(obj, clock, func(types.Key, []*types.Op) bool {
		n++
		return true
	})
	return n, err
}

// Tree exposes the raw op tree for the save path and invariant checks.
func (s *OpSet) Tree(obj types.ObjID) *opTree {
	return s.trees[obj]
}

// WalkObjectOps calls fn for every op of obj in total order.
func (s *OpSet) WalkObjectOps(obj types.ObjID, fn func(op *types.Op) bool) {
	tree, ok := s.trees[obj]
	if !ok {
		return
	}
	tree.Walk(func(_ int, op *types.Op) bool { return fn(op) })
}

// WalkAllOps calls fn for every op of every object, objects ascending,
// root first.
func (s *OpSet) WalkAllOps(fn func(obj types.ObjID, op *types.Op) bool) {
	for _, obj := range s.Objects() {
		stop := false
		s.WalkObjectOps(obj, func(op *types.Op) bool {
			if !fn(obj, op) {
				stop = true
				return false
			}
			return true
		})
		if stop {
			return
		}
	}
}
