// pkg/opset/opset_test.go
package opset

import (
	"testing"

	"weft/pkg/types"
)

var (
	actorA = types.ActorID("aaaaaaaaaaaaaaaa")
	actorB = types.ActorID("bbbbbbbbbbbbbbbb")
)

func put(counter uint64, actor types.ActorID, obj types.ObjID, key string, v types.ScalarValue, pred ...types.OpID) *types.Op {
	return &types.Op{
		ID:     types.OpID{Counter: counter, Actor: actor},
		Action: types.ActionPut,
		Obj:    obj,
		Key:    types.MapKey(key),
		Value:  v,
		Pred:   pred,
	}
}

func insertAfter(counter uint64, actor types.ActorID, obj types.ObjID, elem types.ElemID, v types.ScalarValue) *types.Op {
	return &types.Op{
		ID:     types.OpID{Counter: counter, Actor: actor},
		Action: types.ActionPut,
		Obj:    obj,
		Key:    types.SeqKey(elem),
		Insert: true,
		Value:  v,
	}
}

func apply(t *testing.T, s *OpSet, ops ...*types.Op) {
	t.Helper()
	for _, op := range ops {
		if err := s.Apply(op); err != nil {
			t.Fatalf("apply %v: %v", op.ID, err)
		}
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestMapPutAndOverwrite(t *testing.T) {
	s := New()
	first := put(1, actorA, types.RootObj, "bird", types.Str("magpie"))
	apply(t, s, first)
	apply(t, s, put(2, actorA, types.RootObj, "bird", types.Str("wren"), first.ID))

	vals, err := s.GetAll(types.RootObj, "bird", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 || vals[0].Scalar.Str() != "wren" {
		t.Fatalf("expected single visible value wren, got %+v", vals)
	}
	if first.Visible() {
		t.Error("overwritten op should not be visible")
	}
}

func TestMapConcurrentPutGreaterActorWins(t *testing.T) {
	s := New()
	// same counter, different actors: concurrent; bb.. sorts greater
	apply(t, s,
		put(1, actorA, types.RootObj, "x", types.Int(1)),
		put(1, actorB, types.RootObj, "x", types.Int(2)),
	)
	vals, err := s.GetAll(types.RootObj, "x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 2 {
		t.Fatalf("expected conflict set of 2, got %d", len(vals))
	}
	winner := vals[len(vals)-1]
	if winner.Scalar.Int() != 2 {
		t.Errorf("expected actor bb.. to win with 2, got %v", winner.Scalar)
	}
}

func TestEmptyMapKeyRejected(t *testing.T) {
	s := New()
	if err := s.Apply(put(1, actorA, types.RootObj, "", types.Int(1))); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestApplyOrderIndependence(t *testing.T) {
	mk := &types.Op{
		ID: types.OpID{Counter: 1, Actor: actorA}, Action: types.ActionMakeList,
		Obj: types.RootObj, Key: types.MapKey("items"),
	}
	i1 := insertAfter(2, actorA, types.ObjID(mk.ID), types.HeadElem, types.Str("a"))
	i2 := insertAfter(3, actorA, types.ObjID(mk.ID), types.ElemID(i1.ID), types.Str("b"))
	// concurrent insert by B at the head
	i3 := insertAfter(2, actorB, types.ObjID(mk.ID), types.HeadElem, types.Str("c"))

	build := func(order []*types.Op) []string {
		s := New()
		// each op set gets fresh op copies: Succ is op-set state
		for _, proto := range order {
			cp := *proto
			cp.Succ = nil
			if err := s.Apply(&cp); err != nil {
				t.Fatal(err)
			}
		}
		entries, err := s.ListRange(types.ObjID(mk.ID), nil)
		if err != nil {
			t.Fatal(err)
		}
		var out []string
		for _, e := range entries {
			out = append(out, e.Value.Scalar.Str())
		}
		return out
	}

	a := build([]*types.Op{mk, i1, i2, i3})
	b := build([]*types.Op{mk, i3, i1, i2})
	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("expected 3 elements, got %v / %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("orders diverge: %v vs %v", a, b)
		}
	}
	// concurrent head inserts: i1 (counter 2, actor a) vs i3 (counter 2,
	// actor b): greater id first, so "c" must precede "a"
	if a[0] != "c" || a[1] != "a" || a[2] != "b" {
		t.Errorf("unexpected RGA order: %v", a)
	}
}

func TestListInsertNthBoundaries(t *testing.T) {
	s := New()
	mk := &types.Op{
		ID: types.OpID{Counter: 1, Actor: actorA}, Action: types.ActionMakeList,
		Obj: types.RootObj, Key: types.MapKey("list"),
	}
	apply(t, s, mk)
	list := types.ObjID(mk.ID)

	// B1: insert at 0 on an empty list
	key, err := s.InsertKeyFor(list, 0)
	if err != nil || !key.Elem.IsHead() {
		t.Fatalf("insert at 0 on empty list: key %v err %v", key, err)
	}
	first := insertAfter(2, actorA, list, types.HeadElem, types.Int(10))
	apply(t, s, first)
	n, _ := s.VisibleLen(list, nil)
	if n != 1 {
		t.Fatalf("expected length 1, got %d", n)
	}

	// B1: insert at len appends
	key, err = s.InsertKeyFor(list, 1)
	if err != nil || key.Elem != types.ElemID(first.ID) {
		t.Fatalf("append key: %v err %v", key, err)
	}
	if _, err := s.InsertKeyFor(list, 5); err != ErrInvalidIndex {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
}

func TestDeleteTombstonesElement(t *testing.T) {
	s := New()
	mk := &types.Op{
		ID: types.OpID{Counter: 1, Actor: actorA}, Action: types.ActionMakeList,
		Obj: types.RootObj, Key: types.MapKey("list"),
	}
	i1 := insertAfter(2, actorA, types.ObjID(mk.ID), types.HeadElem, types.Str("x"))
	i2 := insertAfter(3, actorA, types.ObjID(mk.ID), types.ElemID(i1.ID), types.Str("y"))
	del := &types.Op{
		ID: types.OpID{Counter: 4, Actor: actorA}, Action: types.ActionDelete,
		Obj: types.ObjID(mk.ID), Key: types.SeqKey(types.ElemID(i1.ID)),
		Pred: []types.OpID{i1.ID},
	}
	apply(t, s, mk, i1, i2, del)

	entries, err := s.ListRange(types.ObjID(mk.ID), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Value.Scalar.Str() != "y" {
		t.Fatalf("expected only y visible, got %+v", entries)
	}
	// the tombstoned op stays in the tree with a successor
	if len(i1.Succ) != 1 || i1.Succ[0] != del.ID {
		t.Errorf("expected del in succ of i1, got %v", i1.Succ)
	}
}

func TestCounterIncrementsStayVisible(t *testing.T) {
	s := New()
	c := put(1, actorA, types.RootObj, "c", types.Counter(0))
	inc1 := &types.Op{
		ID: types.OpID{Counter: 2, Actor: actorA}, Action: types.ActionIncrement,
		Obj: types.RootObj, Key: types.MapKey("c"), Value: types.Int(1),
		Pred: []types.OpID{c.ID},
	}
	inc2 := &types.Op{
		ID: types.OpID{Counter: 3, Actor: actorA}, Action: types.ActionIncrement,
		Obj: types.RootObj, Key: types.MapKey("c"), Value: types.Int(2),
		Pred: []types.OpID{c.ID},
	}
	apply(t, s, c, inc1, inc2)

	vals, err := s.GetAll(types.RootObj, "c", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 {
		t.Fatalf("counter with increments must stay visible, got %d values", len(vals))
	}
	if vals[0].Scalar.Kind() != types.KindCounter || vals[0].Scalar.Int() != 3 {
		t.Errorf("expected counter(3), got %v", vals[0].Scalar)
	}

	// a delete ends its visibility
	del := &types.Op{
		ID: types.OpID{Counter: 4, Actor: actorA}, Action: types.ActionDelete,
		Obj: types.RootObj, Key: types.MapKey("c"), Pred: []types.OpID{c.ID},
	}
	apply(t, s, del)
	vals, _ = s.GetAll(types.RootObj, "c", nil)
	if len(vals) != 0 {
		t.Errorf("deleted counter should be invisible, got %+v", vals)
	}
}

func TestHistoricalVisibility(t *testing.T) {
	s := New()
	first := put(1, actorA, types.RootObj, "k", types.Str("old"))
	second := put(2, actorA, types.RootObj, "k", types.Str("new"), first.ID)
	apply(t, s, first, second)

	past := types.Clock{actorA: 1}
	vals, err := s.GetAll(types.RootObj, "k", past)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 || vals[0].Scalar.Str() != "old" {
		t.Fatalf("expected historical value old, got %+v", vals)
	}
	now, _ := s.GetAll(types.RootObj, "k", nil)
	if len(now) != 1 || now[0].Scalar.Str() != "new" {
		t.Fatalf("expected current value new, got %+v", now)
	}
}

func TestTextAndMarks(t *testing.T) {
	s := New()
	mk := &types.Op{
		ID: types.OpID{Counter: 1, Actor: actorA}, Action: types.ActionMakeText,
		Obj: types.RootObj, Key: types.MapKey("note"),
	}
	apply(t, s, mk)
	text := types.ObjID(mk.ID)

	// insert "hello world" one char per op
	prev := types.HeadElem
	counter := uint64(2)
	for _, ch := range "hello world" {
		op := insertAfter(counter, actorA, text, prev, types.Str(string(ch)))
		apply(t, s, op)
		prev = types.ElemID(op.ID)
		counter++
	}
	got, err := s.Text(text, nil)
	if err != nil || got != "hello world" {
		t.Fatalf("text: %q err %v", got, err)
	}

	// mark "hello" bold: begin anchored at head, end anchored at 'o'
	oElem, _, found := s.Tree(text).nth(4)
	if !found {
		t.Fatal("nth(4) not found")
	}
	begin := &types.Op{
		ID: types.OpID{Counter: counter, Actor: actorA}, Action: types.ActionMarkBegin,
		Obj: text, Key: types.HeadKey, MarkName: "bold", Value: types.Bool(true),
	}
	counter++
	end := &types.Op{
		ID: types.OpID{Counter: counter, Actor: actorA}, Action: types.ActionMarkEnd,
		Obj: text, Key: types.SeqKey(oElem), Pred: []types.OpID{begin.ID},
	}
	counter++
	apply(t, s, begin, end)

	spans, err := s.Spans(text, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 2 || spans[0].Text != "hello" || spans[1].Text != " world" {
		t.Fatalf("unexpected spans: %+v", spans)
	}
	if !spans[0].Marks["bold"].Bool() || len(spans[1].Marks) != 0 {
		t.Fatalf("unexpected mark sets: %+v", spans)
	}

	// non-expanding end: an insert at the mark end lands outside
	key, err := s.InsertKeyFor(text, 5)
	if err != nil {
		t.Fatal(err)
	}
	bang := insertAfter(counter, actorA, text, key.Elem, types.Str("!"))
	apply(t, s, bang)
	spans, _ = s.Spans(text, nil)
	if len(spans) != 2 || spans[0].Text != "hello" || spans[1].Text != "! world" {
		t.Fatalf("expected bang outside the mark, got %+v", spans)
	}

	marks, err := s.Marks(text, nil)
	if err != nil || len(marks) != 1 {
		t.Fatalf("marks: %+v err %v", marks, err)
	}
	if marks[0].Name != "bold" || marks[0].Start != 0 || marks[0].End != 5 {
		t.Errorf("unexpected realized mark: %+v", marks[0])
	}
}

func TestMarkExpandEndPullsInsertInside(t *testing.T) {
	s := New()
	mk := &types.Op{
		ID: types.OpID{Counter: 1, Actor: actorA}, Action: types.ActionMakeText,
		Obj: types.RootObj, Key: types.MapKey("note"),
	}
	apply(t, s, mk)
	text := types.ObjID(mk.ID)
	prev := types.HeadElem
	counter := uint64(2)
	for _, ch := range "ab" {
		op := insertAfter(counter, actorA, text, prev, types.Str(string(ch)))
		apply(t, s, op)
		prev = types.ElemID(op.ID)
		counter++
	}
	begin := &types.Op{
		ID: types.OpID{Counter: counter, Actor: actorA}, Action: types.ActionMarkBegin,
		Obj: text, Key: types.HeadKey, MarkName: "em", Value: types.Bool(true),
	}
	counter++
	end := &types.Op{
		ID: types.OpID{Counter: counter, Actor: actorA}, Action: types.ActionMarkEnd,
		Obj: text, Key: types.SeqKey(prev), Pred: []types.OpID{begin.ID}, Expand: true,
	}
	counter++
	apply(t, s, begin, end)

	// insert at the end boundary: the expanding end holds the position, so
	// the new char lands inside the mark
	key, err := s.InsertKeyFor(text, 2)
	if err != nil {
		t.Fatal(err)
	}
	op := insertAfter(counter, actorA, text, key.Elem, types.Str("c"))
	apply(t, s, op)
	spans, _ := s.Spans(text, nil)
	if len(spans) != 1 || spans[0].Text != "abc" || !spans[0].Marks["em"].Bool() {
		t.Fatalf("expected abc inside mark, got %+v", spans)
	}
}

func TestMarkBeginNotExpandingKeepsInsertOutside(t *testing.T) {
	s := New()
	mk := &types.Op{
		ID: types.OpID{Counter: 1, Actor: actorA}, Action: types.ActionMakeText,
		Obj: types.RootObj, Key: types.MapKey("note"),
	}
	apply(t, s, mk)
	text := types.ObjID(mk.ID)
	prev := types.HeadElem
	counter := uint64(2)
	for _, ch := range "bc" {
		op := insertAfter(counter, actorA, text, prev, types.Str(string(ch)))
		apply(t, s, op)
		prev = types.ElemID(op.ID)
		counter++
	}
	begin := &types.Op{
		ID: types.OpID{Counter: counter, Actor: actorA}, Action: types.ActionMarkBegin,
		Obj: text, Key: types.HeadKey, MarkName: "bold", Value: types.Bool(true),
	}
	counter++
	end := &types.Op{
		ID: types.OpID{Counter: counter, Actor: actorA}, Action: types.ActionMarkEnd,
		Obj: text, Key: types.SeqKey(prev), Pred: []types.OpID{begin.ID},
	}
	counter++
	apply(t, s, begin, end)

	// an insert at the begin boundary of a non-expanding mark stays out
	op := insertAfter(counter, actorA, text, types.HeadElem, types.Str("a"))
	apply(t, s, op)
	spans, _ := s.Spans(text, nil)
	if len(spans) != 2 || spans[0].Text != "a" || len(spans[0].Marks) != 0 {
		t.Fatalf("expected leading insert outside the mark, got %+v", spans)
	}
	if spans[1].Text != "bc" || !spans[1].Marks["bold"].Bool() {
		t.Fatalf("expected bc still marked, got %+v", spans)
	}
}

func TestUnmarkNullValueWins(t *testing.T) {
	s := New()
	mk := &types.Op{
		ID: types.OpID{Counter: 1, Actor: actorA}, Action: types.ActionMakeText,
		Obj: types.RootObj, Key: types.MapKey("note"),
	}
	apply(t, s, mk)
	text := types.ObjID(mk.ID)
	prev := types.HeadElem
	counter := uint64(2)
	for _, ch := range "hi" {
		op := insertAfter(counter, actorA, text, prev, types.Str(string(ch)))
		apply(t, s, op)
		prev = types.ElemID(op.ID)
		counter++
	}
	mark := func(value types.ScalarValue) {
		begin := &types.Op{
			ID: types.OpID{Counter: counter, Actor: actorA}, Action: types.ActionMarkBegin,
			Obj: text, Key: types.HeadKey, MarkName: "bold", Value: value,
		}
		counter++
		end := &types.Op{
			ID: types.OpID{Counter: counter, Actor: actorA}, Action: types.ActionMarkEnd,
			Obj: text, Key: types.SeqKey(prev), Pred: []types.OpID{begin.ID},
		}
		counter++
		apply(t, s, begin, end)
	}
	mark(types.Bool(true))
	mark(types.Null()) // unmark: the later null wins

	spans, _ := s.Spans(text, nil)
	if len(spans) != 1 || len(spans[0].Marks) != 0 {
		t.Fatalf("expected unmarked text, got %+v", spans)
	}
}

func TestNthConflictSet(t *testing.T) {
	s := New()
	mk := &types.Op{
		ID: types.OpID{Counter: 1, Actor: actorA}, Action: types.ActionMakeList,
		Obj: types.RootObj, Key: types.MapKey("l"),
	}
	i1 := insertAfter(2, actorA, types.ObjID(mk.ID), types.HeadElem, types.Str("v0"))
	// concurrent updates of the element by both actors
	updA := &types.Op{
		ID: types.OpID{Counter: 3, Actor: actorA}, Action: types.ActionPut,
		Obj: types.ObjID(mk.ID), Key: types.SeqKey(types.ElemID(i1.ID)),
		Value: types.Str("fromA"), Pred: []types.OpID{i1.ID},
	}
	updB := &types.Op{
		ID: types.OpID{Counter: 3, Actor: actorB}, Action: types.ActionPut,
		Obj: types.ObjID(mk.ID), Key: types.SeqKey(types.ElemID(i1.ID)),
		Value: types.Str("fromB"), Pred: []types.OpID{i1.ID},
	}
	apply(t, s, mk, i1, updA, updB)

	vals, elem, err := s.GetAllAt(types.ObjID(mk.ID), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if elem != types.ElemID(i1.ID) {
		t.Errorf("unexpected element id %v", elem)
	}
	if len(vals) != 2 || vals[len(vals)-1].Scalar.Str() != "fromB" {
		t.Fatalf("expected conflict set with fromB winning, got %+v", vals)
	}
}

func TestManyOpsKeepTreeBalancedIndexes(t *testing.T) {
	s := New()
	mk := &types.Op{
		ID: types.OpID{Counter: 1, Actor: actorA}, Action: types.ActionMakeList,
		Obj: types.RootObj, Key: types.MapKey("big"),
	}
	apply(t, s, mk)
	list := types.ObjID(mk.ID)
	prev := types.HeadElem
	for c := uint64(2); c < 1200; c++ {
		op := insertAfter(c, actorA, list, prev, types.Uint(c))
		if err := s.Apply(op); err != nil {
			t.Fatal(err)
		}
		prev = types.ElemID(op.ID)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	n, _ := s.VisibleLen(list, nil)
	if n != 1198 {
		t.Fatalf("expected 1198 visible, got %d", n)
	}
	vals, _, err := s.GetAllAt(list, 600, nil)
	if err != nil || len(vals) != 1 || vals[0].Scalar.Uint() != 602 {
		t.Fatalf("nth(600): %+v err %v", vals, err)
	}
}
