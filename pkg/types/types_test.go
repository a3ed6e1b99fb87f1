// pkg/types/types_test.go
package types

import "testing"

func TestOpIDOrdering(t *testing.T) {
	a := ActorID("aaaaaaaaaaaaaaaa")
	b := ActorID("bbbbbbbbbbbbbbbb")
	tests := []struct {
		x, y     OpID
		expected int
	}{
		{OpID{1, a}, OpID{2, a}, -1},
		{OpID{2, a}, OpID{1, a}, 1},
		{OpID{1, a}, OpID{1, a}, 0},
		{OpID{1, a}, OpID{1, b}, -1},
		{OpID{1, b}, OpID{1, a}, 1},
		{OpID{0, ""}, OpID{1, a}, -1},
	}
	for _, tt := range tests {
		if got := tt.x.Cmp(tt.y); got != tt.expected {
			t.Errorf("Cmp(%v, %v): expected %d, got %d", tt.x, tt.y, tt.expected, got)
		}
	}
}

func TestOpIDActorBytesNotIndex(t *testing.T) {
	// Ordering must follow raw actor bytes even when the "smaller" actor was
	// seen (and would have been interned) later.
	early := ActorID("zzzzzzzzzzzzzzzz")
	late := ActorID("aaaaaaaaaaaaaaaa")
	if (OpID{5, early}).Cmp(OpID{5, late}) != 1 {
		t.Error("expected z-actor to sort after a-actor regardless of intern order")
	}
}

func TestScalarValueEqual(t *testing.T) {
	tests := []struct {
		x, y     ScalarValue
		expected bool
	}{
		{Null(), Null(), true},
		{Int(3), Int(3), true},
		{Int(3), Uint(3), false},
		{Counter(3), Int(3), false},
		{Str("a"), Str("a"), true},
		{Bytes([]byte{1, 2}), Bytes([]byte{1, 2}), true},
		{Unknown(12, []byte{9}), Unknown(12, []byte{9}), true},
		{Unknown(12, []byte{9}), Unknown(13, []byte{9}), false},
	}
	for _, tt := range tests {
		if got := tt.x.Equal(tt.y); got != tt.expected {
			t.Errorf("Equal(%v, %v): expected %v, got %v", tt.x, tt.y, tt.expected, got)
		}
	}
}

func TestOpElemID(t *testing.T) {
	a := ActorID("aaaaaaaaaaaaaaaa")
	ins := &Op{ID: OpID{4, a}, Insert: true, Key: SeqKey(HeadElem)}
	if ins.ElemID() != (ElemID{4, a}) {
		t.Errorf("insert op elem id: got %v", ins.ElemID())
	}
	upd := &Op{ID: OpID{9, a}, Key: SeqKey(ElemID{4, a})}
	if upd.ElemID() != (ElemID{4, a}) {
		t.Errorf("update op elem id: got %v", upd.ElemID())
	}
}

func TestAddSuccSorted(t *testing.T) {
	a := ActorID("aaaaaaaaaaaaaaaa")
	b := ActorID("bbbbbbbbbbbbbbbb")
	op := &Op{}
	op.AddSucc(OpID{3, b})
	op.AddSucc(OpID{2, a})
	op.AddSucc(OpID{3, a})
	op.AddSucc(OpID{3, a}) // duplicate
	if len(op.Succ) != 3 {
		t.Fatalf("expected 3 succs, got %d", len(op.Succ))
	}
	for i := 1; i < len(op.Succ); i++ {
		if op.Succ[i-1].Cmp(op.Succ[i]) >= 0 {
			t.Errorf("succ not sorted at %d: %v", i, op.Succ)
		}
	}
}

func TestClockCovers(t *testing.T) {
	a := ActorID("aaaaaaaaaaaaaaaa")
	c := Clock{a: 5}
	if !c.Covers(OpID{5, a}) || !c.Covers(OpID{1, a}) {
		t.Error("clock should cover counters up to 5")
	}
	if c.Covers(OpID{6, a}) {
		t.Error("clock should not cover counter 6")
	}
	if !c.Covers(OpID{}) {
		t.Error("clock always covers the root sentinel")
	}
}
