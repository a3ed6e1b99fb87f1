// pkg/opset/marks.go
package opset

import (
	"weft/pkg/types"
)

// Mark is a realized rich-text annotation over a visible index range
// [Start, End).
type Mark struct {
	Name  string
	Value types.ScalarValue
	Start int
	End   int
}

// Span is a run of text under one set of winning marks.
type Span struct {
	Text  string
	Marks map[string]types.ScalarValue
}

// activeMark is a mark whose begin op has been passed but whose end op has
// not.
type activeMark struct {
	begin types.OpID
	name  string
	value types.ScalarValue
}

type markWalker struct {
	active []activeMark
}

func (w *markWalker) push(op *types.Op) {
	w.active = append(w.active, activeMark{begin: op.ID, name: op.MarkName, value: op.Value})
}

func (w *markWalker) pop(begin types.OpID) {
	for i, m := range w.active {
		if m.begin == begin {
			w.active = append(w.active[:i], w.active[i+1:]...)
			return
		}
	}
}

// winning resolves the currently winning value per name: among active marks
// sharing a name, the greatest begin id wins; a winning null value removes
// the name.
func (w *markWalker) winning() map[string]types.ScalarValue {
	winners := make(map[string]activeMark)
	for _, m := range w.active {
		if prev, ok := winners[m.name]; !ok || prev.begin.Cmp(m.begin) < 0 {
			winners[m.name] = m
		}
	}
	out := make(map[string]types.ScalarValue, len(winners))
	for name, m := range winners {
		if m.value.IsNull() {
			continue
		}
		out[name] = m.value
	}
	return out
}

func equalMarkSets(a, b map[string]types.ScalarValue) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || !bv.Equal(v) {
			return false
		}
	}
	return true
}

// Spans iterates a text object as runs of characters under a constant set
// of winning marks.
func (s *OpSet) Spans(obj types.ObjID, clock types.Clock) ([]Span, error) {
	tree, ok := s.trees[obj]
	if !ok {
		return nil, ErrNotAnObject
	}
	var spans []Span
	var run []byte
	walker := &markWalker{}
	cur := walker.winning()
	flush := func(next map[string]types.ScalarValue) {
		if len(run) > 0 {
			spans = append(spans, Span{Text: string(run), Marks: cur})
			run = nil
		}
		cur = next
	}
	tree.Walk(func(_ int, op *types.Op) bool {
		switch op.Action {
		case types.ActionMarkBegin:
			if markCovered(op, clock) {
				walker.push(op)
				if next := walker.winning(); !equalMarkSets(cur, next) {
					flush(next)
				}
			}
		case types.ActionMarkEnd:
			if markCovered(op, clock) && len(op.Pred) == 1 {
				walker.pop(op.Pred[0])
				if next := walker.winning(); !equalMarkSets(cur, next) {
					flush(next)
				}
			}
		default:
			if s.visibleAt(tree, op, clock) {
				run = append(run, charOf(op)...)
			}
		}
		return true
	})
	flush(nil)
	return spans, nil
}

func markCovered(op *types.Op, clock types.Clock) bool {
	return clock == nil || clock.Covers(op.ID)
}

// charOf renders one op's contribution to a text object. Non-string values
// (embedded objects, scalars) render as the object replacement character.
func charOf(op *types.Op) string {
	if op.Action == types.ActionPut && op.Value.Kind() == types.KindStr {
		return op.Value.Str()
	}
	return "￼"
}

// Text materializes a text object as a string.
func (s *OpSet) Text(obj types.ObjID, clock types.Clock) (string, error) {
	tree, ok := s.trees[obj]
	if !ok {
		return "", ErrNotAnObject
	}
	var out []byte
	tree.Walk(func(_ int, op *types.Op) bool {
		if !op.IsMark() && s.visibleAt(tree, op, clock) {
			out = append(out, charOf(op)...)
		}
		return true
	})
	return string(out), nil
}

// Marks returns the realized marks of a text object: for every covered
// point the winning (name, value), flattened into maximal runs.
func (s *OpSet) Marks(obj types.ObjID, clock types.Clock) ([]Mark, error) {
	spans, err := s.Spans(obj, clock)
	if err != nil {
		return nil, err
	}
	type open struct {
		value types.ScalarValue
		start int
	}
	opens := make(map[string]open)
	var out []Mark
	idx := 0
	for _, span := range spans {
		width := len([]rune(span.Text))
		for name, o := range opens {
			v, still := span.Marks[name]
			if still && v.Equal(o.value) {
				continue
			}
			out = append(out, Mark{Name: name, Value: o.value, Start: o.start, End: idx})
			delete(opens, name)
		}
		for name, v := range span.Marks {
			if _, ok := opens[name]; !ok {
				opens[name] = open{value: v, start: idx}
			}
		}
		idx += width
	}
	for name, o := range opens {
		out = append(out, Mark{Name: name, Value: o.value, Start: o.start, End: idx})
	}
	sortMarks(out)
	return out, nil
}

func sortMarks(marks []Mark) {
	for i := 1; i < len(marks); i++ {
		for j := i; j > 0; j-- {
			a, b := marks[j-1], marks[j]
			if a.Start < b.Start || (a.Start == b.Start && a.Name <= b.Name) {
				break
			}
			marks[j-1], marks[j] = b, a
		}
	}
}

// SeekMark realizes one mark from its begin op id: the covered visible
// range plus name and value.
func (s *OpSet) SeekMark(obj types.ObjID, begin types.OpID) (Mark, error) {
	tree, ok := s.trees[obj]
	if !ok {
		return Mark{}, ErrNotAnObject
	}
	_, beginOp := tree.FindByID(begin)
	if beginOp == nil || beginOp.Action != types.ActionMarkBegin {
		return Mark{}, ErrInvalidKey
	}
	mark := Mark{Name: beginOp.MarkName, Value: beginOp.Value, Start: -1, End: -1}
	idx := 0
	tree.Walk(func(_ int, op *types.Op) bool {
		if op.ID == begin {
			mark.Start = idx
		}
		if op.Action == types.ActionMarkEnd && len(op.Pred) == 1 && op.Pred[0] == begin {
			mark.End = idx
			return false
		}
		if !op.IsMark() && s.visibleAt(tree, op, nil) {
			idx += len([]rune(charOf(op)))
		}
		return true
	})
	if mark.Start < 0 {
		return Mark{}, ErrInvalidKey
	}
	if mark.End < 0 {
		mark.End = idx
	}
	return mark, nil
}
