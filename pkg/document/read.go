// pkg/document/read.go
package document

import (
	"weft/pkg/change"
	"weft/pkg/opset"
	"weft/pkg/types"
)

// Get returns the winning value at a map key, or ok=false when the key is
// absent. heads selects a historical view (nil for the present).
func (d *Document) Get(obj types.ObjID, key string, heads []change.Hash) (opset.Value, bool, error) {
	vals, err := d.GetAll(obj, key, heads)
	if err != nil || len(vals) == 0 {
		return opset.Value{}, false, err
	}
	return vals[len(vals)-1], true, nil
}

// GetAll returns the conflict set at a map key, winner last.
func (d *Document) GetAll(obj types.ObjID, key string, heads []change.Hash) ([]opset.Value, error) {
	clock, err := d.clockFor(heads)
	if err != nil {
		return nil, err
	}
	return d.set.GetAll(obj, key, clock)
}

// GetAt returns the winning value at a list index.
func (d *Document) GetAt(obj types.ObjID, index int, heads []change.Hash) (opset.Value, error) {
	vals, err := d.GetAllAt(obj, index, heads)
	if err != nil {
		return opset.Value{}, err
	}
	return vals[len(vals)-1], nil
}

// GetAllAt returns the conflict set at a list index, winner last.
func (d *Document) GetAllAt(obj types.ObjID, index int, heads []change.Hash) ([]opset.Value, error) {
	clock, err := d.clockFor(heads)
	if err != nil {
		return nil, err
	}
	vals, _, err := d.set.GetAllAt(obj, index, clock)
	return vals, err
}

// MapRange iterates the visible entries of a map object in key order.
func (d *Document) MapRange(obj types.ObjID, heads []change.Hash) ([]opset.MapEntry, error) {
	clock, err := d.clockFor(heads)
	if err != nil {
		return nil, err
	}
	return d.set.MapRange(obj, clock)
}

// ListRange iterates the visible elements of a sequence object.
func (d *Document) ListRange(obj types.ObjID, heads []change.Hash) ([]opset.ListEntry, error) {
	clock, err := d.clockFor(heads)
	if err != nil {
		return nil, err
	}
	return d.set.ListRange(obj, clock)
}

// MapRangeKeys restricts MapRange to keys in [from, to) (an empty to
// means unbounded).
func (d *Document) MapRangeKeys(obj types.ObjID, from, to string, heads []change.Hash) ([]opset.MapEntry, error) {
	entries, err := d.MapRange(obj, heads)
	if err != nil {
		return nil, err
	}
	out := entries[:0:0]
	for _, e := range entries {
		if e.Key < from || (to != "" && e.Key >= to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ListRangeBounds restricts ListRange to indices in [from, to) (to < 0
// means unbounded).
func (d *Document) ListRangeBounds(obj types.ObjID, from, to int, heads []change.Hash) ([]opset.ListEntry, error) {
	entries, err := d.ListRange(obj, heads)
	if err != nil {
		return nil, err
	}
	out := entries[:0:0]
	for _, e := range entries {
		if e.Index < from || (to >= 0 && e.Index >= to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Length returns the number of visible elements (sequences) or entries
// (maps).
func (d *Document) Length(obj types.ObjID, heads []change.Hash) (int, error) {
	clock, err := d.clockFor(heads)
	if err != nil {
		return 0, err
	}
	return d.set.VisibleLen(obj, clock)
}

// Text materializes a text object.
func (d *Document) Text(obj types.ObjID, heads []change.Hash) (string, error) {
	clock, err := d.clockFor(heads)
	if err != nil {
		return "", err
	}
	return d.set.Text(obj, clock)
}

// Spans iterates a text object as runs of equally-marked text.
func (d *Document) Spans(obj types.ObjID, heads []change.Hash) ([]opset.Span, error) {
	clock, err := d.clockFor(heads)
	if err != nil {
		return nil, err
	}
	return d.set.Spans(obj, clock)
}

// Marks returns the realized marks of a text object.
func (d *Document) Marks(obj types.ObjID, heads []change.Hash) ([]opset.Mark, error) {
	clock, err := d.clockFor(heads)
	if err != nil {
		return nil, err
	}
	return d.set.Marks(obj, clock)
}

// ObjKind reports the kind of an object.
func (d *Document) ObjKind(obj types.ObjID) (types.ObjKind, error) {
	return d.set.ObjKind(obj)
}

// PathElem is one step from the root to an object.
type PathElem struct {
	Obj types.ObjID
	Key types.Key
}

// Parents reconstructs the path from obj up to the root by following the
// ops that created each container, outermost step first.
func (d *Document) Parents(obj types.ObjID) ([]PathElem, error) {
	var path []PathElem
	for !obj.IsRoot() {
		makeOp, err := d.set.Parent(obj)
		if err != nil {
			return nil, err
		}
		path = append(path, PathElem{Obj: makeOp.Obj, Key: makeOp.Key})
		obj = makeOp.Obj
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Cursor is a stable reference to a list position that survives edits: it
// names the element, not the index.
type Cursor struct {
	Obj  types.ObjID
	Elem types.ElemID
}

// CursorAt returns a cursor for the element at index.
func (d *Document) CursorAt(obj types.ObjID, index int) (Cursor, error) {
	_, elem, err := d.set.GetAllAt(obj, index, nil)
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{Obj: obj, Elem: elem}, nil
}

// CursorPosition resolves a cursor back to the current (or historical)
// index of its element; ok is false when the element is no longer visible.
func (d *Document) CursorPosition(c Cursor, heads []change.Hash) (int, bool, error) {
	entries, err := d.ListRange(c.Obj, heads)
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		if e.Elem == c.Elem {
			return e.Index, true, nil
		}
	}
	return 0, false, nil
}

// ToJSON materializes the whole document (or a subtree) as Go values:
// map[string]any, []any, and scalars. Counters and timestamps flatten to
// int64, text objects to strings.
func (d *Document) ToJSON(obj types.ObjID, heads []change.Hash) (any, error) {
	kind, err := d.set.ObjKind(obj)
	if err != nil {
		return nil, err
	}
	switch kind {
	case types.ObjMap, types.ObjTable:
		entries, err := d.MapRange(obj, heads)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(entries))
		for _, e := range entries {
			v, err := d.valueToJSON(e.Value, heads)
			if err != nil {
				return nil, err
			}
			out[e.Key] = v
		}
		return out, nil
	case types.ObjText:
		return d.Text(obj, heads)
	default:
		entries, err := d.ListRange(obj, heads)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(entries))
		for _, e := range entries {
			v, err := d.valueToJSON(e.Value, heads)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}

func (d *Document) valueToJSON(v opset.Value, heads []change.Hash) (any, error) {
	if v.IsObj {
		return d.ToJSON(v.Obj, heads)
	}
	s := v.Scalar
	switch s.Kind() {
	case types.KindNull:
		return nil, nil
	case types.KindBool:
		return s.Bool(), nil
	case types.KindUint:
		return s.Uint(), nil
	case types.KindInt, types.KindCounter, types.KindTimestamp:
		return s.Int(), nil
	case types.KindF64:
		return s.F64(), nil
	case types.KindStr:
		return s.Str(), nil
	case types.KindBytes, types.KindUnknown:
		return s.Bytes(), nil
	}
	return nil, nil
}
