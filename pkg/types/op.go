// pkg/types/op.go
package types

// Action is the wire code of an op's effect. The numeric values are part of
// the storage format ("action" column) and must not be reordered.
type Action uint64

const (
	ActionMakeMap   Action = 0
	ActionMakeList  Action = 1
	ActionMakeText  Action = 2
	ActionMakeTable Action = 3
	ActionPut       Action = 4
	ActionDelete    Action = 5
	ActionIncrement Action = 6
	ActionMarkBegin Action = 7
	ActionMarkEnd   Action = 8

	actionMax = ActionMarkEnd
)

// ValidAction reports whether code is a known action.
func ValidAction(code uint64) bool {
	return code <= uint64(actionMax)
}

// IsMake reports whether a creates an object.
func (a Action) IsMake() bool {
	return a <= ActionMakeTable
}

// ObjKind returns the object kind created by a Make* action.
func (a Action) ObjKind() ObjKind {
	switch a {
	case ActionMakeMap:
		return ObjMap
	case ActionMakeList:
		return ObjList
	case ActionMakeText:
		return ObjText
	default:
		return ObjTable
	}
}

// MakeAction returns the action creating an object of kind k.
func MakeAction(k ObjKind) Action {
	switch k {
	case ObjMap:
		return ActionMakeMap
	case ObjList:
		return ActionMakeList
	case ObjText:
		return ActionMakeText
	default:
		return ActionMakeTable
	}
}

// MarkData names a rich-text mark and the value it applies.
type MarkData struct {
	Name  string
	Value ScalarValue
}

// Op is the canonical operation record. Succ is an index maintained by the
// op-set (the inverse of Pred), never carried on the wire in change chunks.
type Op struct {
	ID     OpID
	Action Action
	Obj    ObjID
	Key    Key
	Insert bool

	// Value holds the payload of Put (the written scalar), Increment (an
	// Int delta), and MarkBegin (the mark value).
	Value ScalarValue
	// MarkName is set on MarkBegin ops.
	MarkName string
	// Expand is the sticky side flag of MarkBegin / MarkEnd ops.
	Expand bool

	Pred []OpID
	Succ []OpID

	// Incs and IncSum track Increment successors of a counter Put; they are
	// op-set bookkeeping, not wire state.
	Incs   int
	IncSum int64
}

// ElemID returns the element identity of the op within a sequence: inserts
// are identified by their own id, overwrites by the element they target.
func (o *Op) ElemID() ElemID {
	if o.Insert {
		return ElemID(o.ID)
	}
	return o.Key.Elem
}

// ElemKey returns the sequence key for the element this op belongs to.
func (o *Op) ElemKey() Key {
	return SeqKey(o.ElemID())
}

// IsMark reports whether the op is a mark boundary.
func (o *Op) IsMark() bool {
	return o.Action == ActionMarkBegin || o.Action == ActionMarkEnd
}

// IsCounter reports whether the op writes a counter value.
func (o *Op) IsCounter() bool {
	return o.Action == ActionPut && o.Value.Kind() == KindCounter
}

// Visible reports whether the op currently contributes to the materialized
// value: no successors, or a counter whose successors are all increments.
// Delete, increment and mark boundary ops are never visible themselves.
func (o *Op) Visible() bool {
	switch o.Action {
	case ActionDelete, ActionMarkBegin, ActionMarkEnd, ActionIncrement:
		return false
	}
	if len(o.Succ) == 0 {
		return true
	}
	return o.IsCounter() && o.Incs == len(o.Succ)
}

// CounterValue materializes a counter Put with its live increments applied.
func (o *Op) CounterValue() int64 {
	return o.Value.Int() + o.IncSum
}

// Width returns how many characters the op contributes to a text object.
func (o *Op) Width() int {
	if o.Action == ActionPut && o.Value.Kind() == KindStr {
		n := len([]rune(o.Value.Str()))
		if n > 0 {
			return n
		}
	}
	return 1
}

// AddSucc records that other overwrites o, keeping Succ sorted.
func (o *Op) AddSucc(id OpID) {
	i := 0
	for i < len(o.Succ) && o.Succ[i].Cmp(id) < 0 {
		i++
	}
	if i < len(o.Succ) && o.Succ[i] == id {
		return
	}
	o.Succ = append(o.Succ, OpID{})
	copy(o.Succ[i+1:], o.Succ[i:])
	o.Succ[i] = id
}

// HasPred reports whether id is among o's predecessors.
func (o *Op) HasPred(id OpID) bool {
	for _, p := range o.Pred {
		if p == id {
			return true
		}
	}
	return false
}
