// pkg/types/opid.go
package types

import "fmt"

// OpID is the identity of an operation: the Lamport counter within the
// producing actor's history, plus the actor itself. The zero OpID (counter 0)
// is the reserved root / head sentinel.
//
// OpIDs are ordered by counter first, then by the raw bytes of the actor id.
// Interned actor indices are never used for comparison.
type OpID struct {
	Counter uint64
	Actor   ActorID
}

// IsZero reports whether id is the root / head sentinel.
func (id OpID) IsZero() bool {
	return id.Counter == 0
}

// Cmp returns -1, 0 or 1 ordering two op ids (Lamport order, actor-byte
// tie break).
func (id OpID) Cmp(other OpID) int {
	switch {
	case id.Counter < other.Counter:
		return -1
	case id.Counter > other.Counter:
		return 1
	default:
		return id.Actor.Cmp(other.Actor)
	}
}

func (id OpID) String() string {
	if id.IsZero() {
		return "_root"
	}
	return fmt.Sprintf("%d@%s", id.Counter, id.Actor)
}

// ObjID identifies an object: the zero value is the document root map,
// anything else is the id of the Make* op that created the object.
type ObjID OpID

// RootObj is the singleton document root.
var RootObj = ObjID{}

// IsRoot reports whether o is the document root.
func (o ObjID) IsRoot() bool {
	return OpID(o).IsZero()
}

// Cmp orders object ids; the root sorts before everything.
func (o ObjID) Cmp(other ObjID) int {
	return OpID(o).Cmp(OpID(other))
}

func (o ObjID) String() string {
	return OpID(o).String()
}

// ElemID identifies a list element by the op that inserted it. The zero
// value is Head, the position before the first element.
type ElemID OpID

// HeadElem is the position before the first list element.
var HeadElem = ElemID{}

// IsHead reports whether e is the head sentinel.
func (e ElemID) IsHead() bool {
	return OpID(e).IsZero()
}

// Cmp orders element ids.
func (e ElemID) Cmp(other ElemID) int {
	return OpID(e).Cmp(OpID(other))
}

func (e ElemID) String() string {
	if e.IsHead() {
		return "_head"
	}
	return OpID(e).String()
}

// Key locates an op within its object: a map property name, or the list
// element after which the op applies.
type Key struct {
	// Seq is true for sequence keys; Elem is then meaningful and Str is "".
	Seq  bool
	Str  string
	Elem ElemID
}

// MapKey builds a map-property key.
func MapKey(prop string) Key {
	return Key{Str: prop}
}

// SeqKey builds a sequence key.
func SeqKey(elem ElemID) Key {
	return Key{Seq: true, Elem: elem}
}

// HeadKey is the sequence key naming the head position.
var HeadKey = Key{Seq: true}

func (k Key) String() string {
	if k.Seq {
		return k.Elem.String()
	}
	return fmt.Sprintf("%q", k.Str)
}

// Equal reports key identity.
func (k Key) Equal(other Key) bool {
	return k == other
}
