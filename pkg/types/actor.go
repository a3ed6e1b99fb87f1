// pkg/types/actor.go
package types

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// ActorID identifies an independent writer. It is an opaque byte string
// (conventionally 16 random bytes) stored as a Go string so it can key maps.
// Actor ordering everywhere in the library is the lexicographic order of the
// raw bytes.
type ActorID string

// NewActorID returns a fresh random 16-byte actor id.
func NewActorID() ActorID {
	id := uuid.New()
	return ActorID(id[:])
}

// ActorIDFromBytes copies b into an ActorID.
func ActorIDFromBytes(b []byte) ActorID {
	return ActorID(b)
}

// Bytes returns the raw bytes of the actor id.
func (a ActorID) Bytes() []byte {
	return []byte(a)
}

// String renders the actor id as lowercase hex.
func (a ActorID) String() string {
	return hex.EncodeToString([]byte(a))
}

// Cmp orders actor ids by their raw bytes.
func (a ActorID) Cmp(other ActorID) int {
	switch {
	case a < other:
		return -1
	case a > other:
		return 1
	default:
		return 0
	}
}
