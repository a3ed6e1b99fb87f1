// pkg/change/change.go
// Package change models the causal history of a document: changes (atomic
// bundles of ops committed by one actor), their content-addressed hashes,
// the dependency DAG, and the ready queue for changes that arrive before
// their dependencies.
package change

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"weft/pkg/types"
)

// Hash is the content address of a change: the sha256 of its encoded chunk.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Cmp orders hashes bytewise.
func (h Hash) Cmp(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// SortHashes sorts ascending in place.
func SortHashes(hashes []Hash) {
	for i := 1; i < len(hashes); i++ {
		for j := i; j > 0 && hashes[j-1].Cmp(hashes[j]) > 0; j-- {
			hashes[j-1], hashes[j] = hashes[j], hashes[j-1]
		}
	}
}

// Change is one committed transaction: a contiguous run of ops by a single
// actor, its causal dependencies, and its metadata. Hash and Raw are filled
// in by the codec when the change is encoded or decoded.
type Change struct {
	Actor     types.ActorID
	Seq       uint64
	StartOp   uint64
	Timestamp int64
	Message   string
	Deps      []Hash // sorted ascending
	Extra     []byte
	Ops       []*types.Op

	Hash Hash
	Raw  []byte
}

// MaxOp returns the counter of the last op in the change (StartOp - 1 for
// an empty change).
func (c *Change) MaxOp() uint64 {
	return c.StartOp + uint64(len(c.Ops)) - 1
}

// Clock returns the per-actor counter cut this single change advances to.
func (c *Change) Clock() types.Clock {
	return types.Clock{c.Actor: c.MaxOp()}
}

// DuplicateSeqError reports a second, different change claiming an
// (actor, seq) slot.
type DuplicateSeqError struct {
	Actor types.ActorID
	Seq   uint64
}

func (e *DuplicateSeqError) Error() string {
	return fmt.Sprintf("duplicate change %d by actor %s", e.Seq, e.Actor)
}

// MissingDepError reports dependencies absent from the graph.
type MissingDepError struct {
	Missing []Hash
}

func (e *MissingDepError) Error() string {
	return fmt.Sprintf("missing %d dependencies (first %s)", len(e.Missing), e.Missing[0])
}
