// pkg/change/queue.go
package change

import "weft/pkg/types"

// ReadyQueue buffers changes whose dependencies have not arrived yet,
// releasing them in canonical (startOp, hash) order once their deps are
// satisfied.
type ReadyQueue struct {
	changes map[Hash]*Change
	order   []*Change // sorted by (startOp, hash)
}

// NewReadyQueue returns an empty queue.
func NewReadyQueue() *ReadyQueue {
	return &ReadyQueue{changes: make(map[Hash]*Change)}
}

// Len returns the number of buffered changes.
func (q *ReadyQueue) Len() int { return len(q.changes) }

// Push buffers a change; duplicates are dropped.
func (q *ReadyQueue) Push(c *Change) {
	if _, ok := q.changes[c.Hash]; ok {
		return
	}
	q.changes[c.Hash] = c
	i := 0
	for i < len(q.order) {
		o := q.order[i]
		if o.StartOp > c.StartOp || (o.StartOp == c.StartOp && o.Hash.Cmp(c.Hash) > 0) {
			break
		}
		i++
	}
	q.order = append(q.order, nil)
	copy(q.order[i+1:], q.order[i:])
	q.order[i] = c
}

// PopReady removes and returns the first buffered change whose deps all
// satisfy has, or nil when none is releasable.
func (q *ReadyQueue) PopReady(has func(Hash) bool) *Change {
	for i, c := range q.order {
		ok := true
		for _, dep := range c.Deps {
			if !has(dep) {
				ok = false
				break
			}
		}
		if ok {
			q.order = append(q.order[:i], q.order[i+1:]...)
			delete(q.changes, c.Hash)
			return c
		}
	}
	return nil
}

// MissingDeps returns every dependency named by buffered changes that
// neither has nor another buffered change satisfies.
func (q *ReadyQueue) MissingDeps(has func(Hash) bool) []Hash {
	seen := make(map[Hash]struct{})
	var out []Hash
	for _, c := range q.order {
		for _, dep := range c.Deps {
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			if _, buffered := q.changes[dep]; buffered || has(dep) {
				continue
			}
			out = append(out, dep)
		}
	}
	SortHashes(out)
	return out
}

// Clock folds the buffered changes into a clock (used for diagnostics).
func (q *ReadyQueue) Clock() types.Clock {
	clock := types.Clock{}
	for _, c := range q.order {
		if clock[c.Actor] < c.MaxOp() {
			clock[c.Actor] = c.MaxOp()
		}
	}
	return clock
}
