// pkg/change/graph.go
package change

import (
	"sort"

	"weft/pkg/types"
)

type graphNode struct {
	change *Change
	// succs are the derived forward edges: changes depending on this one.
	succs []Hash
}

// Graph is the causal DAG of changes, keyed by content hash. Hashes make
// cycles impossible; every dependency of a stored change is stored.
type Graph struct {
	nodes      map[Hash]*graphNode
	byActorSeq map[types.ActorID]map[uint64]Hash
	heads      map[Hash]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[Hash]*graphNode),
		byActorSeq: make(map[types.ActorID]map[uint64]Hash),
		heads:      make(map[Hash]struct{}),
	}
}

// Len returns the number of changes.
func (g *Graph) Len() int { return len(g.nodes) }

// Has reports whether hash is present.
func (g *Graph) Has(hash Hash) bool {
	_, ok := g.nodes[hash]
	return ok
}

// Get returns a change by hash, or nil.
func (g *Graph) Get(hash Hash) *Change {
	n, ok := g.nodes[hash]
	if !ok {
		return nil
	}
	return n.change
}

// GetByActorSeq returns the change committed by actor at seq, or nil.
func (g *Graph) GetByActorSeq(actor types.ActorID, seq uint64) *Change {
	h, ok := g.byActorSeq[actor][seq]
	if !ok {
		return nil
	}
	return g.nodes[h].change
}

// Add inserts a change. It is idempotent on exact duplicates, fails with
// DuplicateSeqError when another change holds the same (actor, seq), and
// fails with MissingDepError (leaving the graph unchanged) when
// dependencies are absent.
func (g *Graph) Add(c *Change) error {
	if g.Has(c.Hash) {
		return nil
	}
	if prev, ok := g.byActorSeq[c.Actor][c.Seq]; ok && prev != c.Hash {
		return &DuplicateSeqError{Actor: c.Actor, Seq: c.Seq}
	}
	var missing []Hash
	for _, dep := range c.Deps {
		if !g.Has(dep) {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &MissingDepError{Missing: missing}
	}
	g.nodes[c.Hash] = &graphNode{change: c}
	if g.byActorSeq[c.Actor] == nil {
		g.byActorSeq[c.Actor] = make(map[uint64]Hash)
	}
	g.byActorSeq[c.Actor][c.Seq] = c.Hash
	g.heads[c.Hash] = struct{}{}
	for _, dep := range c.Deps {
		g.nodes[dep].succs = append(g.nodes[dep].succs, c.Hash)
		delete(g.heads, dep)
	}
	return nil
}

// Heads returns the frontier — changes no other change depends on — sorted
// ascending.
func (g *Graph) Heads() []Hash {
	out := make([]Hash, 0, len(g.heads))
	for h := range g.heads {
		out = append(out, h)
	}
	SortHashes(out)
	return out
}

// reachable returns the causal closure of from (hashes absent from the
// graph are skipped).
func (g *Graph) reachable(from []Hash) map[Hash]struct{} {
	seen := make(map[Hash]struct{})
	stack := append([]Hash(nil), from...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[h]; ok {
			continue
		}
		n, ok := g.nodes[h]
		if !ok {
			continue
		}
		seen[h] = struct{}{}
		stack = append(stack, n.change.Deps...)
	}
	return seen
}

// ChangesAdded returns our changes outside the causal closure of
// theirHeads, in topological order.
func (g *Graph) ChangesAdded(theirHeads []Hash) []*Change {
	theirs := g.reachable(theirHeads)
	var out []*Change
	for _, c := range g.TopoOrder() {
		if _, ok := theirs[c.Hash]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// ChangesSince returns every change not in the closure of haveDeps, in
// topological order (the get_changes query).
func (g *Graph) ChangesSince(haveDeps []Hash) []*Change {
	return g.ChangesAdded(haveDeps)
}

// TopoOrder returns a deterministic linearization: ascending (startOp,
// hash) subject to the dependency partial order.
func (g *Graph) TopoOrder() []*Change {
	indeg := make(map[Hash]int, len(g.nodes))
	for h, n := range g.nodes {
		indeg[h] = len(n.change.Deps)
	}
	ready := make([]*Change, 0, len(g.nodes))
	for h, d := range indeg {
		if d == 0 {
			ready = append(ready, g.nodes[h].change)
		}
	}
	sortChanges(ready)
	out := make([]*Change, 0, len(g.nodes))
	for len(ready) > 0 {
		c := ready[0]
		ready = ready[1:]
		out = append(out, c)
		released := false
		for _, succ := range g.nodes[c.Hash].succs {
			indeg[succ]--
			if indeg[succ] == 0 {
				ready = append(ready, g.nodes[succ].change)
				released = true
			}
		}
		if released {
			sortChanges(ready)
		}
	}
	return out
}

func sortChanges(cs []*Change) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].StartOp != cs[j].StartOp {
			return cs[i].StartOp < cs[j].StartOp
		}
		return cs[i].Hash.Cmp(cs[j].Hash) < 0
	})
}

// Clock returns the per-actor counter cut identified by heads (all heads
// when nil).
func (g *Graph) Clock(heads []Hash) types.Clock {
	if heads == nil {
		heads = g.Heads()
	}
	clock := types.Clock{}
	for h := range g.reachable(heads) {
		c := g.nodes[h].change
		if clock[c.Actor] < c.MaxOp() {
			clock[c.Actor] = c.MaxOp()
		}
	}
	return clock
}

// LastLocalChange returns the most recent change by actor, or nil.
func (g *Graph) LastLocalChange(actor types.ActorID) *Change {
	seqs := g.byActorSeq[actor]
	var best *Change
	for _, h := range seqs {
		c := g.nodes[h].change
		if best == nil || c.Seq > best.Seq {
			best = c
		}
	}
	return best
}

// NextSeq returns the next sequence number for actor (P3: seqs form a
// contiguous 1..N prefix).
func (g *Graph) NextSeq(actor types.ActorID) uint64 {
	return uint64(len(g.byActorSeq[actor])) + 1
}

// Changes returns every change in topological order.
func (g *Graph) Changes() []*Change {
	return g.TopoOrder()
}
