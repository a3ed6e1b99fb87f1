// pkg/opset/query.go
package opset

import (
	"sort"

	"weft/pkg/types"
)

// seekOp computes, for a newly authored op, the position at which it joins
// the object's op order and the positions of the ops it overwrites (its pred
// set realized as indices).
func (t *opTree) seekOp(op *types.Op) (pos int, succ []int) {
	if !op.Key.Seq {
		return t.seekOpMap(op)
	}
	if op.Key.Elem.IsHead() {
		return t.seekOpHead(op)
	}
	return t.seekOpElem(op)
}

// seekOpMap binary-searches the start of the op's property, then scans the
// property's ops in ascending id order.
func (t *opTree) seekOpMap(op *types.Op) (int, []int) {
	start := sort.Search(t.Len(), func(i int) bool {
		other := t.Get(i)
		return other.Key.Str >= op.Key.Str
	})
	pos := start
	var succ []int
	for pos < t.Len() {
		other := t.Get(pos)
		if other.Key.Str != op.Key.Str {
			break
		}
		if other.ID.Cmp(op.ID) > 0 {
			break
		}
		if op.HasPred(other.ID) {
			succ = append(succ, pos)
		}
		pos++
	}
	return pos, succ
}

// seekOpHead handles ops keyed at the head of a sequence: inserts find their
// RGA slot among head siblings (descending id); non-insert head ops sort
// ascending by id before the first element.
func (t *opTree) seekOpHead(op *types.Op) (int, []int) {
	pos := 0
	var succ []int
	for pos < t.Len() {
		other := t.Get(pos)
		if op.Insert {
			if stopsInsertScan(op, other) {
				break
			}
		} else {
			if other.Insert || !other.Key.Elem.IsHead() || other.ID.Cmp(op.ID) > 0 {
				break
			}
			if op.HasPred(other.ID) {
				succ = append(succ, pos)
			}
		}
		pos++
	}
	return pos, succ
}

// seekOpElem locates the target element's insert op, then scans forward.
func (t *opTree) seekOpElem(op *types.Op) (int, []int) {
	found, anchor := t.FindByID(types.OpID(op.Key.Elem))
	if found < 0 {
		// the anchor element is unknown; sort the op at the end
		return t.Len(), nil
	}
	pos := found + 1
	var succ []int
	if !op.Insert && op.HasPred(anchor.ID) {
		// the element's own insert op is overwritten like any other value
		succ = append(succ, found)
	}
	for pos < t.Len() {
		other := t.Get(pos)
		if op.Insert {
			if stopsInsertScan(op, other) {
				break
			}
		} else {
			// non-insert ops stay within their element, ascending by id
			if other.Insert || other.Key.Elem != op.Key.Elem || other.ID.Cmp(op.ID) > 0 {
				break
			}
			if op.HasPred(other.ID) {
				succ = append(succ, pos)
			}
		}
		pos++
	}
	return pos, succ
}

// stopsInsertScan reports whether a new insert op must be placed before
// other. Concurrent siblings with greater ids (and, by the Lamport
// invariant, their whole subtrees) are skipped; the scan stops at the first
// insert with a lesser id. Sticky mark boundaries hold the position: an
// insert lands before a non-expanding MarkBegin (outside the mark) and
// before an expanding MarkEnd (inside it).
func stopsInsertScan(op *types.Op, other *types.Op) bool {
	if other.Insert {
		return other.ID.Cmp(op.ID) < 0
	}
	if other.Action == types.ActionMarkBegin && !other.Expand {
		return true
	}
	if other.Action == types.ActionMarkEnd && other.Expand {
		return true
	}
	return false
}

// nthQuery locates the n-th visible element of a sequence and collects its
// conflict set.
type nthQuery struct {
	target int
	seen   int
	pos    int

	lastSeen  types.Key
	hasLast   bool
	elem      types.ElemID
	elemKey   types.Key
	collected []*types.Op
	positions []int
	found     bool
}

func (q *nthQuery) QueryNode(n *opNode) queryResult {
	numVis := n.index.visibleLen()
	if q.hasLast && n.index.hasVisible(q.lastSeen) {
		numVis--
	}
	if q.seen+numVis > q.target {
		return qDescend
	}
	q.pos += n.length
	q.seen += numVis
	if last := n.lastOp(); last != nil {
		lastKey := indexKey(last)
		if n.index.hasVisible(lastKey) {
			q.lastSeen, q.hasLast = lastKey, true
		}
	}
	return qNext
}

func (q *nthQuery) QueryOp(op *types.Op) queryResult {
	if op.Insert && q.found {
		return qFinish
	}
	key := indexKey(op)
	if op.Visible() {
		if !q.hasLast || q.lastSeen != key {
			q.seen++
			q.lastSeen, q.hasLast = key, true
		}
		if q.seen == q.target+1 {
			if !q.found {
				q.found = true
				q.elemKey = key
				q.elem = key.Elem
			}
			if key == q.elemKey {
				q.collected = append(q.collected, op)
				q.positions = append(q.positions, q.pos)
			}
		}
	}
	q.pos++
	return qNext
}

func (n *opNode) lastOp() *types.Op {
	if n.isLeaf() {
		if len(n.ops) == 0 {
			return nil
		}
		return n.ops[len(n.ops)-1]
	}
	return n.children[len(n.children)-1].lastOp()
}

// nth returns the conflict set at the n-th visible element.
func (t *opTree) nth(target int) (types.ElemID, []*types.Op, bool) {
	q := &nthQuery{target: target}
	t.query(q)
	if !q.found {
		return types.ElemID{}, nil, false
	}
	return q.elem, q.collected, true
}

// insertNthQuery finds the anchor element for inserting at visible index
// target: the element after which the new op is keyed.
type insertNthQuery struct {
	target int
	seen   int
	n      int

	lastSeen types.Key
	hasLast  bool

	validKey types.Key
	hasKey   bool
	done     bool
}

func (q *insertNthQuery) QueryNode(n *opNode) queryResult {
	numVis := n.index.visibleLen()
	if q.hasLast && n.index.hasVisible(q.lastSeen) {
		numVis--
	}
	if q.seen+numVis >= q.target {
		return qDescend
	}
	q.n += n.length
	q.seen += numVis
	if last := n.lastOp(); last != nil {
		lastKey := indexKey(last)
		if n.index.hasVisible(lastKey) {
			q.lastSeen, q.hasLast = lastKey, true
		}
	}
	return qNext
}

func (q *insertNthQuery) QueryOp(op *types.Op) queryResult {
	if op.Insert {
		q.lastSeen, q.hasLast = types.Key{}, false
	}
	key := indexKey(op)
	if op.Visible() && (!q.hasLast || q.lastSeen != key) {
		if q.seen >= q.target {
			q.done = true
			return qFinish
		}
		q.seen++
		q.lastSeen, q.hasLast = key, true
		q.validKey, q.hasKey = key, true
	}
	q.n++
	return qNext
}

// insertNth returns the sequence key a new insert at visible index target
// must carry (the element after which it is anchored): head for index 0.
func (t *opTree) insertNth(target int) (types.Key, bool) {
	if target == 0 {
		return types.HeadKey, true
	}
	q := &insertNthQuery{target: target}
	t.query(q)
	if q.hasKey && q.seen >= target {
		return q.validKey, true
	}
	return types.Key{}, false
}
