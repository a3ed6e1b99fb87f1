// pkg/opset/check.go
package opset

import (
	"fmt"

	"weft/pkg/types"
)

// CheckInvariants scans the whole op set verifying the structural
// invariants: unique op ids, pred/succ symmetry, key grouping, and index
// aggregates matching a full recount. Used by tests after every scenario.
func (s *OpSet) CheckInvariants() error {
	seen := make(map[types.OpID]types.ObjID)
	for _, obj := range s.Objects() {
		tree := s.trees[obj]
		if err := s.checkTree(obj, tree, seen); err != nil {
			return err
		}
		if err := tree.root.checkIndexes(); err != nil {
			return fmt.Errorf("object %v: %w", obj, err)
		}
	}
	return nil
}

func (s *OpSet) checkTree(obj types.ObjID, tree *opTree, seen map[types.OpID]types.ObjID) error {
	var err error
	var prev *types.Op
	tree.Walk(func(pos int, op *types.Op) bool {
		if other, dup := seen[op.ID]; dup {
			err = fmt.Errorf("op id %v present in both %v and %v", op.ID, other, obj)
			return false
		}
		seen[op.ID] = obj
		if op.Obj != obj {
			err = fmt.Errorf("op %v filed under wrong object", op.ID)
			return false
		}
		// map ops sort by property, then ascending id within a property
		if prev != nil && !prev.Key.Seq && !op.Key.Seq {
			if prev.Key.Str > op.Key.Str {
				err = fmt.Errorf("map keys out of order at %v: %q after %q", op.ID, op.Key.Str, prev.Key.Str)
				return false
			}
			if prev.Key.Str == op.Key.Str && prev.ID.Cmp(op.ID) >= 0 {
				err = fmt.Errorf("ids out of order within key %q at %v", op.Key.Str, op.ID)
				return false
			}
		}
		// pred/succ symmetry within the object
		for _, pred := range op.Pred {
			_, target := tree.FindByID(pred)
			if target == nil {
				// the pred may name a delete-tombstoned op id that is
				// itself a delete; those never enter the tree
				continue
			}
			found := false
			for _, succ := range target.Succ {
				if succ == op.ID {
					found = true
					break
				}
			}
			if !found {
				err = fmt.Errorf("op %v names pred %v without matching succ", op.ID, pred)
				return false
			}
			if op.Action != types.ActionMarkEnd && indexKey(target) != indexKey(op) {
				err = fmt.Errorf("op %v pred %v at different key", op.ID, pred)
				return false
			}
		}
		prev = op
		return true
	})
	return err
}

// checkIndexes verifies every node's cached aggregates against a recount.
func (n *opNode) checkIndexes() error {
	length, visible, ops := 0, map[types.Key]int{}, map[types.OpID]struct{}{}
	if n.isLeaf() {
		length = len(n.ops)
		for _, op := range n.ops {
			ops[op.ID] = struct{}{}
			if op.Visible() {
				visible[indexKey(op)]++
			}
		}
	} else {
		for _, c := range n.children {
			if err := c.checkIndexes(); err != nil {
				return err
			}
			length += c.length
			for id := range c.index.ops {
				ops[id] = struct{}{}
			}
			for k, v := range c.index.visible {
				visible[k] += v
			}
		}
	}
	if n.length != length {
		return fmt.Errorf("node length %d, recount %d", n.length, length)
	}
	if len(n.index.ops) != len(ops) {
		return fmt.Errorf("node op index size %d, recount %d", len(n.index.ops), len(ops))
	}
	if len(n.index.visible) != len(visible) {
		return fmt.Errorf("node visible index size %d, recount %d", len(n.index.visible), len(visible))
	}
	for k, v := range visible {
		if n.index.visible[k] != v {
			return fmt.Errorf("visible count for %v: cached %d, recount %d", k, n.index.visible[k], v)
		}
	}
	return nil
}
