package reconcile

import (
	"fmt"
	"reflect"

	"github.com/go-reflow/reflow/pkg/errors"
)

// Differ computes the edit script between two structural fragments,
// staging commands into a buffer.
//
// Matching is by (node type, explicit key), falling back to positional
// index for unkeyed siblings. Matched nodes are updated in place and keep
// their handles; unmatched previous nodes are removed, unmatched new nodes
// created. Moves are emitted only for keyed reordering, minimized via a
// longest-increasing-subsequence over the matched old positions.
type Differ struct {
	buf *Buffer
}

// NewDiffer creates a differ staging into buf.
func NewDiffer(buf *Buffer) *Differ {
	return &Differ{buf: buf}
}

// DiffRoot reconciles a fragment occupying one child slot of parent
// (nil parent = target root). Either side may be nil: a unit that rendered
// nothing. Returns the node now live at the slot.
func (d *Differ) DiffRoot(parent *SNode, index int, old, next *SNode) (*SNode, error) {
	if err := validateKeys(next); err != nil {
		return nil, err
	}
	switch {
	case old == nil && next == nil:
		return nil, nil
	case old == nil:
		d.buf.CreateSubtree(next)
		d.buf.InsertChild(parent, next, index)
		return next, nil
	case next == nil:
		d.buf.RemoveChild(parent, old)
		return nil, nil
	case sameIdentity(old, next):
		if err := d.patch(old, next); err != nil {
			return nil, err
		}
		return next, nil
	default:
		if live, ok, err := d.rewrap(parent, index, old, next); ok {
			return live, err
		}
		d.buf.RemoveChild(parent, old)
		d.buf.CreateSubtree(next)
		d.buf.InsertChild(parent, next, index)
		return next, nil
	}
}

// rewrap handles the wrap/unwrap pattern at a fragment slot: the
// replacement either hoists a matching direct child of the old root into
// the slot, or nests the old root one level down inside a fresh wrapper.
// The matched subtree keeps its handles; only the wrapper is created or
// removed.
func (d *Differ) rewrap(parent *SNode, index int, old, next *SNode) (*SNode, bool, error) {
	for _, oc := range old.Children {
		if sameIdentity(oc, next) {
			if err := d.patch(oc, next); err != nil {
				return nil, true, err
			}
			// Inserting detaches the hoisted child from old first.
			d.buf.InsertChild(parent, next, index)
			d.buf.removeReleasingExcept(parent, old, oc)
			return next, true, nil
		}
	}
	for j, nc := range next.Children {
		if sameIdentity(nc, old) {
			d.buf.createWrapper(next, j)
			if err := d.patch(old, nc); err != nil {
				return nil, true, err
			}
			// Adopting detaches old from its current slot, so the wrapper
			// insert below lands at the vacated index.
			d.buf.InsertChild(next, nc, j)
			d.buf.InsertChild(parent, next, index)
			return next, true, nil
		}
	}
	return nil, false, nil
}

// sameIdentity reports whether two nodes are the same node for diffing
// purposes: same type and equal explicit key (both-nil keys match; the
// positional rule for unkeyed siblings is applied by the caller).
func sameIdentity(a, b *SNode) bool {
	return a.Type == b.Type && reflect.DeepEqual(a.Key, b.Key)
}

// patch updates a matched node in place. next inherits old's handle.
func (d *Differ) patch(old, next *SNode) error {
	next.handle = old.handle
	if next.Type == TextType {
		if old.Text != next.Text {
			d.buf.ops = append(d.buf.ops, op{code: opSetText, node: next.handle, text: next.Text})
		}
		return nil
	}
	for k, v := range next.Attrs {
		if ov, ok := old.Attrs[k]; !ok || !reflect.DeepEqual(ov, v) {
			d.buf.ops = append(d.buf.ops, op{code: opSetAttr, node: next.handle, key: k, value: v})
		}
	}
	for k := range old.Attrs {
		if _, ok := next.Attrs[k]; !ok {
			d.buf.ops = append(d.buf.ops, op{code: opSetAttr, node: next.handle, key: k, value: nil})
		}
	}
	return d.diffChildren(next, old.Children, next.Children)
}

// diffChildren reconciles the ordered child lists of a matched parent.
// Key uniqueness was already validated for the whole fragment at DiffRoot.
func (d *Differ) diffChildren(parent *SNode, old, next []*SNode) error {
	oldKeyed := make(map[any]*SNode)
	for _, oc := range old {
		if oc.Key != nil {
			oldKeyed[oc.Key] = oc
		}
	}

	// Matching pass: keyed nodes match by key, unkeyed by position.
	matched := make(map[*SNode]*SNode, len(next)) // new -> old
	claimed := make(map[*SNode]bool, len(old))
	for i, nc := range next {
		var oc *SNode
		if nc.Key != nil {
			oc = oldKeyed[nc.Key]
		} else if i < len(old) && old[i].Key == nil {
			oc = old[i]
		}
		if oc != nil && oc.Type == nc.Type && !claimed[oc] {
			matched[nc] = oc
			claimed[oc] = true
		}
	}

	// Removals first: prefer create+remove accounting that keyed matching
	// has already minimized, and free up positions for the placement pass.
	cur := make([]int64, 0, len(old))
	for _, oc := range old {
		if !claimed[oc] {
			d.buf.RemoveChild(parent, oc)
			continue
		}
		cur = append(cur, oc.handle)
	}

	// Patch matched nodes (handles transfer to the new nodes here).
	for _, nc := range next {
		if oc := matched[nc]; oc != nil {
			if err := d.patch(oc, nc); err != nil {
				return err
			}
		}
	}

	// Placement: stable nodes (a longest increasing subsequence of the
	// surviving old order) keep their positions; everything else is
	// inserted or moved to its index against the simulated child list.
	stay := stableSet(next, matched, cur)
	for i, nc := range next {
		if matched[nc] == nil {
			d.buf.CreateSubtree(nc)
			d.buf.InsertChild(parent, nc, i)
			cur = insertAt(cur, nc.handle, i)
			continue
		}
		if stay[nc.handle] {
			continue
		}
		j := indexOf(cur, nc.handle)
		if j != i {
			d.buf.MoveChild(parent, nc, i)
			cur = moveTo(cur, j, i)
		}
	}
	// Settle any stable nodes displaced by ambiguous orderings.
	for i, nc := range next {
		if indexOf(cur, nc.handle) != i {
			j := indexOf(cur, nc.handle)
			d.buf.MoveChild(parent, nc, i)
			cur = moveTo(cur, j, i)
		}
	}
	return nil
}

// validateKeys walks a fragment and fails fast on duplicate keyed
// siblings at any level, before a single command is staged. Freshly
// created subtrees go through here too, not just diffed levels.
func validateKeys(n *SNode) error {
	if n == nil {
		return nil
	}
	if err := checkDuplicateKeys(n.Children); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := validateKeys(c); err != nil {
			return err
		}
	}
	return nil
}

// checkDuplicateKeys fails fast when two siblings claim the same key.
func checkDuplicateKeys(children []*SNode) error {
	var seen map[any]bool
	for _, c := range children {
		if c.Key == nil {
			continue
		}
		if !keyComparable(c.Key) {
			return &errors.ReflowError{
				Op:   "reconcile.Differ",
				Kind: errors.KindDiff,
				Err:  fmt.Errorf("key of type %T is not comparable", c.Key),
			}
		}
		if seen == nil {
			seen = make(map[any]bool)
		}
		if seen[c.Key] {
			return &errors.DuplicateKeyError{NodeType: c.Type, Key: c.Key}
		}
		seen[c.Key] = true
	}
	return nil
}

func keyComparable(k any) bool {
	t := reflect.TypeOf(k)
	return t != nil && t.Comparable()
}

// stableSet returns the handles of matched nodes forming a longest
// increasing subsequence of surviving old positions, i.e. the nodes that
// stay put so total moves are minimized.
func stableSet(next []*SNode, matched map[*SNode]*SNode, cur []int64) map[int64]bool {
	pos := make(map[int64]int, len(cur))
	for i, h := range cur {
		pos[h] = i
	}
	var handles []int64
	var seq []int
	for _, nc := range next {
		if matched[nc] == nil {
			continue
		}
		handles = append(handles, nc.handle)
		seq = append(seq, pos[nc.handle])
	}
	stay := make(map[int64]bool, len(seq))
	for _, i := range longestIncreasing(seq) {
		stay[handles[i]] = true
	}
	return stay
}

// longestIncreasing returns the indices of one longest strictly increasing
// subsequence of seq.
func longestIncreasing(seq []int) []int {
	if len(seq) == 0 {
		return nil
	}
	tails := make([]int, 0, len(seq)) // indices into seq
	prev := make([]int, len(seq))
	for i, v := range seq {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if seq[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[i] = tails[lo-1]
		} else {
			prev[i] = -1
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}
	out := make([]int, len(tails))
	k := tails[len(tails)-1]
	for i := len(tails) - 1; i >= 0; i-- {
		out[i] = k
		k = prev[k]
	}
	return out
}

func indexOf(cur []int64, h int64) int {
	for i, v := range cur {
		if v == h {
			return i
		}
	}
	return -1
}

func insertAt(cur []int64, h int64, i int) []int64 {
	if i >= len(cur) {
		return append(cur, h)
	}
	cur = append(cur, 0)
	copy(cur[i+1:], cur[i:])
	cur[i] = h
	return cur
}

func moveTo(cur []int64, from, to int) []int64 {
	h := cur[from]
	cur = append(cur[:from], cur[from+1:]...)
	return insertAt(cur, h, to)
}
