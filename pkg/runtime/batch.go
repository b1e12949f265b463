package runtime

import (
	"fmt"
	"reflect"
	"sort"

	rerrors "github.com/go-reflow/reflow/pkg/errors"
	"github.com/go-reflow/reflow/pkg/lifecycle"
	"github.com/go-reflow/reflow/pkg/reconcile"
	"github.com/go-reflow/reflow/pkg/state"
	"github.com/go-reflow/reflow/pkg/track"
)

// processBatch applies one write and drives the resulting reader
// re-evaluations to completion. A store error means nothing was mutated
// and the runtime stays healthy; a failure after mutation poisons it.
func (rt *Runtime) processBatch(w writeOp) error {
	if rt.skipEqual && w.kind == writeSet {
		if cur, err := rt.store.Peek(w.path); err == nil && reflect.DeepEqual(cur, w.value) {
			return nil
		}
	}
	rt.stamp++
	rt.stats.Batches++

	var changes *state.ChangeSet
	var err error
	switch w.kind {
	case writeSet:
		changes, err = rt.store.Write(w.path, w.value)
	case writeRemove:
		changes, err = rt.store.Remove(w.path)
	case writeAppend:
		changes, err = rt.store.Append(w.path, w.value)
	}
	if err != nil {
		return err
	}

	if err := rt.react(changes); err != nil {
		rt.failure = err
		return err
	}
	return nil
}

// react notifies the index and re-evaluates the affected readers:
// value-subscriptions first in creation order, then units ancestors-first.
// Staged commands reach the target only if the whole batch succeeds.
func (rt *Runtime) react(changes *state.ChangeSet) error {
	affected := rt.index.Notify(changes)
	if len(affected) == 0 {
		return nil
	}

	var subs []*lifecycle.Subscription
	var units []*lifecycle.Instance
	unitSet := make(map[*lifecycle.Instance]bool)
	for _, r := range affected {
		switch t := r.(type) {
		case *lifecycle.Subscription:
			if !t.Owner().Mounted() {
				panic("reflow: dependency index holds a subscription of unmounted unit " + t.Owner().UnitType())
			}
			subs = append(subs, t)
		case *lifecycle.Instance:
			if !t.Mounted() {
				panic("reflow: dependency index holds unmounted unit " + t.UnitType())
			}
			units = append(units, t)
			unitSet[t] = true
		default:
			panic(fmt.Sprintf("reflow: unknown reader %T in dependency index", r))
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Seq() < subs[j].Seq() })

	buf := rt.emitter.Begin()
	differ := reconcile.NewDiffer(buf)

	// Re-read every subscription before staging anything: a stale path
	// escalates its owner into the unit pass, which must also supersede
	// sibling patches inside that owner's subtree.
	type pendingPatch struct {
		sub   *lifecycle.Subscription
		value any
	}
	var patches []pendingPatch
	for _, sub := range subs {
		if rt.superseded(sub, unitSet) {
			rt.stats.SupersededPatches++
			continue
		}
		v, err := rt.readSub(sub)
		if err != nil {
			// The bound path went stale under the subscription. Its slot
			// no longer describes anything real, so the owning unit must
			// re-render wholesale.
			owner := sub.Owner()
			if !unitSet[owner] {
				units = append(units, owner)
				unitSet[owner] = true
			}
			continue
		}
		patches = append(patches, pendingPatch{sub, v})
	}
	for _, p := range patches {
		if rt.superseded(p.sub, unitSet) {
			rt.stats.SupersededPatches++
			continue
		}
		rt.stagePatch(buf, p.sub, p.value)
		rt.stats.ValuePatches++
	}

	sort.Slice(units, func(i, j int) bool {
		if units[i].Depth() != units[j].Depth() {
			return units[i].Depth() < units[j].Depth()
		}
		return units[i].Seq() < units[j].Seq()
	})

	for _, inst := range units {
		if !inst.Mounted() || inst.RenderedIn(rt.stamp) {
			continue
		}
		if err := rt.renderUnit(differ, buf, inst); err != nil {
			return err
		}
	}

	rt.stats.Commands += uint64(buf.Len())
	rt.emitter.Flush(buf)
	return nil
}

// superseded reports whether a value patch is covered by a structural
// re-evaluation of the owning unit or one of its ancestors in this batch.
// The re-expansion reads current values, so the patch replays implicitly.
func (rt *Runtime) superseded(sub *lifecycle.Subscription, unitSet map[*lifecycle.Instance]bool) bool {
	for inst := sub.Owner(); inst != nil; inst = inst.Parent() {
		if unitSet[inst] {
			return true
		}
	}
	return false
}

// readSub re-reads a subscription's path under tracking and commits the
// fresh record. A stale path surfaces as the returned error.
func (rt *Runtime) readSub(sub *lifecycle.Subscription) (any, error) {
	rec := track.NewAccessRecord()
	var v any
	err := rt.store.Track(rec, func() error {
		var readErr error
		v, readErr = rt.store.Read(sub.Path())
		return readErr
	})
	if err != nil {
		return nil, err
	}
	rt.index.Commit(sub, rec)
	return v, nil
}

// stagePatch stages a subscription's slot update. The command is staged
// even when the value is unchanged: notification does not depend on value
// equality.
func (rt *Runtime) stagePatch(buf *reconcile.Buffer, sub *lifecycle.Subscription, v any) {
	slot := sub.Slot()
	if slot.Attr == "" {
		buf.SetText(slot.Node, lifecycle.FormatText(v))
	} else {
		buf.SetAttribute(slot.Node, slot.Attr, v)
	}
}

// renderUnit re-evaluates one affected unit and reconciles its fragment
// in place. Units whose previous render produced no slot of their own
// (nil root, or a root shared with the parent through a pass-through
// unit) escalate to the nearest ancestor that owns an addressable slot.
func (rt *Runtime) renderUnit(differ *reconcile.Differ, buf *reconcile.Buffer, inst *lifecycle.Instance) error {
	target := inst
	for target.Parent() != nil && (target.Root() == nil || target.Parent().Root() == target.Root()) {
		target = target.Parent()
	}
	if target != inst && target.RenderedIn(rt.stamp) {
		return nil
	}

	oldRoot := target.Root()
	parentS, idx := rt.locateSlot(target, oldRoot)

	rt.stats.UnitRenders++
	newRoot, err := rt.manager.Render(target, rt.stamp)
	if err != nil {
		if lifecycle.IsEscalated(err) {
			return unwrapEscalated(err)
		}
		if ee, ok := err.(*rerrors.EvaluationError); ok {
			if rt.manager.Capture(target.Parent(), ee) {
				// Captured: the previous fragment stays live.
				return nil
			}
			return ee
		}
		return err
	}

	live, err := differ.DiffRoot(parentS, idx, oldRoot, newRoot)
	if err != nil {
		return err
	}
	rt.splice(parentS, idx, live)
	return nil
}

// locateSlot finds the structural parent and index of target's live root
// fragment. The fragment was spliced into some ancestor's tree during
// expansion; nil means the fragment sits directly under the render
// target's root.
func (rt *Runtime) locateSlot(target *lifecycle.Instance, root *reconcile.SNode) (*reconcile.SNode, int) {
	if root == nil {
		return nil, 0
	}
	for anc := target.Parent(); anc != nil; anc = anc.Parent() {
		if anc.Root() == nil || anc.Root() == root {
			continue
		}
		if p, i := reconcile.FindParent(anc.Root(), root); p != nil {
			return p, i
		}
	}
	return nil, 0
}

// splice installs the node now live at the slot into the enclosing
// structural tree, keeping ancestor trees consistent for later diffs.
func (rt *Runtime) splice(parent *reconcile.SNode, idx int, live *reconcile.SNode) {
	if parent == nil {
		return
	}
	if live == nil {
		parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)
		return
	}
	parent.Children[idx] = live
}
