package lifecycle

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	rerrors "github.com/go-reflow/reflow/pkg/errors"
	"github.com/go-reflow/reflow/pkg/reconcile"
	"github.com/go-reflow/reflow/pkg/state"
	"github.com/go-reflow/reflow/pkg/track"
	"github.com/go-reflow/reflow/pkg/view"
)

// Manager owns all unit instances. It evaluates view functions under
// tracking, expands their output into structural trees, and drives
// lifecycle transitions off the composition diff.
type Manager struct {
	store    *state.Store
	index    *track.Index
	registry *view.Registry
	seq      uint64
}

// NewManager wires a manager to its collaborators.
func NewManager(store *state.Store, index *track.Index, registry *view.Registry) *Manager {
	return &Manager{store: store, index: index, registry: registry}
}

// renderCtx exposes tracked store access to view functions.
type renderCtx struct {
	store *state.Store
}

func (c *renderCtx) Get(p state.Path) (any, error) { return c.store.Read(p) }
func (c *renderCtx) Keys(p state.Path) ([]string, error) { return c.store.Keys(p) }
func (c *renderCtx) Len(p state.Path) (int, error) { return c.store.Len(p) }

// Mount creates and renders a fresh instance. The instance is returned
// even when its first render fails with a captured evaluation error; it
// stays mounted with no output so its composition identity persists.
func (m *Manager) Mount(parent *Instance, typ string, key any, params view.Params, stamp uint64) (*Instance, error) {
	def, ok := m.registry.Lookup(typ)
	if !ok {
		return nil, &rerrors.ReflowError{
			Op:   "lifecycle.Manager.Mount",
			Kind: rerrors.KindLifecycle,
			Err:  fmt.Errorf("unknown unit type %q", typ),
		}
	}
	m.seq++
	inst := &Instance{
		id:     uuid.NewString(),
		seq:    m.seq,
		typ:    typ,
		key:    key,
		def:    def,
		params: params,
		parent: parent,
		phase:  PhaseMounted,
	}
	if parent != nil {
		inst.depth = parent.depth + 1
	}
	if def.OnMount != nil {
		def.OnMount(params)
	}
	_, err := m.Render(inst, stamp)
	return inst, err
}

// Render evaluates the instance's view function and expands the result.
// On success the instance's composition children, subscriptions,
// AccessRecord, and structural root are all replaced; on failure nothing
// is committed and the previous fragment is retained.
func (m *Manager) Render(inst *Instance, stamp uint64) (*reconcile.SNode, error) {
	inst.lastRender = stamp

	tree, rec, err := m.evaluate(inst)
	if err != nil {
		return nil, err
	}

	ex := &expansion{
		stamp:   stamp,
		claimed: make(map[*Instance]bool),
	}
	root, err := m.expand(inst, tree, ex)
	if err != nil {
		// Unmount children freshly mounted during the failed expansion so
		// their index entries do not outlive it.
		for _, c := range ex.children {
			if !containsInstance(inst.children, c) {
				m.Unmount(c)
			}
		}
		return nil, err
	}

	m.index.Commit(inst, rec)
	for _, s := range inst.subs {
		m.index.Remove(s)
	}
	for _, s := range ex.subs {
		m.index.Commit(s, s.record)
	}
	inst.subs = ex.subs

	for _, c := range inst.children {
		if !ex.claimed[c] {
			m.Unmount(c)
		}
	}
	inst.children = ex.children
	inst.root = root
	if inst.phase == PhaseUpdating {
		inst.phase = PhaseMounted
	}
	return root, nil
}

// Unmount transitions the instance to its terminal phase: teardown hook,
// index purge, then recursive unmount of owned sub-instances. Render
// target removal is the structural diff's business, not ours.
func (m *Manager) Unmount(inst *Instance) {
	if inst.phase == PhaseUnmounted {
		return
	}
	inst.phase = PhaseUnmounted
	if inst.def.OnUnmount != nil {
		inst.def.OnUnmount(inst.params)
	}
	m.index.Remove(inst)
	for _, s := range inst.subs {
		m.index.Remove(s)
	}
	inst.subs = nil
	for _, c := range inst.children {
		m.Unmount(c)
	}
	inst.children = nil
}

// Capture offers an evaluation error to the ancestors of the failing
// unit, nearest first. Returns true if one handled it.
func (m *Manager) Capture(from *Instance, err *rerrors.EvaluationError) bool {
	for inst := from; inst != nil; inst = inst.parent {
		if inst.def.OnError != nil && inst.def.OnError(err) {
			return true
		}
	}
	return false
}

// evaluate runs the view function under tracking with panic recovery,
// in the manner of a guarded build. A failed evaluation commits nothing.
func (m *Manager) evaluate(inst *Instance) (view.Node, *track.AccessRecord, error) {
	rec := track.NewAccessRecord()
	var tree view.Node
	var evalErr *rerrors.EvaluationError

	trackErr := m.store.Track(rec, func() error {
		defer func() {
			if r := recover(); r != nil {
				evalErr = &rerrors.EvaluationError{
					Unit:       inst.typ,
					Key:        inst.key,
					Recovered:  r,
					StackTrace: rerrors.CaptureStack(),
					Timestamp:  time.Now(),
				}
			}
		}()
		tree = inst.def.Render(&renderCtx{m.store}, inst.params)
		return nil
	})
	if evalErr == nil && trackErr != nil {
		evalErr = &rerrors.EvaluationError{
			Unit:      inst.typ,
			Key:       inst.key,
			Err:       trackErr,
			Timestamp: time.Now(),
		}
	}
	if evalErr != nil {
		rerrors.ReportEvaluation(evalErr)
		return nil, nil, evalErr
	}
	return tree, rec, nil
}

// expansion accumulates the products of expanding one unit's output.
type expansion struct {
	stamp    uint64
	children []*Instance
	subs     []*Subscription
	claimed  map[*Instance]bool
	compOrd  int
	seenKeys map[any]bool
}

// escalated wraps an evaluation error no ancestor captured, so outer
// expansions propagate it without re-running capture hooks.
type escalated struct {
	err error
}

func (e escalated) Error() string { return e.err.Error() }
func (e escalated) Unwrap() error { return e.err }

// IsEscalated reports whether err is an evaluation error that was already
// offered to every capture hook between its origin and the render root.
func IsEscalated(err error) bool {
	_, ok := err.(escalated)
	return ok
}

// expand turns one user-defined tree node into a structural node,
// reconciling unit children against the owner's previous composition as
// they are encountered. Returns nil for nodes contributing no output.
func (m *Manager) expand(owner *Instance, n view.Node, ex *expansion) (*reconcile.SNode, error) {
	switch t := n.(type) {
	case nil:
		return nil, nil

	case view.Structural:
		sn := &reconcile.SNode{Type: t.Type, Key: t.Key}
		if len(t.Attrs) > 0 {
			sn.Attrs = make(map[string]any, len(t.Attrs))
			for k, v := range t.Attrs {
				if b, ok := v.(view.Bind); ok {
					resolved, err := m.bind(owner, ex, b, Slot{Node: sn, Attr: k})
					if err != nil {
						return nil, err
					}
					sn.Attrs[k] = resolved
					continue
				}
				sn.Attrs[k] = v
			}
		}
		for _, c := range t.Children {
			cs, err := m.expand(owner, c, ex)
			if err != nil {
				return nil, err
			}
			if cs != nil {
				sn.Children = append(sn.Children, cs)
			}
		}
		return sn, nil

	case view.Text:
		sn := &reconcile.SNode{Type: reconcile.TextType}
		if b, ok := t.Value.(view.Bind); ok {
			resolved, err := m.bind(owner, ex, b, Slot{Node: sn})
			if err != nil {
				return nil, err
			}
			sn.Text = FormatText(resolved)
			return sn, nil
		}
		sn.Text = FormatText(t.Value)
		return sn, nil

	case view.Bind:
		return m.expand(owner, view.Text{Value: t}, ex)

	case view.Unit:
		return m.expandUnit(owner, t, ex)

	default:
		return nil, &rerrors.ReflowError{
			Op:   "lifecycle.Manager.expand",
			Kind: rerrors.KindBuild,
			Err:  fmt.Errorf("unknown view node %T", n),
		}
	}
}

// expandUnit reconciles one unit node against the owner's previous
// composition children and splices the child's structural root.
func (m *Manager) expandUnit(owner *Instance, u view.Unit, ex *expansion) (*reconcile.SNode, error) {
	ord := ex.compOrd
	ex.compOrd++

	if u.Key != nil {
		if !keyComparable(u.Key) {
			return nil, &rerrors.ReflowError{
				Op:   "lifecycle.Manager.expand",
				Kind: rerrors.KindLifecycle,
				Err:  fmt.Errorf("unit %q key of type %T is not comparable", u.Type, u.Key),
			}
		}
		if ex.seenKeys == nil {
			ex.seenKeys = make(map[any]bool)
		}
		if ex.seenKeys[u.Key] {
			return nil, &rerrors.DuplicateKeyError{NodeType: u.Type, Key: u.Key}
		}
		ex.seenKeys[u.Key] = true
	}

	child := m.matchChild(owner, u, ord, ex.claimed)
	if child != nil {
		ex.claimed[child] = true
		oldParams := child.params
		child.phase = PhaseUpdating
		if child.def.OnUpdate != nil {
			child.def.OnUpdate(oldParams, u.Params)
		}
		child.params = u.Params
		if _, err := m.Render(child, ex.stamp); err != nil {
			child.phase = PhaseMounted
			if ee, ok := err.(*rerrors.EvaluationError); ok {
				if !m.Capture(owner, ee) {
					return nil, escalated{ee}
				}
				// Captured: the child's previous fragment stays live.
			} else {
				return nil, err
			}
		}
	} else {
		mounted, err := m.Mount(owner, u.Type, u.Key, u.Params, ex.stamp)
		if err != nil {
			ee, ok := err.(*rerrors.EvaluationError)
			if !ok || mounted == nil {
				return nil, err
			}
			if !m.Capture(owner, ee) {
				return nil, escalated{ee}
			}
			// Captured: a fresh unit with no prior output contributes
			// nothing this time around.
		}
		child = mounted
	}

	ex.children = append(ex.children, child)
	return child.root, nil
}

// matchChild finds the previous composition child a unit node updates:
// keyed nodes match by (type, key), unkeyed nodes by composition ordinal.
func (m *Manager) matchChild(owner *Instance, u view.Unit, ord int, claimed map[*Instance]bool) *Instance {
	if u.Key != nil {
		for _, c := range owner.children {
			if c.key != nil && c.typ == u.Type && reflect.DeepEqual(c.key, u.Key) && !claimed[c] {
				return c
			}
		}
		return nil
	}
	if ord < len(owner.children) {
		c := owner.children[ord]
		if c.key == nil && c.typ == u.Type && !claimed[c] {
			return c
		}
	}
	return nil
}

// bind resolves a dynamic value, creating the value-subscription that
// owns the slot. The read is tracked against the subscription itself, not
// the owning unit.
func (m *Manager) bind(owner *Instance, ex *expansion, b view.Bind, slot Slot) (any, error) {
	m.seq++
	sub := &Subscription{
		id:     uuid.NewString(),
		seq:    m.seq,
		path:   b.Path,
		slot:   slot,
		owner:  owner,
		record: track.NewAccessRecord(),
	}
	var v any
	err := m.store.Track(sub.record, func() error {
		var readErr error
		v, readErr = m.store.Read(b.Path)
		return readErr
	})
	if err != nil {
		ee := &rerrors.EvaluationError{
			Unit:      owner.typ,
			Key:       owner.key,
			Err:       err,
			Timestamp: time.Now(),
		}
		rerrors.ReportEvaluation(ee)
		return nil, ee
	}
	ex.subs = append(ex.subs, sub)
	return v, nil
}

// FormatText renders a bound or literal value as text node content.
func FormatText(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	default:
		return fmt.Sprint(tv)
	}
}

func keyComparable(k any) bool {
	t := reflect.TypeOf(k)
	return t != nil && t.Comparable()
}

func containsInstance(list []*Instance, inst *Instance) bool {
	for _, c := range list {
		if c == inst {
			return true
		}
	}
	return false
}
