// Package lifecycle manages composed-unit instances: mounting, updating,
// unmounting, and the expansion of user-defined trees into structural
// trees.
//
// The source of truth for lifecycle transitions is the composition diff —
// the one-level unit children of a unit's output matched by (type, key) —
// never the structural diff. A unit whose composition identity is
// continuously present across evaluations is never torn down, even when
// the intrinsic markup around it changes shape entirely.
package lifecycle

import (
	"github.com/go-reflow/reflow/pkg/reconcile"
	"github.com/go-reflow/reflow/pkg/track"
	"github.com/go-reflow/reflow/pkg/view"
)

// Phase is a unit instance's lifecycle phase.
type Phase uint8

const (
	// PhaseUnmounted is both the initial and the terminal phase.
	PhaseUnmounted Phase = iota
	// PhaseMounted means the instance has rendered at least once.
	PhaseMounted
	// PhaseUpdating means the instance is re-rendering with replaced
	// parameters (a self-loop back to mounted).
	PhaseUpdating
)

func (p Phase) String() string {
	switch p {
	case PhaseMounted:
		return "mounted"
	case PhaseUpdating:
		return "updating"
	default:
		return "unmounted"
	}
}

// Instance is the live state of one mounted unit. It is owned exclusively
// by the Manager; tree nodes reference it but never own it.
type Instance struct {
	id    string // uuid, for diagnostics
	seq   uint64 // mount order, for deterministic batch ordering
	typ   string
	key   any
	def   view.Definition
	depth int

	params   view.Params
	parent   *Instance
	children []*Instance
	subs     []*Subscription
	root     *reconcile.SNode
	phase    Phase

	// lastRender is the batch stamp of the most recent evaluation, used to
	// skip units already re-evaluated as descendants of an earlier unit in
	// the same batch.
	lastRender uint64
}

// ID returns the instance's diagnostic identifier.
func (i *Instance) ID() string { return i.id }

// UnitType returns the unit type name.
func (i *Instance) UnitType() string { return i.typ }

// Key returns the identity key, or nil.
func (i *Instance) Key() any { return i.key }

// Params returns the current input parameters.
func (i *Instance) Params() view.Params { return i.params }

// Depth returns the composition-tree depth (root is 0).
func (i *Instance) Depth() int { return i.depth }

// Phase returns the current lifecycle phase.
func (i *Instance) Phase() Phase { return i.phase }

// Parent returns the owning instance, or nil for the root.
func (i *Instance) Parent() *Instance { return i.parent }

// Root returns the instance's current structural root, or nil if the unit
// rendered nothing.
func (i *Instance) Root() *reconcile.SNode { return i.root }

// Children returns the composition children in order.
func (i *Instance) Children() []*Instance {
	out := make([]*Instance, len(i.children))
	copy(out, i.children)
	return out
}

// Mounted reports whether the instance is live.
func (i *Instance) Mounted() bool { return i.phase != PhaseUnmounted }

// RenderedIn reports whether the instance already rendered in the batch
// identified by stamp.
func (i *Instance) RenderedIn(stamp uint64) bool { return i.lastRender == stamp }

// ReaderID implements track.Reader.
func (i *Instance) ReaderID() string { return i.id }

// ReaderKind implements track.Reader.
func (i *Instance) ReaderKind() track.ReaderKind { return track.KindUnit }

// ReaderDepth implements track.Reader.
func (i *Instance) ReaderDepth() int { return i.depth }

// Seq returns the mount sequence number, a deterministic tiebreak for
// instances at equal depth.
func (i *Instance) Seq() uint64 { return i.seq }
