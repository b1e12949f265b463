package lifecycle

import (
	"github.com/go-reflow/reflow/pkg/reconcile"
	"github.com/go-reflow/reflow/pkg/state"
	"github.com/go-reflow/reflow/pkg/track"
)

// Slot identifies the single output location a value-subscription owns:
// an attribute of a structural node, or a text node's content when Attr
// is empty.
type Slot struct {
	Node *reconcile.SNode
	Attr string
}

// Subscription is a value-subscription: a cheap reader bound to exactly
// one state path and one output slot. Subscriptions are owned by the unit
// instance whose expansion created them and are replaced wholesale when
// that unit re-renders.
type Subscription struct {
	id     string
	seq    uint64
	path   state.Path
	slot   Slot
	owner  *Instance
	record *track.AccessRecord
}

// Path returns the bound state path.
func (s *Subscription) Path() state.Path { return s.path }

// Slot returns the owned output slot.
func (s *Subscription) Slot() Slot { return s.slot }

// Owner returns the unit instance that created the subscription.
func (s *Subscription) Owner() *Instance { return s.owner }

// Seq returns the creation sequence number, a deterministic ordering
// tiebreak within a batch.
func (s *Subscription) Seq() uint64 { return s.seq }

// ReaderID implements track.Reader.
func (s *Subscription) ReaderID() string { return s.id }

// ReaderKind implements track.Reader.
func (s *Subscription) ReaderKind() track.ReaderKind { return track.KindSubscription }

// ReaderDepth implements track.Reader.
func (s *Subscription) ReaderDepth() int { return 0 }
