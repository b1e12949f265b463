// Package track implements the bidirectional dependency index between
// state paths and readers.
//
// A Reader is any tracked computation: a value-subscription bound to one
// output slot, or a composed-unit instance. Its AccessRecord is replaced
// wholesale on every re-evaluation so accounting stays exact.
package track

import "github.com/go-reflow/reflow/pkg/state"

// ReaderKind distinguishes the two kinds of tracked computations.
type ReaderKind uint8

const (
	// KindSubscription is a value-subscription tied to one output slot.
	KindSubscription ReaderKind = iota
	// KindUnit is a composed-unit instance.
	KindUnit
)

// Reader is a unit of computation whose state reads are tracked.
type Reader interface {
	// ReaderID returns a stable unique identifier.
	ReaderID() string
	// ReaderKind reports whether this is a subscription or a unit.
	ReaderKind() ReaderKind
	// ReaderDepth returns the composition-tree depth, used to order unit
	// re-evaluations ancestors-first. Subscriptions return 0.
	ReaderDepth() int
}

// AccessRecord is the set of paths a reader touched during its most recent
// evaluation, split into value reads and structural (shape-only) reads.
// It implements state.Recorder.
type AccessRecord struct {
	values map[string]state.Path
	shapes map[string]state.Path
}

// NewAccessRecord returns an empty record.
func NewAccessRecord() *AccessRecord {
	return &AccessRecord{
		values: make(map[string]state.Path),
		shapes: make(map[string]state.Path),
	}
}

// RecordValue records a value read of p.
func (r *AccessRecord) RecordValue(p state.Path) {
	r.values[p.String()] = p
}

// RecordStructure records a shape-only read of p.
func (r *AccessRecord) RecordStructure(p state.Path) {
	r.shapes[p.String()] = p
}

// Values returns the value-read paths.
func (r *AccessRecord) Values() []state.Path {
	out := make([]state.Path, 0, len(r.values))
	for _, p := range r.values {
		out = append(out, p)
	}
	return out
}

// Shapes returns the structural-read paths.
func (r *AccessRecord) Shapes() []state.Path {
	out := make([]state.Path, 0, len(r.shapes))
	for _, p := range r.shapes {
		out = append(out, p)
	}
	return out
}

// Empty reports whether the record holds no reads at all.
func (r *AccessRecord) Empty() bool {
	return len(r.values) == 0 && len(r.shapes) == 0
}
