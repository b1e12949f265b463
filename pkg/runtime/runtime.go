// Package runtime ties the store, dependency index, lifecycle manager,
// and reconciliation engine into the single-threaded cooperative loop.
//
// A write starts an invalidation batch that is drained to completion
// before the next externally observable write is accepted. Writes issued
// while a batch runs (from hooks or evaluations) are deferred to their own
// subsequent batches, keeping each batch's affected set stable while it
// executes.
package runtime

import (
	stderrors "errors"
	"fmt"

	rerrors "github.com/go-reflow/reflow/pkg/errors"
	"github.com/go-reflow/reflow/pkg/lifecycle"
	"github.com/go-reflow/reflow/pkg/reconcile"
	"github.com/go-reflow/reflow/pkg/state"
	"github.com/go-reflow/reflow/pkg/track"
	"github.com/go-reflow/reflow/pkg/view"
)

// Stats counts batch-level work for diagnostics and tests.
type Stats struct {
	// Batches is the number of invalidation batches processed.
	Batches uint64
	// DeferredWrites counts writes queued during a batch.
	DeferredWrites uint64
	// ValuePatches counts applied value-subscription patches.
	ValuePatches uint64
	// SupersededPatches counts value patches dropped because the owning
	// unit (or an ancestor) re-evaluated structurally in the same batch.
	SupersededPatches uint64
	// UnitRenders counts unit re-evaluations driven by the batch loop.
	// Renders of descendants during an ancestor's expansion are part of
	// that ancestor's render.
	UnitRenders uint64
	// Commands counts commands flushed to the render target.
	Commands uint64
}

type writeKind uint8

const (
	writeSet writeKind = iota
	writeRemove
	writeAppend
)

type writeOp struct {
	kind  writeKind
	path  state.Path
	value any
}

// Runtime is the view-runtime core. It is not safe for concurrent use:
// all writes and the resulting batch processing happen on one logical
// thread.
type Runtime struct {
	store    *state.Store
	index    *track.Index
	registry *view.Registry
	manager  *lifecycle.Manager
	emitter  *reconcile.Emitter
	root     *lifecycle.Instance

	stamp     uint64
	inBatch   bool
	pending   []writeOp
	skipEqual bool
	failure   error
	stats     Stats
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithSkipEqualWrites suppresses notification for leaf writes whose new
// value equals the current one. Off by default: the engine notifies
// regardless of value equality.
func WithSkipEqualWrites() Option {
	return func(rt *Runtime) { rt.skipEqual = true }
}

// New creates a runtime over a render target and unit registry, with the
// given initial state (maps become records, slices lists).
func New(target reconcile.Target, registry *view.Registry, initial any, opts ...Option) *Runtime {
	store := state.NewStore(initial)
	index := track.NewIndex()
	rt := &Runtime{
		store:    store,
		index:    index,
		registry: registry,
		manager:  lifecycle.NewManager(store, index, registry),
		emitter:  reconcile.NewEmitter(target),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Mount renders the root unit and flushes the initial tree to the target.
// Writes issued by mount hooks are drained as follow-up batches.
func (rt *Runtime) Mount(unitType string, params view.Params) error {
	if rt.root != nil {
		return &rerrors.ReflowError{
			Op:   "runtime.Runtime.Mount",
			Kind: rerrors.KindLifecycle,
			Err:  fmt.Errorf("root unit already mounted"),
		}
	}
	rt.inBatch = true
	err := func() error {
		rt.stamp++
		buf := rt.emitter.Begin()
		inst, err := rt.manager.Mount(nil, unitType, nil, params, rt.stamp)
		if err != nil {
			if inst != nil {
				rt.manager.Unmount(inst)
			}
			return unwrapEscalated(err)
		}
		rt.root = inst
		differ := reconcile.NewDiffer(buf)
		if _, err := differ.DiffRoot(nil, 0, nil, inst.Root()); err != nil {
			return err
		}
		rt.stats.Commands += uint64(buf.Len())
		rt.emitter.Flush(buf)
		return nil
	}()
	rt.inBatch = false
	if err != nil {
		rt.pending = nil
		return err
	}
	return rt.drainPending()
}

// Write replaces the value at path and processes the resulting batch.
func (rt *Runtime) Write(path state.Path, value any) error {
	return rt.submit(writeOp{kind: writeSet, path: path, value: value})
}

// Remove deletes the node at path and processes the resulting batch.
func (rt *Runtime) Remove(path state.Path) error {
	return rt.submit(writeOp{kind: writeRemove, path: path})
}

// Append adds an element to the list at path and processes the resulting
// batch.
func (rt *Runtime) Append(path state.Path, value any) error {
	return rt.submit(writeOp{kind: writeAppend, path: path, value: value})
}

// Peek reads the current value at path without dependency tracking.
func (rt *Runtime) Peek(path state.Path) (any, error) {
	return rt.store.Peek(path)
}

// Root returns the mounted root instance, or nil.
func (rt *Runtime) Root() *lifecycle.Instance {
	return rt.root
}

// Stats returns a copy of the batch counters.
func (rt *Runtime) Stats() Stats {
	return rt.stats
}

// Err returns the error that poisoned the runtime after a failed batch,
// or nil. A poisoned runtime rejects further writes: its internal trees
// may no longer agree with the render target.
func (rt *Runtime) Err() error {
	return rt.failure
}

// submit runs a write as its own batch, or defers it when a batch is
// already in flight. Deferred writes never interleave with the read phase
// they would invalidate.
func (rt *Runtime) submit(w writeOp) error {
	if rt.failure != nil {
		return rt.failure
	}
	if rt.inBatch {
		rt.pending = append(rt.pending, w)
		rt.stats.DeferredWrites++
		return nil
	}
	rt.inBatch = true
	err := rt.processBatch(w)
	rt.inBatch = false
	if err != nil {
		return err
	}
	return rt.drainPending()
}

func (rt *Runtime) drainPending() error {
	for len(rt.pending) > 0 {
		next := rt.pending[0]
		rt.pending = rt.pending[1:]
		rt.inBatch = true
		err := rt.processBatch(next)
		rt.inBatch = false
		if err != nil {
			return err
		}
	}
	return nil
}

// unwrapEscalated strips the propagation wrapper off evaluation errors
// bubbling out of nested expansions, so callers see the original failure.
func unwrapEscalated(err error) error {
	if lifecycle.IsEscalated(err) {
		var ee *rerrors.EvaluationError
		if stderrors.As(err, &ee) {
			return ee
		}
	}
	return err
}
