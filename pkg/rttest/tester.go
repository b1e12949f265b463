package rttest

import (
	"testing"

	"github.com/go-reflow/reflow/pkg/runtime"
	"github.com/go-reflow/reflow/pkg/state"
	"github.com/go-reflow/reflow/pkg/view"
)

// RuntimeTester drives a runtime against a RecordingTarget and fails the
// test on unexpected errors or handle violations.
type RuntimeTester struct {
	t      *testing.T
	target *RecordingTarget
	rt     *runtime.Runtime
}

// NewTester creates a runtime over a fresh recording target.
func NewTester(t *testing.T, registry *view.Registry, initial any, opts ...runtime.Option) *RuntimeTester {
	t.Helper()
	target := NewRecordingTarget()
	return &RuntimeTester{
		t:      t,
		target: target,
		rt:     runtime.New(target, registry, initial, opts...),
	}
}

// Runtime returns the underlying runtime.
func (rt *RuntimeTester) Runtime() *runtime.Runtime { return rt.rt }

// Target returns the recording target.
func (rt *RuntimeTester) Target() *RecordingTarget { return rt.target }

// MustMount mounts the root unit, failing the test on error.
func (rt *RuntimeTester) MustMount(unitType string, params view.Params) {
	rt.t.Helper()
	if err := rt.rt.Mount(unitType, params); err != nil {
		rt.t.Fatalf("mount %q: %v", unitType, err)
	}
	rt.checkViolations()
}

// MustWrite writes a value at a textual path, failing the test on error.
func (rt *RuntimeTester) MustWrite(path string, value any) {
	rt.t.Helper()
	if err := rt.rt.Write(state.MustParsePath(path), value); err != nil {
		rt.t.Fatalf("write %s: %v", path, err)
	}
	rt.checkViolations()
}

// MustRemove removes the node at a textual path, failing the test on error.
func (rt *RuntimeTester) MustRemove(path string) {
	rt.t.Helper()
	if err := rt.rt.Remove(state.MustParsePath(path)); err != nil {
		rt.t.Fatalf("remove %s: %v", path, err)
	}
	rt.checkViolations()
}

// MustAppend appends to the list at a textual path, failing the test on
// error.
func (rt *RuntimeTester) MustAppend(path string, value any) {
	rt.t.Helper()
	if err := rt.rt.Append(state.MustParsePath(path), value); err != nil {
		rt.t.Fatalf("append %s: %v", path, err)
	}
	rt.checkViolations()
}

// Peek reads the current value at a textual path without tracking.
func (rt *RuntimeTester) Peek(path string) any {
	rt.t.Helper()
	v, err := rt.rt.Peek(state.MustParsePath(path))
	if err != nil {
		rt.t.Fatalf("peek %s: %v", path, err)
	}
	return v
}

// Commands returns the commands recorded since the last reset.
func (rt *RuntimeTester) Commands() []Command { return rt.target.Commands() }

// Ops returns the op names recorded since the last reset.
func (rt *RuntimeTester) Ops() []string { return rt.target.Ops() }

// ResetCommands clears the recorded command stream, typically after the
// initial mount so a test asserts only on update commands.
func (rt *RuntimeTester) ResetCommands() { rt.target.Reset() }

// Snapshot returns the runtime's diagnostic snapshot.
func (rt *RuntimeTester) Snapshot() runtime.Snapshot { return rt.rt.Snapshot() }

func (rt *RuntimeTester) checkViolations() {
	rt.t.Helper()
	for _, v := range rt.target.Violations() {
		rt.t.Errorf("target violation: %s", v)
	}
}
