// Package rttest provides a recording render target and a testing.T-bound
// tester for driving the runtime in tests without a real target.
package rttest

import (
	"fmt"

	"github.com/go-reflow/reflow/pkg/reconcile"
)

// Command is one serialized target mutation.
type Command struct {
	Op     string `json:"op"`
	Node   string `json:"node,omitempty"`
	Parent string `json:"parent,omitempty"`
	Index  int    `json:"index,omitempty"`
	Type   string `json:"type,omitempty"`
	Attr   string `json:"attr,omitempty"`
	Value  any    `json:"value,omitempty"`
	Text   string `json:"text,omitempty"`
}

// RecordingTarget implements reconcile.Target by recording every command.
// Handles are strings: "root" for the root, then "n1", "n2", ... in
// creation order, so command streams compare deterministically.
type RecordingTarget struct {
	commands   []Command
	next       int
	live       map[string]bool
	violations []string
}

// NewRecordingTarget returns an empty recorder.
func NewRecordingTarget() *RecordingTarget {
	return &RecordingTarget{live: map[string]bool{"root": true}}
}

// Root implements reconcile.Target.
func (r *RecordingTarget) Root() reconcile.Handle { return "root" }

// CreateNode implements reconcile.Target.
func (r *RecordingTarget) CreateNode(nodeType string, attrs map[string]any) reconcile.Handle {
	r.next++
	h := fmt.Sprintf("n%d", r.next)
	r.live[h] = true
	cmd := Command{Op: "create", Node: h, Type: nodeType}
	if len(attrs) > 0 {
		cmd.Value = attrs
	}
	r.commands = append(r.commands, cmd)
	return h
}

// SetAttribute implements reconcile.Target.
func (r *RecordingTarget) SetAttribute(h reconcile.Handle, key string, value any) {
	r.check(h)
	r.commands = append(r.commands, Command{Op: "setAttr", Node: r.id(h), Attr: key, Value: value})
}

// SetText implements reconcile.Target.
func (r *RecordingTarget) SetText(h reconcile.Handle, value string) {
	r.check(h)
	r.commands = append(r.commands, Command{Op: "setText", Node: r.id(h), Text: value})
}

// InsertChild implements reconcile.Target.
func (r *RecordingTarget) InsertChild(parent, child reconcile.Handle, index int) {
	r.check(parent)
	r.check(child)
	r.commands = append(r.commands, Command{Op: "insert", Node: r.id(child), Parent: r.id(parent), Index: index})
}

// RemoveChild implements reconcile.Target.
func (r *RecordingTarget) RemoveChild(parent, child reconcile.Handle) {
	r.check(parent)
	r.check(child)
	r.release(r.id(child))
	r.commands = append(r.commands, Command{Op: "remove", Node: r.id(child), Parent: r.id(parent)})
}

// MoveChild implements reconcile.Target.
func (r *RecordingTarget) MoveChild(parent, child reconcile.Handle, newIndex int) {
	r.check(parent)
	r.check(child)
	r.commands = append(r.commands, Command{Op: "move", Node: r.id(child), Parent: r.id(parent), Index: newIndex})
}

// Commands returns a copy of the recorded command stream.
func (r *RecordingTarget) Commands() []Command {
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Ops returns just the op names, in order.
func (r *RecordingTarget) Ops() []string {
	out := make([]string, len(r.commands))
	for i, c := range r.commands {
		out[i] = c.Op
	}
	return out
}

// CountOp returns how many recorded commands have the given op name.
func (r *RecordingTarget) CountOp(op string) int {
	n := 0
	for _, c := range r.commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset clears the recorded commands. Node liveness is kept so a later
// stream still validates against earlier creations.
func (r *RecordingTarget) Reset() {
	r.commands = nil
}

// Violations returns descriptions of commands that referenced handles
// never created or already removed. A correct engine produces none.
func (r *RecordingTarget) Violations() []string {
	out := make([]string, len(r.violations))
	copy(out, r.violations)
	return out
}

func (r *RecordingTarget) id(h reconcile.Handle) string {
	s, _ := h.(string)
	return s
}

func (r *RecordingTarget) check(h reconcile.Handle) {
	s, ok := h.(string)
	if !ok || !r.live[s] {
		r.violations = append(r.violations, fmt.Sprintf("command %d references dead handle %v", len(r.commands), h))
	}
}

func (r *RecordingTarget) release(id string) {
	delete(r.live, id)
}
