// Package reconcile implements structural reconciliation: it translates a
// new desired output tree into the smallest correct command stream against
// the previous one.
//
// Commands are staged in a Buffer using virtual handles and replayed
// against the real Target only when the whole batch succeeds, so a failed
// batch never mutates the target.
package reconcile

// Handle is an opaque node reference owned by the render target.
type Handle any

// Target is the external render target contract. The engine emits an
// ordered command stream; within one structural update the order is a
// valid sequence of tree transformations (no command references a
// not-yet-created or already-removed handle).
type Target interface {
	// Root returns the handle children of the mounted tree are
	// inserted under.
	Root() Handle
	// CreateNode creates a detached node of the given type with initial
	// attributes and returns its handle.
	CreateNode(nodeType string, attrs map[string]any) Handle
	// SetAttribute sets an attribute. A nil value removes it.
	SetAttribute(h Handle, key string, value any)
	// SetText replaces a text node's content.
	SetText(h Handle, value string)
	// InsertChild inserts child under parent at index. A child that is
	// already attached elsewhere is detached from its old position first.
	InsertChild(parent, child Handle, index int)
	// RemoveChild detaches child from parent.
	RemoveChild(parent, child Handle)
	// MoveChild detaches child and reinserts it under the same parent at
	// newIndex (interpreted after the removal).
	MoveChild(parent, child Handle, newIndex int)
}
