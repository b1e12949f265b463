// Package view defines the user-defined tree vocabulary and the unit
// registry.
//
// A view description mixes structural nodes (render-target-shaped: a type,
// attributes, ordered children), text nodes, unit nodes (opaque composition
// boundaries with their own parameters and view function), and bindings
// (dynamic values tied to one state path, realized at build time as
// value-subscriptions).
package view

import "github.com/go-reflow/reflow/pkg/state"

// Node is a node of the user-defined tree.
type Node interface {
	isNode()
}

// Params are a unit's input parameters.
type Params map[string]any

// Structural is an intrinsic node the render target understands directly.
type Structural struct {
	// Type is the target node type, e.g. "div".
	Type string
	// Key is an optional explicit identity key for keyed diffing.
	Key any
	// Attrs maps attribute names to values. A value may be a Bind, in
	// which case the attribute tracks the bound state path.
	Attrs map[string]any
	// Children are the ordered child nodes.
	Children []Node
}

func (Structural) isNode() {}

// Text is a text node. Value is either a string or a Bind.
type Text struct {
	Value any
}

func (Text) isNode() {}

// Unit is a composition boundary: an invocation of a registered unit type.
// Its output subtree is owned by the unit instance the lifecycle manager
// mounts for it, not by the surrounding markup.
type Unit struct {
	// Type names a Definition in the Registry.
	Type string
	// Key is an optional explicit identity key.
	Key any
	// Params are the unit's input parameters, replaced on every update.
	Params Params
}

func (Unit) isNode() {}

// Bind is a dynamic value bound to one state path. Used as an attribute
// value or a Text value it becomes a value-subscription owning exactly
// that output slot.
type Bind struct {
	Path state.Path
}

func (Bind) isNode() {}

// BindPath is shorthand for a Bind on a parsed canonical path.
// It panics on malformed input; intended for literals.
func BindPath(path string) Bind {
	return Bind{Path: state.MustParsePath(path)}
}
