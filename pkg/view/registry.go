package view

import (
	"fmt"

	"github.com/go-reflow/reflow/pkg/errors"
	"github.com/go-reflow/reflow/pkg/state"
)

// RenderContext exposes tracked state access to a view function. All reads
// through it are recorded against the evaluating unit instance.
type RenderContext interface {
	// Get reads the value at p (value read).
	Get(p state.Path) (any, error)
	// Keys enumerates a record's keys (structural read).
	Keys(p state.Path) ([]string, error)
	// Len returns a container's size (structural read).
	Len(p state.Path) (int, error)
}

// Definition describes a unit type: its pure view function plus optional
// lifecycle hooks. Hooks run synchronously at the corresponding lifecycle
// transitions.
type Definition struct {
	// Name is the unit type name referenced by Unit nodes.
	Name string
	// Render produces the unit's output subtree from its parameters.
	// It must return exactly one root node (or nil for no output).
	Render func(ctx RenderContext, params Params) Node
	// OnMount runs when a fresh instance mounts, before its first render.
	OnMount func(params Params)
	// OnUpdate runs when a matched instance updates, before re-render.
	OnUpdate func(old, next Params)
	// OnUnmount runs when the instance leaves the composition tree.
	OnUnmount func(params Params)
	// OnError, if set, opts the unit into capturing evaluation errors from
	// descendant units. Returning true marks the error handled; the batch
	// continues with the failing unit's previous output retained.
	OnError func(err *errors.EvaluationError) bool
}

// Registry maps unit type names to definitions.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition. Registering an unnamed definition, one
// without a Render function, or a duplicate name is an error.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("view: definition has no name")
	}
	if def.Render == nil {
		return fmt.Errorf("view: definition %q has no render function", def.Name)
	}
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("view: definition %q already registered", def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// MustRegister is like Register but panics on error.
// Intended for package-level setup.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition for a unit type name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}
