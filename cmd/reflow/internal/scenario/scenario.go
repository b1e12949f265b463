// Package scenario loads declarative runtime scenarios from YAML: an
// initial state document, unit view templates, and a write script. It
// exists so engine behavior can be replayed and inspected from the CLI
// without writing Go.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/go-reflow/reflow/pkg/reconcile"
	"github.com/go-reflow/reflow/pkg/runtime"
	"github.com/go-reflow/reflow/pkg/state"
	"github.com/go-reflow/reflow/pkg/view"
)

// Write is one scripted state mutation.
type Write struct {
	Path   string `yaml:"path"`
	Value  any    `yaml:"value,omitempty"`
	Remove bool   `yaml:"remove,omitempty"`
	Append bool   `yaml:"append,omitempty"`
}

// Scenario is a replayable runtime session.
type Scenario struct {
	// State is the initial state document.
	State map[string]any `yaml:"state"`
	// Units maps unit type names to their view templates.
	Units map[string]any `yaml:"units"`
	// Root is the unit type mounted as the root.
	Root string `yaml:"root"`
	// Writes are applied in order after the mount.
	Writes []Write `yaml:"writes"`
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if s.Root == "" {
		return nil, fmt.Errorf("scenario has no root unit")
	}
	if _, ok := s.Units[s.Root]; !ok {
		return nil, fmt.Errorf("root unit %q is not defined", s.Root)
	}
	return &s, nil
}

// Registry builds a unit registry from the scenario's view templates.
// Templates are static trees; dynamic behavior comes from binds.
func (s *Scenario) Registry() (*view.Registry, error) {
	reg := view.NewRegistry()
	for name, raw := range s.Units {
		tmpl, err := view.FromValue(raw)
		if err != nil {
			return nil, fmt.Errorf("unit %q: %w", name, err)
		}
		def := view.Definition{
			Name:   name,
			Render: func(view.RenderContext, view.Params) view.Node { return tmpl },
		}
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Run mounts the scenario against target and applies the write script.
// The runtime is returned even on failure so callers can inspect it.
func (s *Scenario) Run(target reconcile.Target, opts ...runtime.Option) (*runtime.Runtime, error) {
	reg, err := s.Registry()
	if err != nil {
		return nil, err
	}
	rt := runtime.New(target, reg, s.State, opts...)
	if err := rt.Mount(s.Root, nil); err != nil {
		return rt, fmt.Errorf("mount %q: %w", s.Root, err)
	}
	for i, w := range s.Writes {
		p, err := state.ParsePath(w.Path)
		if err != nil {
			return rt, fmt.Errorf("write %d: %w", i, err)
		}
		switch {
		case w.Remove:
			err = rt.Remove(p)
		case w.Append:
			err = rt.Append(p, w.Value)
		default:
			err = rt.Write(p, w.Value)
		}
		if err != nil {
			return rt, fmt.Errorf("write %d (%s): %w", i, w.Path, err)
		}
	}
	return rt, nil
}
