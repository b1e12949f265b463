package view

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/go-reflow/reflow/pkg/state"
)

// DecodeYAML parses a user-defined tree from YAML. The format mirrors the
// node vocabulary:
//
//	type: div
//	key: header
//	attrs:
//	  class: title
//	  label: {bind: user.name}
//	children:
//	  - text: hello
//	  - text: {bind: user.name}
//	  - unit: counter
//	    key: a
//	    params: {start: 1}
//
// A plain string child is shorthand for a text node.
func DecodeYAML(data []byte) (Node, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("view: decode yaml: %w", err)
	}
	return FromValue(raw)
}

// FromValue converts an already-unmarshaled YAML value into a Node.
func FromValue(raw any) (Node, error) {
	switch tv := raw.(type) {
	case string:
		return Text{Value: tv}, nil
	case map[string]any:
		if name, ok := tv["unit"]; ok {
			return unitFromMap(name, tv)
		}
		if text, ok := tv["text"]; ok {
			value, err := valueFromRaw(text)
			if err != nil {
				return nil, err
			}
			return Text{Value: value}, nil
		}
		if path, ok := tv["bind"]; ok && len(tv) == 1 {
			b, err := bindFromRaw(path)
			if err != nil {
				return nil, err
			}
			return Text{Value: b}, nil
		}
		if typ, ok := tv["type"]; ok {
			return structuralFromMap(typ, tv)
		}
		return nil, fmt.Errorf("view: node mapping needs one of type/text/unit/bind")
	default:
		return nil, fmt.Errorf("view: cannot decode %T as a node", raw)
	}
}

func unitFromMap(name any, m map[string]any) (Node, error) {
	typ, ok := name.(string)
	if !ok {
		return nil, fmt.Errorf("view: unit name must be a string, got %T", name)
	}
	u := Unit{Type: typ, Key: m["key"]}
	if rawParams, ok := m["params"]; ok {
		params, ok := rawParams.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("view: unit %q params must be a mapping", typ)
		}
		u.Params = Params(params)
	}
	return u, nil
}

func structuralFromMap(typ any, m map[string]any) (Node, error) {
	name, ok := typ.(string)
	if !ok {
		return nil, fmt.Errorf("view: node type must be a string, got %T", typ)
	}
	n := Structural{Type: name, Key: m["key"]}
	if rawAttrs, ok := m["attrs"]; ok {
		attrs, ok := rawAttrs.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("view: attrs of %q must be a mapping", name)
		}
		n.Attrs = make(map[string]any, len(attrs))
		for k, v := range attrs {
			value, err := valueFromRaw(v)
			if err != nil {
				return nil, err
			}
			n.Attrs[k] = value
		}
	}
	if rawChildren, ok := m["children"]; ok {
		children, ok := rawChildren.([]any)
		if !ok {
			return nil, fmt.Errorf("view: children of %q must be a sequence", name)
		}
		for _, rawChild := range children {
			child, err := FromValue(rawChild)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		}
	}
	return n, nil
}

// valueFromRaw resolves an attribute or text value: a {bind: path} mapping
// becomes a Bind, anything else passes through as-is.
func valueFromRaw(raw any) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return raw, nil
	}
	path, ok := m["bind"]
	if !ok || len(m) != 1 {
		return nil, fmt.Errorf("view: value mapping must be exactly {bind: path}")
	}
	return bindFromRaw(path)
}

func bindFromRaw(raw any) (Bind, error) {
	s, ok := raw.(string)
	if !ok {
		return Bind{}, fmt.Errorf("view: bind path must be a string, got %T", raw)
	}
	p, err := state.ParsePath(s)
	if err != nil {
		return Bind{}, err
	}
	return Bind{Path: p}, nil
}
