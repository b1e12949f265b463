package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-reflow/reflow/pkg/errors"
)

type nodeKind uint8

const (
	leafNode nodeKind = iota
	listNode
	recordNode
)

// node is a single node in the state tree: a leaf value, an ordered list,
// or a keyed record.
type node struct {
	kind   nodeKind
	leaf   any
	list   []*node
	record map[string]*node
}

// newNode converts a plain Go value into a state subtree. Maps become
// records, slices become lists, everything else is a leaf. Record keys
// containing path delimiters are rejected: such a key would alias a
// different path in the canonical string form.
func newNode(v any) (*node, error) {
	switch tv := v.(type) {
	case map[string]any:
		rec := make(map[string]*node, len(tv))
		for k, cv := range tv {
			if strings.ContainsAny(k, ".[]") {
				return nil, fmt.Errorf("record key %q contains a path delimiter", k)
			}
			c, err := newNode(cv)
			if err != nil {
				return nil, err
			}
			rec[k] = c
		}
		return &node{kind: recordNode, record: rec}, nil
	case []any:
		list := make([]*node, len(tv))
		for i, cv := range tv {
			c, err := newNode(cv)
			if err != nil {
				return nil, err
			}
			list[i] = c
		}
		return &node{kind: listNode, list: list}, nil
	default:
		return &node{kind: leafNode, leaf: v}, nil
	}
}

// materialize converts a subtree back into plain Go values.
func (n *node) materialize() any {
	switch n.kind {
	case recordNode:
		out := make(map[string]any, len(n.record))
		for k, c := range n.record {
			out[k] = c.materialize()
		}
		return out
	case listNode:
		out := make([]any, len(n.list))
		for i, c := range n.list {
			out[i] = c.materialize()
		}
		return out
	default:
		return n.leaf
	}
}

// child returns the child addressed by k, or nil.
func (n *node) child(k Key) *node {
	if k.IsIndex() {
		if n.kind != listNode {
			return nil
		}
		i := k.ListIndex()
		if i < 0 || i >= len(n.list) {
			return nil
		}
		return n.list[i]
	}
	if n.kind != recordNode {
		return nil
	}
	return n.record[k.FieldName()]
}

// resolve walks from n along path. A nil result with a non-nil error means
// the path no longer addresses a node.
func (n *node) resolve(path Path) (*node, error) {
	cur := n
	for _, k := range path {
		cur = cur.child(k)
		if cur == nil {
			return nil, &errors.StalePathError{Path: path.String()}
		}
	}
	return cur, nil
}

// sortedKeys returns a record's keys in deterministic order.
func (n *node) sortedKeys() []string {
	keys := make([]string, 0, len(n.record))
	for k := range n.record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// walkPaths visits every node in the subtree rooted at n, passing the path
// relative to base.
func (n *node) walkPaths(base Path, visit func(Path)) {
	visit(base)
	switch n.kind {
	case recordNode:
		for k, c := range n.record {
			c.walkPaths(base.Child(Field(k)), visit)
		}
	case listNode:
		for i, c := range n.list {
			c.walkPaths(base.Child(Index(i)), visit)
		}
	}
}
