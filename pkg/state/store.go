// Package state implements the path-tracked state tree.
//
// A Store holds a tree of containers (lists and records) and leaves.
// Every read performed while a Recorder is active is recorded against it,
// split into value reads and structural (shape-only) reads. Writes return
// the ChangeSet of paths the write affected, including descendant paths
// that no longer resolve after a shape change.
package state

import (
	"fmt"

	"github.com/go-reflow/reflow/pkg/errors"
)

// Recorder receives the reads performed during one tracked evaluation.
// It is implemented by track.AccessRecord.
type Recorder interface {
	// RecordValue records a read of a node's value.
	RecordValue(p Path)
	// RecordStructure records a shape-only read of a container
	// (its length or key set).
	RecordStructure(p Path)
}

// Store is the path-tracked state tree. It is not safe for concurrent use;
// the runtime mutates it only on its single logical thread.
type Store struct {
	root      *node
	recorders []Recorder
}

// NewStore builds a store from a plain Go value. Maps become records,
// slices become lists, everything else is a leaf. Record keys must be
// valid field names; NewStore panics on keys containing path delimiters,
// like MustParsePath on malformed input.
func NewStore(initial any) *Store {
	root, err := newNode(initial)
	if err != nil {
		panic("state: invalid initial state: " + err.Error())
	}
	return &Store{root: root}
}

// Track runs fn with r as the active recorder. Recorders nest: reads go to
// the innermost active recorder only, so a unit evaluated while expanding
// its parent's output records against itself, not the parent. The recorder
// is popped on every exit path, including panics.
func (s *Store) Track(r Recorder, fn func() error) error {
	s.recorders = append(s.recorders, r)
	defer func() {
		s.recorders = s.recorders[:len(s.recorders)-1]
	}()
	return fn()
}

func (s *Store) active() Recorder {
	if len(s.recorders) == 0 {
		return nil
	}
	return s.recorders[len(s.recorders)-1]
}

// Read returns the value at p, recording a value read against the active
// recorder. Containers are materialized into plain maps/slices.
func (s *Store) Read(p Path) (any, error) {
	n, err := s.root.resolve(p)
	if err != nil {
		return nil, err
	}
	if r := s.active(); r != nil {
		r.RecordValue(p)
	}
	return n.materialize(), nil
}

// Peek returns the value at p without recording a read.
func (s *Store) Peek(p Path) (any, error) {
	n, err := s.root.resolve(p)
	if err != nil {
		return nil, err
	}
	return n.materialize(), nil
}

// Keys returns a record's keys in deterministic order, recording a
// structural read against the active recorder.
func (s *Store) Keys(p Path) ([]string, error) {
	n, err := s.root.resolve(p)
	if err != nil {
		return nil, err
	}
	if n.kind != recordNode {
		return nil, &errors.ReflowError{
			Op:   "state.Store.Keys",
			Kind: errors.KindState,
			Path: p.String(),
			Err:  fmt.Errorf("node is not a record"),
		}
	}
	if r := s.active(); r != nil {
		r.RecordStructure(p)
	}
	return n.sortedKeys(), nil
}

// Len returns a container's size, recording a structural read against the
// active recorder.
func (s *Store) Len(p Path) (int, error) {
	n, err := s.root.resolve(p)
	if err != nil {
		return 0, err
	}
	var size int
	switch n.kind {
	case listNode:
		size = len(n.list)
	case recordNode:
		size = len(n.record)
	default:
		return 0, &errors.ReflowError{
			Op:   "state.Store.Len",
			Kind: errors.KindState,
			Path: p.String(),
			Err:  fmt.Errorf("node is not a container"),
		}
	}
	if r := s.active(); r != nil {
		r.RecordStructure(p)
	}
	return size, nil
}

// Write replaces the node at p with v. Writing a new field into a record
// creates it. The returned ChangeSet holds p plus every descendant path of
// the previous subtree that no longer resolves in the new one.
func (s *Store) Write(p Path, v any) (*ChangeSet, error) {
	changes := NewChangeSet()
	replacement, err := newNode(v)
	if err != nil {
		return nil, &errors.ReflowError{
			Op:   "state.Store.Write",
			Kind: errors.KindState,
			Path: p.String(),
			Err:  err,
		}
	}

	if len(p) == 0 {
		old := s.root
		s.root = replacement
		changes.Add(p)
		addDeadDescendants(changes, old, replacement, p)
		return changes, nil
	}

	parent, err := s.root.resolve(p[:len(p)-1])
	if err != nil {
		return nil, err
	}
	last := p[len(p)-1]
	old := parent.child(last)

	if last.IsIndex() {
		if parent.kind != listNode || old == nil {
			return nil, &errors.StalePathError{Path: p.String()}
		}
		parent.list[last.ListIndex()] = replacement
	} else {
		if parent.kind != recordNode {
			return nil, &errors.StalePathError{Path: p.String()}
		}
		if parent.record == nil {
			parent.record = make(map[string]*node)
		}
		parent.record[last.FieldName()] = replacement
	}

	changes.Add(p)
	if old != nil {
		addDeadDescendants(changes, old, replacement, p)
	}
	return changes, nil
}

// Remove deletes the node at p from its parent container. List removal
// shifts later siblings, so their paths (and everything under them) join
// the change set.
func (s *Store) Remove(p Path) (*ChangeSet, error) {
	if len(p) == 0 {
		return nil, &errors.ReflowError{
			Op:   "state.Store.Remove",
			Kind: errors.KindState,
			Err:  fmt.Errorf("cannot remove the root"),
		}
	}
	parent, err := s.root.resolve(p[:len(p)-1])
	if err != nil {
		return nil, err
	}
	last := p[len(p)-1]
	changes := NewChangeSet()

	if last.IsIndex() {
		if parent.kind != listNode {
			return nil, &errors.StalePathError{Path: p.String()}
		}
		i := last.ListIndex()
		if i < 0 || i >= len(parent.list) {
			return nil, &errors.StalePathError{Path: p.String()}
		}
		parentPath := p[:len(p)-1]
		for j := i; j < len(parent.list); j++ {
			parent.list[j].walkPaths(parentPath.Child(Index(j)), changes.Add)
		}
		parent.list = append(parent.list[:i], parent.list[i+1:]...)
		return changes, nil
	}

	if parent.kind != recordNode {
		return nil, &errors.StalePathError{Path: p.String()}
	}
	old, ok := parent.record[last.FieldName()]
	if !ok {
		return nil, &errors.StalePathError{Path: p.String()}
	}
	old.walkPaths(p, changes.Add)
	delete(parent.record, last.FieldName())
	return changes, nil
}

// Append adds a new element to the list at p and returns the element's
// path in the change set. Structural readers of p are affected via the
// descendant rule.
func (s *Store) Append(p Path, v any) (*ChangeSet, error) {
	n, err := s.root.resolve(p)
	if err != nil {
		return nil, err
	}
	if n.kind != listNode {
		return nil, &errors.ReflowError{
			Op:   "state.Store.Append",
			Kind: errors.KindState,
			Path: p.String(),
			Err:  fmt.Errorf("node is not a list"),
		}
	}
	added, err := newNode(v)
	if err != nil {
		return nil, &errors.ReflowError{
			Op:   "state.Store.Append",
			Kind: errors.KindState,
			Path: p.String(),
			Err:  err,
		}
	}
	elem := p.Child(Index(len(n.list)))
	n.list = append(n.list, added)
	changes := NewChangeSet()
	changes.Add(elem)
	return changes, nil
}

// addDeadDescendants walks the replaced subtree and adds every old path
// that does not resolve in the replacement.
func addDeadDescendants(changes *ChangeSet, old, replacement *node, base Path) {
	old.walkPaths(base, func(p Path) {
		if len(p) == len(base) {
			return
		}
		rel := p[len(base):]
		if _, err := replacement.resolve(rel); err != nil {
			changes.Add(p)
		}
	})
}
