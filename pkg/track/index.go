package track

import (
	"sort"

	"github.com/go-reflow/reflow/pkg/state"
)

// trieNode is one level of the path trie. Watcher sets hold readers whose
// recorded path terminates at this node.
type trieNode struct {
	children map[string]*trieNode
	values   map[string]Reader
	shapes   map[string]Reader
}

func (n *trieNode) empty() bool {
	return len(n.children) == 0 && len(n.values) == 0 && len(n.shapes) == 0
}

// Index is the bidirectional mapping between paths and readers.
// Both directions are updated atomically per evaluation by diffing the
// old and new AccessRecord, never by a full rebuild.
type Index struct {
	root    *trieNode
	records map[string]*AccessRecord
	readers map[string]Reader
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		root:    newTrieNode(),
		records: make(map[string]*AccessRecord),
		readers: make(map[string]Reader),
	}
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// Commit replaces the reader's AccessRecord with rec, updating the trie
// with the difference between the two. Paths read last time but not this
// time are dropped so a write to them no longer reaches the reader.
func (idx *Index) Commit(r Reader, rec *AccessRecord) {
	id := r.ReaderID()
	old := idx.records[id]

	if old != nil {
		for key, p := range old.values {
			if _, still := rec.values[key]; !still {
				idx.removeWatcher(p, id, false)
			}
		}
		for key, p := range old.shapes {
			if _, still := rec.shapes[key]; !still {
				idx.removeWatcher(p, id, true)
			}
		}
	}
	for key, p := range rec.values {
		if old == nil || !hasKey(old.values, key) {
			idx.addWatcher(p, r, false)
		}
	}
	for key, p := range rec.shapes {
		if old == nil || !hasKey(old.shapes, key) {
			idx.addWatcher(p, r, true)
		}
	}

	idx.records[id] = rec
	idx.readers[id] = r
}

func hasKey(m map[string]state.Path, key string) bool {
	_, ok := m[key]
	return ok
}

// Remove purges every index entry for the reader. A removed reader must
// never be returned from Notify again; leaving entries behind is a
// correctness hazard, not just a leak.
func (idx *Index) Remove(r Reader) {
	id := r.ReaderID()
	old := idx.records[id]
	if old != nil {
		for _, p := range old.values {
			idx.removeWatcher(p, id, false)
		}
		for _, p := range old.shapes {
			idx.removeWatcher(p, id, true)
		}
	}
	delete(idx.records, id)
	delete(idx.readers, id)
}

// Record returns the reader's current AccessRecord, or nil.
func (idx *Index) Record(id string) *AccessRecord {
	return idx.records[id]
}

// Live reports whether the reader is currently indexed.
func (idx *Index) Live(id string) bool {
	_, ok := idx.readers[id]
	return ok
}

// Size returns the number of indexed readers.
func (idx *Index) Size() int {
	return len(idx.readers)
}

func (idx *Index) addWatcher(p state.Path, r Reader, shape bool) {
	cur := idx.root
	for _, k := range p {
		seg := k.String()
		next := cur.children[seg]
		if next == nil {
			next = newTrieNode()
			cur.children[seg] = next
		}
		cur = next
	}
	if shape {
		if cur.shapes == nil {
			cur.shapes = make(map[string]Reader)
		}
		cur.shapes[r.ReaderID()] = r
	} else {
		if cur.values == nil {
			cur.values = make(map[string]Reader)
		}
		cur.values[r.ReaderID()] = r
	}
}

func (idx *Index) removeWatcher(p state.Path, id string, shape bool) {
	type step struct {
		parent *trieNode
		seg    string
	}
	cur := idx.root
	steps := make([]step, 0, len(p))
	for _, k := range p {
		seg := k.String()
		next := cur.children[seg]
		if next == nil {
			return
		}
		steps = append(steps, step{cur, seg})
		cur = next
	}
	if shape {
		delete(cur.shapes, id)
	} else {
		delete(cur.values, id)
	}
	// Prune now-empty nodes bottom-up.
	for i := len(steps) - 1; i >= 0; i-- {
		child := steps[i].parent.children[steps[i].seg]
		if child == nil || !child.empty() {
			break
		}
		delete(steps[i].parent.children, steps[i].seg)
	}
}

// Notify resolves the set of readers affected by the changed paths.
//
// A reader is affected if a changed path equals, is a prefix of, or is a
// descendant of one of its value-read paths, or equals or is a descendant
// of one of its structural-read paths. The cost is proportional to the
// changed paths and the matched subtrees, never to the total reader count.
//
// The result is sorted by reader id for determinism; batch ordering
// (subscriptions before units, units ancestors-first) is the caller's job.
func (idx *Index) Notify(changes *state.ChangeSet) []Reader {
	affected := make(map[string]Reader)
	for _, p := range changes.Paths() {
		idx.notifyOne(p, affected)
	}
	out := make([]Reader, 0, len(affected))
	for _, r := range affected {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReaderID() < out[j].ReaderID()
	})
	return out
}

func (idx *Index) notifyOne(p state.Path, affected map[string]Reader) {
	cur := idx.root
	// Walk root -> p. Value reads terminating along the walk are ancestors
	// of (or equal to) the changed path; structural reads along the walk
	// cover containers whose shape the change is inside of.
	for _, k := range p {
		collect(cur.values, affected)
		collect(cur.shapes, affected)
		cur = cur.children[k.String()]
		if cur == nil {
			return
		}
	}
	collect(cur.values, affected)
	collect(cur.shapes, affected)
	// Everything below the changed path: value reads of descendants are
	// affected, structural reads of strict descendants are not.
	for _, child := range cur.children {
		collectSubtreeValues(child, affected)
	}
}

func collect(watchers map[string]Reader, affected map[string]Reader) {
	for id, r := range watchers {
		affected[id] = r
	}
}

func collectSubtreeValues(n *trieNode, affected map[string]Reader) {
	collect(n.values, affected)
	for _, child := range n.children {
		collectSubtreeValues(child, affected)
	}
}
