package state

// ChangeSet is the set of paths affected by a single write, deduplicated
// by canonical string form.
type ChangeSet struct {
	paths []Path
	seen  map[string]struct{}
}

// NewChangeSet returns an empty change set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{seen: make(map[string]struct{})}
}

// Add inserts a path unless an equal path is already present.
func (c *ChangeSet) Add(p Path) {
	key := p.String()
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.paths = append(c.paths, p)
}

// Contains reports whether an equal path is present.
func (c *ChangeSet) Contains(p Path) bool {
	_, ok := c.seen[p.String()]
	return ok
}

// Paths returns the changed paths in insertion order.
func (c *ChangeSet) Paths() []Path {
	return c.paths
}

// Len returns the number of distinct changed paths.
func (c *ChangeSet) Len() int {
	return len(c.paths)
}
