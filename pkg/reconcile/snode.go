package reconcile

// TextType is the node type of text nodes in the structural tree.
const TextType = "#text"

// SNode is a node of the structural tree: the instance-free expansion of a
// user-defined tree, annotated with the target handle it is live under.
// This is what gets diffed for render-target mutations.
type SNode struct {
	// Type is the target node type; TextType for text nodes.
	Type string
	// Key is the explicit identity key, or nil.
	Key any
	// Attrs holds the resolved attribute values currently live on the
	// target. Value patches update it so later diffs stay exact.
	Attrs map[string]any
	// Text is the current text content for TextType nodes.
	Text string
	// Children are the ordered structural children.
	Children []*SNode

	// handle is the virtual handle the node is (or will be) live under.
	// Zero means not yet created.
	handle int64
}

// Mounted reports whether the node has been assigned a handle.
func (n *SNode) Mounted() bool {
	return n.handle != 0
}

// walk visits n and every descendant.
func (n *SNode) walk(visit func(*SNode)) {
	visit(n)
	for _, c := range n.Children {
		c.walk(visit)
	}
}

// FindParent locates the node within root whose child list contains
// target, returning it with target's index. Returns (nil, -1) when target
// is root itself or not in the tree. Identity is pointer identity.
func FindParent(root, target *SNode) (*SNode, int) {
	if root == nil || root == target {
		return nil, -1
	}
	for i, c := range root.Children {
		if c == target {
			return root, i
		}
		if p, j := FindParent(c, target); p != nil {
			return p, j
		}
	}
	return nil, -1
}
