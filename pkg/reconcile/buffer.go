package reconcile

type opCode uint8

const (
	opCreate opCode = iota
	opSetAttr
	opSetText
	opInsert
	opRemove
	opMove
	opRelease
)

// rootVirtual is the reserved virtual handle of the target root.
const rootVirtual int64 = 0

type op struct {
	code   opCode
	node   int64
	parent int64
	typ    string
	attrs  map[string]any
	key    string
	value  any
	text   string
	index  int
}

// Emitter owns the virtual→real handle mapping and replays buffered
// command streams against the target. The mapping persists across batches;
// matched nodes keep their handles for the lifetime of the mounted tree.
type Emitter struct {
	target Target
	real   map[int64]Handle
	next   int64
}

// NewEmitter wraps a target.
func NewEmitter(t Target) *Emitter {
	return &Emitter{
		target: t,
		real:   map[int64]Handle{rootVirtual: t.Root()},
		next:   1,
	}
}

// Begin starts a new command buffer for one batch.
func (e *Emitter) Begin() *Buffer {
	return &Buffer{emitter: e}
}

// Flush replays the buffer against the target in order.
func (e *Emitter) Flush(b *Buffer) {
	for _, o := range b.ops {
		switch o.code {
		case opCreate:
			e.real[o.node] = e.target.CreateNode(o.typ, o.attrs)
		case opSetAttr:
			e.target.SetAttribute(e.real[o.node], o.key, o.value)
		case opSetText:
			e.target.SetText(e.real[o.node], o.text)
		case opInsert:
			e.target.InsertChild(e.real[o.parent], e.real[o.node], o.index)
		case opRemove:
			e.target.RemoveChild(e.real[o.parent], e.real[o.node])
		case opMove:
			e.target.MoveChild(e.real[o.parent], e.real[o.node], o.index)
		case opRelease:
			delete(e.real, o.node)
		}
	}
	b.ops = nil
}

// Buffer stages the command stream of one batch. Nothing reaches the
// target until the emitter flushes it.
type Buffer struct {
	emitter *Emitter
	ops     []op
}

// Len returns the number of staged commands, excluding handle releases.
func (b *Buffer) Len() int {
	n := 0
	for _, o := range b.ops {
		if o.code != opRelease {
			n++
		}
	}
	return n
}

func (b *Buffer) parentHandle(parent *SNode) int64 {
	if parent == nil {
		return rootVirtual
	}
	return parent.handle
}

// CreateSubtree assigns handles to n and its descendants and stages their
// creation. The subtree is left detached; stage an insert to attach it.
func (b *Buffer) CreateSubtree(n *SNode) {
	n.handle = b.emitter.next
	b.emitter.next++
	b.ops = append(b.ops, op{code: opCreate, node: n.handle, typ: n.Type, attrs: copyAttrs(n.Attrs)})
	if n.Type == TextType && n.Text != "" {
		b.ops = append(b.ops, op{code: opSetText, node: n.handle, text: n.Text})
	}
	for i, c := range n.Children {
		b.CreateSubtree(c)
		b.ops = append(b.ops, op{code: opInsert, node: c.handle, parent: n.handle, index: i})
	}
}

// createWrapper stages creation of n and its children except the child at
// skip, which is adopted from the previous tree and inserted separately.
// Later siblings stage at one position short so the adopted insert at skip
// lands between them.
func (b *Buffer) createWrapper(n *SNode, skip int) {
	n.handle = b.emitter.next
	b.emitter.next++
	b.ops = append(b.ops, op{code: opCreate, node: n.handle, typ: n.Type, attrs: copyAttrs(n.Attrs)})
	for i, c := range n.Children {
		if i == skip {
			continue
		}
		pos := i
		if i > skip {
			pos = i - 1
		}
		b.CreateSubtree(c)
		b.ops = append(b.ops, op{code: opInsert, node: c.handle, parent: n.handle, index: pos})
	}
}

// removeReleasingExcept stages detaching child and releases its subtree's
// handles, except the subtree rooted at keep, which moved elsewhere.
func (b *Buffer) removeReleasingExcept(parent, child, keep *SNode) {
	b.ops = append(b.ops, op{code: opRemove, node: child.handle, parent: b.parentHandle(parent)})
	var release func(n *SNode)
	release = func(n *SNode) {
		if n == keep {
			return
		}
		b.ops = append(b.ops, op{code: opRelease, node: n.handle})
		for _, c := range n.Children {
			release(c)
		}
	}
	release(child)
}

// SetAttribute stages an attribute update and keeps the node's cached
// attribute map in sync.
func (b *Buffer) SetAttribute(n *SNode, key string, value any) {
	if value == nil {
		delete(n.Attrs, key)
	} else {
		if n.Attrs == nil {
			n.Attrs = make(map[string]any)
		}
		n.Attrs[key] = value
	}
	b.ops = append(b.ops, op{code: opSetAttr, node: n.handle, key: key, value: value})
}

// SetText stages a text update and keeps the node's cached text in sync.
func (b *Buffer) SetText(n *SNode, text string) {
	n.Text = text
	b.ops = append(b.ops, op{code: opSetText, node: n.handle, text: text})
}

// InsertChild stages attaching child under parent (nil parent = target root).
func (b *Buffer) InsertChild(parent, child *SNode, index int) {
	b.ops = append(b.ops, op{code: opInsert, node: child.handle, parent: b.parentHandle(parent), index: index})
}

// RemoveChild stages detaching child and releases the subtree's handles.
func (b *Buffer) RemoveChild(parent, child *SNode) {
	b.ops = append(b.ops, op{code: opRemove, node: child.handle, parent: b.parentHandle(parent)})
	child.walk(func(n *SNode) {
		b.ops = append(b.ops, op{code: opRelease, node: n.handle})
	})
}

// MoveChild stages reordering child under parent.
func (b *Buffer) MoveChild(parent, child *SNode, newIndex int) {
	b.ops = append(b.ops, op{code: opMove, node: child.handle, parent: b.parentHandle(parent), index: newIndex})
}

func copyAttrs(attrs map[string]any) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
