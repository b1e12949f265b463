package runtime

import "github.com/go-reflow/reflow/pkg/lifecycle"

// InstanceInfo is a point-in-time description of one mounted unit.
type InstanceInfo struct {
	ID    string
	Type  string
	Key   any
	Depth int
	Phase string
	// ValuePaths and ShapePaths count the paths the unit's own view
	// function read during its last evaluation. Subscription reads are
	// accounted to the subscriptions, not here.
	ValuePaths int
	ShapePaths int
	Children   []InstanceInfo
}

// Snapshot is a diagnostic view of the runtime's composition tree and
// batch counters.
type Snapshot struct {
	Root           *InstanceInfo
	IndexedReaders int
	Stats          Stats
}

// Snapshot captures the current composition tree for inspection. It does
// not track reads or mutate anything.
func (rt *Runtime) Snapshot() Snapshot {
	snap := Snapshot{
		IndexedReaders: rt.index.Size(),
		Stats:          rt.stats,
	}
	if rt.root != nil {
		info := rt.describe(rt.root)
		snap.Root = &info
	}
	return snap
}

func (rt *Runtime) describe(inst *lifecycle.Instance) InstanceInfo {
	info := InstanceInfo{
		ID:    inst.ID(),
		Type:  inst.UnitType(),
		Key:   inst.Key(),
		Depth: inst.Depth(),
		Phase: inst.Phase().String(),
	}
	if rec := rt.index.Record(inst.ReaderID()); rec != nil {
		info.ValuePaths = len(rec.Values())
		info.ShapePaths = len(rec.Shapes())
	}
	for _, c := range inst.Children() {
		info.Children = append(info.Children, rt.describe(c))
	}
	return info
}
