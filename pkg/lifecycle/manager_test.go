package lifecycle_test

import (
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	rerrors "github.com/go-reflow/reflow/pkg/errors"
	"github.com/go-reflow/reflow/pkg/lifecycle"
	"github.com/go-reflow/reflow/pkg/reconcile"
	"github.com/go-reflow/reflow/pkg/state"
	"github.com/go-reflow/reflow/pkg/track"
	"github.com/go-reflow/reflow/pkg/view"
)

type silentHandler struct{}

func (silentHandler) HandleError(*rerrors.ReflowError) {}
func (silentHandler) HandleEvaluationError(*rerrors.EvaluationError) {}

type fixture struct {
	store *state.Store
	index *track.Index
	reg   *view.Registry
	mgr   *lifecycle.Manager
	log   []string
}

func newFixture(t *testing.T, doc map[string]any) *fixture {
	t.Helper()
	rerrors.SetHandler(silentHandler{})
	t.Cleanup(func() { rerrors.SetHandler(nil) })
	f := &fixture{
		store: state.NewStore(doc),
		index: track.NewIndex(),
		reg:   view.NewRegistry(),
	}
	f.mgr = lifecycle.NewManager(f.store, f.index, f.reg)
	return f
}

func (f *fixture) logf(entry string) { f.log = append(f.log, entry) }

func (f *fixture) write(t *testing.T, path string, v any) {
	t.Helper()
	if _, err := f.store.Write(state.MustParsePath(path), v); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestManager_MountRunsHookBeforeRender(t *testing.T) {
	f := newFixture(t, map[string]any{"greeting": "hi"})
	f.reg.MustRegister(view.Definition{
		Name: "hello",
		Render: func(ctx view.RenderContext, _ view.Params) view.Node {
			f.logf("render")
			v, _ := ctx.Get(state.MustParsePath("greeting"))
			return view.Text{Value: v}
		},
		OnMount: func(view.Params) { f.logf("mount") },
	})

	inst, err := f.mgr.Mount(nil, "hello", nil, nil, 1)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if diff := cmp.Diff([]string{"mount", "render"}, f.log); diff != "" {
		t.Errorf("hook order mismatch (-want +got):\n%s", diff)
	}
	if inst.Phase() != lifecycle.PhaseMounted {
		t.Errorf("expected mounted phase, got %s", inst.Phase())
	}
	root := inst.Root()
	if root == nil || root.Type != reconcile.TextType || root.Text != "hi" {
		t.Errorf("unexpected root %+v", root)
	}
}

func TestManager_MountUnknownType(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.mgr.Mount(nil, "nope", nil, nil, 1)
	var re *rerrors.ReflowError
	if !stderrors.As(err, &re) || re.Kind != rerrors.KindLifecycle {
		t.Fatalf("expected lifecycle error, got %v", err)
	}
}

func TestManager_BindCreatesSubscription(t *testing.T) {
	f := newFixture(t, map[string]any{"count": 1})
	f.reg.MustRegister(view.Definition{
		Name: "counter",
		Render: func(view.RenderContext, view.Params) view.Node {
			return view.Structural{
				Type:     "div",
				Attrs:    map[string]any{"data-count": view.BindPath("count")},
				Children: []view.Node{view.Text{Value: view.BindPath("count")}},
			}
		},
	})

	inst, err := f.mgr.Mount(nil, "counter", nil, nil, 1)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	// One unit reader plus two value-subscriptions.
	if got := f.index.Size(); got != 3 {
		t.Errorf("expected 3 indexed readers, got %d", got)
	}
	root := inst.Root()
	if root.Attrs["data-count"] != 1 {
		t.Errorf("bind should resolve to the current value, got %v", root.Attrs["data-count"])
	}
	if root.Children[0].Text != "1" {
		t.Errorf("bound text should format the value, got %q", root.Children[0].Text)
	}
}

func registerOrderedParent(f *fixture) {
	f.reg.MustRegister(view.Definition{
		Name: "parent",
		Render: func(ctx view.RenderContext, _ view.Params) view.Node {
			order, _ := ctx.Get(state.MustParsePath("order"))
			children := make([]view.Node, 0, 2)
			for _, r := range order.(string) {
				key := string(r)
				children = append(children, view.Unit{
					Type:   "child",
					Key:    key,
					Params: view.Params{"label": key},
				})
			}
			return view.Structural{Type: "div", Children: children}
		},
	})
	f.reg.MustRegister(view.Definition{
		Name: "child",
		Render: func(_ view.RenderContext, params view.Params) view.Node {
			return view.Text{Value: params["label"]}
		},
		OnMount:   func(p view.Params) { f.logf("mount " + p["label"].(string)) },
		OnUnmount: func(p view.Params) { f.logf("unmount " + p["label"].(string)) },
	})
}

func TestManager_KeyedIdentitySurvivesReorder(t *testing.T) {
	f := newFixture(t, map[string]any{"order": "ab"})
	registerOrderedParent(f)

	parent, err := f.mgr.Mount(nil, "parent", nil, nil, 1)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	before := parent.Children()
	if len(before) != 2 {
		t.Fatalf("expected 2 children, got %d", len(before))
	}
	idA, idB := before[0].ID(), before[1].ID()

	f.log = nil
	f.write(t, "order", "ba")
	if _, err := f.mgr.Render(parent, 2); err != nil {
		t.Fatalf("render: %v", err)
	}

	after := parent.Children()
	if after[0].ID() != idB || after[1].ID() != idA {
		t.Error("keyed children should keep their instances across reorder")
	}
	if len(f.log) != 0 {
		t.Errorf("reorder should not run mount/unmount hooks: %v", f.log)
	}
}

func TestManager_UnclaimedChildIsUnmounted(t *testing.T) {
	f := newFixture(t, map[string]any{"order": "ab"})
	registerOrderedParent(f)

	parent, err := f.mgr.Mount(nil, "parent", nil, nil, 1)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	sizeBefore := f.index.Size()

	f.log = nil
	f.write(t, "order", "a")
	if _, err := f.mgr.Render(parent, 2); err != nil {
		t.Fatalf("render: %v", err)
	}

	if diff := cmp.Diff([]string{"unmount b"}, f.log); diff != "" {
		t.Errorf("hook log mismatch (-want +got):\n%s", diff)
	}
	if len(parent.Children()) != 1 {
		t.Errorf("expected 1 child, got %d", len(parent.Children()))
	}
	if got := f.index.Size(); got != sizeBefore-1 {
		t.Errorf("expected index to drop the unmounted reader: %d -> %d", sizeBefore, got)
	}
}

func TestManager_OnUpdateSeesOldAndNewParams(t *testing.T) {
	f := newFixture(t, map[string]any{"label": "one"})
	var gotOld, gotNew view.Params
	f.reg.MustRegister(view.Definition{
		Name: "parent",
		Render: func(ctx view.RenderContext, _ view.Params) view.Node {
			label, _ := ctx.Get(state.MustParsePath("label"))
			return view.Unit{Type: "child", Params: view.Params{"label": label}}
		},
	})
	f.reg.MustRegister(view.Definition{
		Name:     "child",
		Render:   func(_ view.RenderContext, p view.Params) view.Node { return view.Text{Value: p["label"]} },
		OnUpdate: func(old, next view.Params) { gotOld, gotNew = old, next },
	})

	parent, err := f.mgr.Mount(nil, "parent", nil, nil, 1)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	f.write(t, "label", "two")
	if _, err := f.mgr.Render(parent, 2); err != nil {
		t.Fatalf("render: %v", err)
	}

	if gotOld["label"] != "one" || gotNew["label"] != "two" {
		t.Errorf("unexpected params: old=%v new=%v", gotOld, gotNew)
	}
	child := parent.Children()[0]
	if child.Root().Text != "two" {
		t.Errorf("child should re-render with new params, got %q", child.Root().Text)
	}
}

func TestManager_UnkeyedTypeChangeRemounts(t *testing.T) {
	f := newFixture(t, map[string]any{"which": "a"})
	f.reg.MustRegister(view.Definition{
		Name: "parent",
		Render: func(ctx view.RenderContext, _ view.Params) view.Node {
			which, _ := ctx.Get(state.MustParsePath("which"))
			return view.Unit{Type: which.(string)}
		},
	})
	f.reg.MustRegister(view.Definition{
		Name:      "a",
		Render:    func(view.RenderContext, view.Params) view.Node { return view.Text{Value: "a"} },
		OnUnmount: func(view.Params) { f.logf("unmount a") },
	})
	f.reg.MustRegister(view.Definition{
		Name:    "b",
		Render:  func(view.RenderContext, view.Params) view.Node { return view.Text{Value: "b"} },
		OnMount: func(view.Params) { f.logf("mount b") },
	})

	parent, err := f.mgr.Mount(nil, "parent", nil, nil, 1)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	f.log = nil
	f.write(t, "which", "b")
	if _, err := f.mgr.Render(parent, 2); err != nil {
		t.Fatalf("render: %v", err)
	}
	if diff := cmp.Diff([]string{"mount b", "unmount a"}, f.log); diff != "" {
		t.Errorf("hook log mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_PanicBecomesEvaluationError(t *testing.T) {
	f := newFixture(t, map[string]any{"explode": false, "v": "ok"})
	f.reg.MustRegister(view.Definition{
		Name: "fragile",
		Render: func(ctx view.RenderContext, _ view.Params) view.Node {
			explode, _ := ctx.Get(state.MustParsePath("explode"))
			if explode.(bool) {
				panic("kaboom")
			}
			v, _ := ctx.Get(state.MustParsePath("v"))
			return view.Text{Value: v}
		},
	})

	inst, err := f.mgr.Mount(nil, "fragile", nil, nil, 1)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	oldRoot := inst.Root()

	f.write(t, "explode", true)
	_, err = f.mgr.Render(inst, 2)
	var ee *rerrors.EvaluationError
	if !stderrors.As(err, &ee) {
		t.Fatalf("expected EvaluationError, got %v", err)
	}
	if ee.Recovered != "kaboom" {
		t.Errorf("expected recovered panic value, got %v", ee.Recovered)
	}
	if ee.StackTrace == "" {
		t.Error("expected a captured stack trace")
	}
	if inst.Root() != oldRoot {
		t.Error("failed render must retain the previous fragment")
	}
	if !inst.Mounted() {
		t.Error("failed render must not unmount the instance")
	}
}

func registerFragileChild(f *fixture, parentHandles bool) {
	f.reg.MustRegister(view.Definition{
		Name: "boundary",
		Render: func(view.RenderContext, view.Params) view.Node {
			return view.Structural{Type: "div", Children: []view.Node{view.Unit{Type: "fragile"}}}
		},
		OnError: func(err *rerrors.EvaluationError) bool {
			f.logf("captured " + err.Unit)
			return parentHandles
		},
	})
	f.reg.MustRegister(view.Definition{
		Name: "fragile",
		Render: func(ctx view.RenderContext, _ view.Params) view.Node {
			explode, _ := ctx.Get(state.MustParsePath("explode"))
			if explode.(bool) {
				panic("kaboom")
			}
			return view.Text{Value: "fine"}
		},
	})
}

func TestManager_AncestorCapturesChildFailure(t *testing.T) {
	f := newFixture(t, map[string]any{"explode": false})
	registerFragileChild(f, true)

	parent, err := f.mgr.Mount(nil, "boundary", nil, nil, 1)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	childRoot := parent.Children()[0].Root()

	f.write(t, "explode", true)
	if _, err := f.mgr.Render(parent, 2); err != nil {
		t.Fatalf("captured failure should not fail the parent render: %v", err)
	}
	if diff := cmp.Diff([]string{"captured fragile"}, f.log); diff != "" {
		t.Errorf("capture log mismatch (-want +got):\n%s", diff)
	}
	child := parent.Children()[0]
	if child.Root() != childRoot {
		t.Error("captured failure must retain the child's previous fragment")
	}
	if !child.Mounted() {
		t.Error("captured failure must keep the child mounted")
	}
}

func TestManager_UncapturedChildFailureEscalates(t *testing.T) {
	f := newFixture(t, map[string]any{"explode": false})
	registerFragileChild(f, false)

	parent, err := f.mgr.Mount(nil, "boundary", nil, nil, 1)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	f.write(t, "explode", true)
	_, err = f.mgr.Render(parent, 2)
	if err == nil {
		t.Fatal("expected the failure to escalate")
	}
	if !lifecycle.IsEscalated(err) {
		t.Errorf("expected an escalated error, got %T", err)
	}
	var ee *rerrors.EvaluationError
	if !stderrors.As(err, &ee) || ee.Unit != "fragile" {
		t.Errorf("expected the original evaluation error, got %v", err)
	}
}

func TestManager_DuplicateUnitKeysFailFast(t *testing.T) {
	f := newFixture(t, nil)
	f.reg.MustRegister(view.Definition{
		Name: "parent",
		Render: func(view.RenderContext, view.Params) view.Node {
			return view.Structural{Type: "div", Children: []view.Node{
				view.Unit{Type: "child", Key: "dup"},
				view.Unit{Type: "child", Key: "dup"},
			}}
		},
	})
	f.reg.MustRegister(view.Definition{
		Name:   "child",
		Render: func(view.RenderContext, view.Params) view.Node { return nil },
	})

	_, err := f.mgr.Mount(nil, "parent", nil, nil, 1)
	var dup *rerrors.DuplicateKeyError
	if !stderrors.As(err, &dup) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}
}

func TestManager_UnmountIsRecursiveAndPurgesIndex(t *testing.T) {
	f := newFixture(t, map[string]any{"order": "ab"})
	registerOrderedParent(f)

	parent, err := f.mgr.Mount(nil, "parent", nil, nil, 1)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	f.log = nil

	f.mgr.Unmount(parent)
	if parent.Mounted() {
		t.Error("parent should be unmounted")
	}
	if got := f.index.Size(); got != 0 {
		t.Errorf("expected an empty index, got %d readers", got)
	}
	if diff := cmp.Diff([]string{"unmount a", "unmount b"}, f.log); diff != "" {
		t.Errorf("hook log mismatch (-want +got):\n%s", diff)
	}
	// Idempotent.
	f.mgr.Unmount(parent)
}

func TestManager_NilRootIsValid(t *testing.T) {
	f := newFixture(t, nil)
	f.reg.MustRegister(view.Definition{
		Name:   "empty",
		Render: func(view.RenderContext, view.Params) view.Node { return nil },
	})
	inst, err := f.mgr.Mount(nil, "empty", nil, nil, 1)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if inst.Root() != nil {
		t.Errorf("expected nil root, got %+v", inst.Root())
	}
}
