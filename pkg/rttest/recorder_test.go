package rttest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRecordingTarget_HandleNaming(t *testing.T) {
	r := NewRecordingTarget()
	if r.Root() != "root" {
		t.Fatalf("expected root handle, got %v", r.Root())
	}
	a := r.CreateNode("div", nil)
	b := r.CreateNode("span", map[string]any{"class": "x"})
	if a != "n1" || b != "n2" {
		t.Errorf("expected sequential handles, got %v %v", a, b)
	}

	r.SetText(b, "hi")
	r.InsertChild(r.Root(), a, 0)
	r.InsertChild(a, b, 0)
	want := []Command{
		{Op: "create", Node: "n1", Type: "div"},
		{Op: "create", Node: "n2", Type: "span", Value: map[string]any{"class": "x"}},
		{Op: "setText", Node: "n2", Text: "hi"},
		{Op: "insert", Node: "n1", Parent: "root"},
		{Op: "insert", Node: "n2", Parent: "n1"},
	}
	if diff := cmp.Diff(want, r.Commands()); diff != "" {
		t.Errorf("command stream mismatch (-want +got):\n%s", diff)
	}
	if got := r.Violations(); len(got) != 0 {
		t.Errorf("unexpected violations: %v", got)
	}
}

func TestRecordingTarget_DeadHandleViolations(t *testing.T) {
	r := NewRecordingTarget()
	a := r.CreateNode("div", nil)
	r.InsertChild(r.Root(), a, 0)
	r.RemoveChild(r.Root(), a)

	r.SetText(a, "late")
	r.InsertChild(r.Root(), "n99", 0)
	if got := len(r.Violations()); got != 2 {
		t.Fatalf("expected 2 violations, got %d: %v", got, r.Violations())
	}
}

func TestRecordingTarget_ResetKeepsLiveness(t *testing.T) {
	r := NewRecordingTarget()
	a := r.CreateNode("div", nil)
	r.InsertChild(r.Root(), a, 0)
	r.Reset()

	if got := len(r.Commands()); got != 0 {
		t.Fatalf("expected an empty stream after reset, got %d commands", got)
	}
	r.SetText(a, "still live")
	if got := r.Violations(); len(got) != 0 {
		t.Errorf("reset invalidated a live handle: %v", got)
	}
	if r.CountOp("setText") != 1 || r.CountOp("create") != 0 {
		t.Errorf("unexpected counts after reset: %v", r.Ops())
	}
}
