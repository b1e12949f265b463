package view

import "testing"

func noopRender(RenderContext, Params) Node { return nil }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Definition{Name: "counter", Render: noopRender}); err != nil {
		t.Fatalf("register: %v", err)
	}
	def, ok := reg.Lookup("counter")
	if !ok {
		t.Fatal("expected counter to be registered")
	}
	if def.Name != "counter" {
		t.Errorf("unexpected definition %+v", def)
	}
	if _, ok := reg.Lookup("missing"); ok {
		t.Error("expected lookup miss")
	}
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Definition{Render: noopRender}); err == nil {
		t.Error("expected error for unnamed definition")
	}
	if err := reg.Register(Definition{Name: "n"}); err == nil {
		t.Error("expected error for definition without render")
	}
	reg.MustRegister(Definition{Name: "dup", Render: noopRender})
	if err := reg.Register(Definition{Name: "dup", Render: noopRender}); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewRegistry().MustRegister(Definition{})
}
