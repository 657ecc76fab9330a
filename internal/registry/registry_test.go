package registry

import "testing"

type fakeEntry struct {
	name string
	base uintptr
}

func (f fakeEntry) ShortName() string { return f.name }
func (f fakeEntry) Base() uintptr     { return f.base }

func TestRegisterIdempotent(t *testing.T) {
	r := New()
	if !r.Register("libfoo.so", fakeEntry{"libfoo.so", 0x1000}) {
		t.Fatalf("first Register returned false")
	}
	if r.Register("libfoo.so", fakeEntry{"libfoo.so", 0x2000}) {
		t.Fatalf("second Register for the same name returned true")
	}
	e, ok := r.Get("libfoo.so")
	if !ok || e.Base() != 0x1000 {
		t.Fatalf("Get returned %+v, want the original entry", e)
	}
}

func TestAllInOrderPreservesLoadOrder(t *testing.T) {
	r := New()
	r.Register("a", fakeEntry{"a", 1})
	r.Register("b", fakeEntry{"b", 2})
	r.Register("c", fakeEntry{"c", 3})

	got := r.AllInOrder()
	if len(got) != 3 || got[0].ShortName() != "a" || got[1].ShortName() != "b" || got[2].ShortName() != "c" {
		t.Fatalf("AllInOrder = %v, want [a b c]", got)
	}
}

func TestUnregisterRemovesFromDebugList(t *testing.T) {
	r := New()
	r.Register("a", fakeEntry{"a", 1})
	r.Register("b", fakeEntry{"b", 2})
	r.Unregister("a")

	var names []string
	for n := r.DebugHead(); n != nil; n = n.Next {
		names = append(names, n.ShortName)
	}
	if len(names) != 1 || names[0] != "b" {
		t.Fatalf("debug list after Unregister = %v, want [b]", names)
	}
	if _, ok := r.Get("a"); ok {
		t.Fatalf("Get(a) succeeded after Unregister")
	}
}

func TestPromoteGlobal(t *testing.T) {
	r := New()
	r.Register("a", fakeEntry{"a", 1})
	r.Register("b", fakeEntry{"b", 2})
	r.PromoteGlobal("b")

	got := r.GlobalInOrder()
	if len(got) != 1 || got[0].ShortName() != "b" {
		t.Fatalf("GlobalInOrder = %v, want [b]", got)
	}
}
