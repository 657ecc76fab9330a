package jsresolver

import "testing"

func TestResolveByNameReturnsAddress(t *testing.T) {
	r, err := New(`function resolve(name) { if (name === "foo") { return 4096; } return undefined; }`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	addr, ok := r.ResolveByName("foo")
	if !ok || addr != 4096 {
		t.Fatalf("ResolveByName(foo) = (0x%x, %v), want (0x1000, true)", addr, ok)
	}

	if _, ok := r.ResolveByName("bar"); ok {
		t.Fatalf("ResolveByName(bar) resolved, want unresolved")
	}
}

func TestNewRejectsMissingResolve(t *testing.T) {
	if _, err := New(`function other() { return 1; }`); err == nil {
		t.Fatalf("New succeeded without a top-level resolve function")
	}
}

func TestSetGlobalVisibleToScript(t *testing.T) {
	r, err := New(`function resolve(name) { return table[name]; }`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.SetGlobal("table", map[string]interface{}{"libc_malloc": int64(8192)}); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}

	addr, ok := r.ResolveByName("libc_malloc")
	if !ok || addr != 8192 {
		t.Fatalf("ResolveByName(libc_malloc) = (0x%x, %v), want (0x2000, true)", addr, ok)
	}
}
