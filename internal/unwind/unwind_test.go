package unwind

import "testing"

func TestRegistryFindRespectsTextRange(t *testing.T) {
	r := NewRegistry(DummyBackend{})
	r.Register(Info{EHFrameHdr: 1, TextBase: 0x1000, TextLen: 0x100})

	if _, _, ok := r.Find(0x1050); ok {
		t.Fatalf("Find succeeded against DummyBackend, which never resolves an FDE")
	}
	if _, _, ok := r.Find(0x5000); ok {
		t.Fatalf("Find matched a pc outside every registered text range")
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry(DummyBackend{})
	r.Register(Info{EHFrameHdr: 1, TextBase: 0x1000, TextLen: 0x100})
	r.Unregister(1)

	if len(r.entries) != 0 {
		t.Fatalf("entries after Unregister = %d, want 0", len(r.entries))
	}
}
