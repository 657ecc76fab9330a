package tlsmgr

import (
	"testing"
	"unsafe"
)

func TestGetAddrZeroFillsAndCopiesImage(t *testing.T) {
	image := []byte{0xaa, 0xbb, 0xcc}
	m := New(0)
	mod := m.Register(uintptr(unsafe.Pointer(&image[0])), uintptr(len(image)), 16, 8)

	addr, err := m.GetAddr(mod.ID, 0)
	if err != nil {
		t.Fatalf("GetAddr: %v", err)
	}
	got := unsafe.Slice((*byte)(unsafe.Pointer(addr)), 16)
	if got[0] != 0xaa || got[1] != 0xbb || got[2] != 0xcc {
		t.Fatalf("got %v, want [aa bb cc]", got[:3])
	}
	for i, b := range got[3:] {
		if b != 0 {
			t.Fatalf("byte %d past the image = 0x%x, want 0", 3+i, b)
		}
	}
}

func TestGetAddrSameThreadReusesBlock(t *testing.T) {
	m := New(0)
	mod := m.Register(0, 0, 16, 8)

	a1, err := m.GetAddr(mod.ID, 0)
	if err != nil {
		t.Fatalf("GetAddr: %v", err)
	}
	a2, err := m.GetAddr(mod.ID, 0)
	if err != nil {
		t.Fatalf("GetAddr: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("GetAddr returned different blocks for the same thread: 0x%x != 0x%x", a1, a2)
	}
}

func TestGetAddrUnknownModule(t *testing.T) {
	m := New(0)
	if _, err := m.GetAddr(999, 0); err == nil {
		t.Fatalf("GetAddr succeeded for an unregistered module")
	}
}

func TestGetAddrAddsBackDTVOffset(t *testing.T) {
	m := New(0x800)
	mod := m.Register(0, 0, 64, 8)

	addr, err := m.GetAddr(mod.ID, 4)
	if err != nil {
		t.Fatalf("GetAddr: %v", err)
	}
	base, err := m.blockFor(mod.ID)
	if err != nil {
		t.Fatalf("blockFor: %v", err)
	}
	if addr != base+4+0x800 {
		t.Fatalf("GetAddr = 0x%x, want block base + offset + dtvOffset = 0x%x", addr, base+4+0x800)
	}
}

func TestDispatcherMatchesGetAddr(t *testing.T) {
	m := New(0)
	mod := m.Register(0, 0, 8, 8)

	idx := tlsIndex{Module: mod.ID, Offset: 4}
	got := m.Dispatcher()(uintptr(unsafe.Pointer(&idx)))

	want, err := m.GetAddr(mod.ID, 4)
	if err != nil {
		t.Fatalf("GetAddr: %v", err)
	}
	if got != want {
		t.Fatalf("Dispatcher() = 0x%x, want 0x%x", got, want)
	}
}
