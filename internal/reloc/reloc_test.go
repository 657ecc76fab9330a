package reloc

import (
	"testing"
	"unsafe"
)

type mapResolver map[uint32]ResolvedSymbol

func (m mapResolver) Resolve(idx uint32) (ResolvedSymbol, bool) {
	s, ok := m[idx]
	return s, ok
}

func TestApplyRelative(t *testing.T) {
	var target uint64
	entry := Entry{Offset: uint64(uintptr(unsafe.Pointer(&target))), Type: rX8664Relative, Addend: 0x42}
	arch := X86_64()

	unresolved, err := Apply([]Entry{entry}, arch, 0x1000, mapResolver{}, nil, "test", nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(unresolved) != 0 {
		t.Fatalf("unresolved = %v, want none", unresolved)
	}
	if target != 0x1000+0x42 {
		t.Errorf("target = 0x%x, want 0x%x", target, 0x1000+0x42)
	}
}

func TestApplyGlobDatUnresolvedThenRetry(t *testing.T) {
	var target uint64
	entry := Entry{Offset: uint64(uintptr(unsafe.Pointer(&target))), Type: rX8664JumpSlot, Sym: 7}
	arch := X86_64()

	resolver := mapResolver{}
	if err := ApplyWithRetry([]Entry{entry}, arch, 0, resolver, nil, "test", nil); err == nil {
		t.Fatalf("ApplyWithRetry succeeded with no resolver entry for sym 7")
	}

	resolver[7] = ResolvedSymbol{Value: 0xdead}
	if err := ApplyWithRetry([]Entry{entry}, arch, 0, resolver, nil, "test", nil); err != nil {
		t.Fatalf("ApplyWithRetry: %v", err)
	}
	if target != 0xdead {
		t.Errorf("target = 0x%x, want 0xdead", target)
	}
}

func TestApplyUnknownRelocationType(t *testing.T) {
	entry := Entry{Type: 0xbeef}
	_, err := Apply([]Entry{entry}, X86_64(), 0, mapResolver{}, nil, "test", nil)
	if err == nil {
		t.Fatalf("Apply accepted an unknown relocation type")
	}
}

func TestDecodeRela(t *testing.T) {
	buf := make([]byte, 24*2)
	writeRela(buf, 0, 0x1000, 8, 3, 0x42)   // type=8 (RELATIVE), sym=3
	writeRela(buf, 24, 0x2000, 7, 5, 0)

	entries := DecodeRela(uint64(uintptr(unsafe.Pointer(&buf[0]))), uint64(len(buf)))
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Offset != 0x1000 || entries[0].Type != 8 || entries[0].Sym != 3 || entries[0].Addend != 0x42 {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Offset != 0x2000 || entries[1].Type != 7 || entries[1].Sym != 5 {
		t.Errorf("entries[1] = %+v", entries[1])
	}
}

func writeRela(buf []byte, off int, offset uint64, relType uint32, sym uint32, addend int64) {
	info := uint64(sym)<<32 | uint64(relType)
	putU64 := func(o int, v uint64) {
		for i := 0; i < 8; i++ {
			buf[o+i] = byte(v >> (8 * i))
		}
	}
	putU64(off, offset)
	putU64(off+8, info)
	putU64(off+16, uint64(addend))
}
