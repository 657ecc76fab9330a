package symtab

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

func TestStrTabString(t *testing.T) {
	buf := append([]byte("\x00printf\x00malloc\x00"))
	tab := StrTab{Base: uint64(uintptr(unsafe.Pointer(&buf[0]))), Size: uint64(len(buf))}

	if got := tab.String(1); got != "printf" {
		t.Fatalf("String(1) = %q, want %q", got, "printf")
	}
	if got := tab.String(8); got != "malloc" {
		t.Fatalf("String(8) = %q, want %q", got, "malloc")
	}
	if got := tab.String(uint32(len(buf) + 10)); got != "" {
		t.Fatalf("String out of range = %q, want empty", got)
	}
}

func TestSymTabAt64(t *testing.T) {
	raw := make([]byte, 24)
	binary.LittleEndian.PutUint32(raw[0:], 5)
	raw[4] = 0x12 // bind=1 type=2
	raw[5] = 0
	binary.LittleEndian.PutUint16(raw[6:], 1)
	binary.LittleEndian.PutUint64(raw[8:], 0x4000)
	binary.LittleEndian.PutUint64(raw[16:], 64)

	tab := NewSymTab(uint64(uintptr(unsafe.Pointer(&raw[0]))), false)
	sym := tab.At(0)

	if sym.Name != 5 || sym.Value != 0x4000 || sym.Size != 64 || sym.Shndx != 1 {
		t.Fatalf("At(0) = %+v, unexpected fields", sym)
	}
	if sym.Bind() != 1 || sym.Type() != 2 {
		t.Fatalf("Bind/Type = %d/%d, want 1/2", sym.Bind(), sym.Type())
	}
}

func TestSymTabAt32(t *testing.T) {
	raw := make([]byte, 16)
	binary.LittleEndian.PutUint32(raw[0:], 7)
	binary.LittleEndian.PutUint32(raw[4:], 0x1000)
	binary.LittleEndian.PutUint32(raw[8:], 32)
	raw[12] = 0x21 // bind=2 type=1
	binary.LittleEndian.PutUint16(raw[14:], 3)

	tab := NewSymTab(uint64(uintptr(unsafe.Pointer(&raw[0]))), true)
	sym := tab.At(0)

	if sym.Name != 7 || sym.Value != 0x1000 || sym.Size != 32 || sym.Shndx != 3 {
		t.Fatalf("At(0) = %+v, unexpected fields", sym)
	}
	if sym.Bind() != 2 || sym.Type() != 1 {
		t.Fatalf("Bind/Type = %d/%d, want 2/1", sym.Bind(), sym.Type())
	}
}
