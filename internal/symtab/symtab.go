// Package symtab provides typed views over an already-mapped .dynstr and
// .dynsym, read directly out of process memory at their resolved runtime
// addresses.
package symtab

import (
	"encoding/binary"
	"unsafe"
)

// Sym is one ELF64 symbol table entry (st_name/st_info/.../st_size), widened
// from ELF32 where necessary.
type Sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

// Bind returns the binding (STB_*) from st_info.
func (s Sym) Bind() uint8 { return s.Info >> 4 }

// Type returns the type (STT_*) from st_info.
func (s Sym) Type() uint8 { return s.Info & 0xf }

const SHN_UNDEF = 0

// StrTab is a view over a mapped string table: a base address and size,
// with no copy of the underlying bytes.
type StrTab struct {
	Base uint64
	Size uint64
}

// String reads the NUL-terminated string at the given string-table offset.
func (t StrTab) String(off uint32) string {
	if uint64(off) >= t.Size {
		return ""
	}
	addr := uintptr(t.Base) + uintptr(off)
	n := 0
	for uint64(off)+uint64(n) < t.Size {
		b := *(*byte)(unsafe.Pointer(addr + uintptr(n)))
		if b == 0 {
			break
		}
		n++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(addr)), n))
}

// SymTab is a view over a mapped .dynsym: symtab addresses are read lazily
// by index, since the table's length is only implied by the hash table's
// chain array length (ELF has no DT_SYMTABSZ).
type SymTab struct {
	Base    uint64
	Is32    bool
	entSize uint64
}

// NewSymTab builds a SymTab view; is32 selects Elf32_Sym (16 bytes) entries
// instead of Elf64_Sym (24 bytes).
func NewSymTab(base uint64, is32 bool) SymTab {
	sz := uint64(24)
	if is32 {
		sz = 16
	}
	return SymTab{Base: base, Is32: is32, entSize: sz}
}

// At reads the symbol at dynsym index i directly out of mapped memory.
func (t SymTab) At(i uint32) Sym {
	addr := uintptr(t.Base) + uintptr(uint64(i)*t.entSize)
	if t.Is32 {
		raw := unsafe.Slice((*byte)(unsafe.Pointer(addr)), 16)
		return Sym{
			Name:  binary.LittleEndian.Uint32(raw[0:]),
			Info:  raw[12],
			Other: raw[13],
			Shndx: binary.LittleEndian.Uint16(raw[14:]),
			Value: uint64(binary.LittleEndian.Uint32(raw[4:])),
			Size:  uint64(binary.LittleEndian.Uint32(raw[8:])),
		}
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(addr)), 24)
	return Sym{
		Name:  binary.LittleEndian.Uint32(raw[0:]),
		Info:  raw[4],
		Other: raw[5],
		Shndx: binary.LittleEndian.Uint16(raw[6:]),
		Value: binary.LittleEndian.Uint64(raw[8:]),
		Size:  binary.LittleEndian.Uint64(raw[16:]),
	}
}
