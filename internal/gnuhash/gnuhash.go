// Package gnuhash implements the two-level Bloom + bucket + chain symbol
// lookup format used by .gnu.hash, per spec.md §4.5.
package gnuhash

import (
	"encoding/binary"
	"unsafe"

	"github.com/dlopenlib/dlopen/internal/symtab"
	"github.com/dlopenlib/dlopen/internal/symver"
)

// Table is a view over an already-mapped .gnu.hash section.
type Table struct {
	nbucket    uint32
	symoffset  uint32
	bloomSize  uint32
	bloomShift uint32
	bloomBase  uint64
	bucketBase uint64
	chainBase  uint64
	wordBytes  uint64 // 8 on 64-bit hosts, 4 on 32-bit (bloom word width)

	syms   symtab.SymTab
	strs   symtab.StrTab
	versym *symver.VersymTable
	verdef *symver.VerdefTable
}

// New parses the .gnu.hash header at addr (already mapped) and binds it to
// the symbol/string tables needed to confirm a name match. versym/verdef may
// be nil when the library carries no version tables; when present, Lookup
// enforces spec.md §4.5's unversioned-caller rule (skip hidden, non-default
// definitions) against them.
func New(addr uint64, syms symtab.SymTab, strs symtab.StrTab, wordBytes uint64, versym *symver.VersymTable, verdef *symver.VerdefTable) *Table {
	u32 := func(off uint64) uint32 {
		return *(*uint32)(unsafe.Pointer(uintptr(addr + off)))
	}
	_ = binary.LittleEndian // header fields are read via direct memory, not a byte slice

	nbucket := u32(0)
	symoffset := u32(4)
	bloomSize := u32(8)
	bloomShift := u32(12)

	bloomBase := addr + 16
	bucketBase := bloomBase + uint64(bloomSize)*wordBytes
	chainBase := bucketBase + uint64(nbucket)*4

	return &Table{
		nbucket: nbucket, symoffset: symoffset, bloomSize: bloomSize, bloomShift: bloomShift,
		bloomBase: bloomBase, bucketBase: bucketBase, chainBase: chainBase,
		wordBytes: wordBytes, syms: syms, strs: strs, versym: versym, verdef: verdef,
	}
}

// Hash is the GNU hash function: h = 5381; for each byte b, h = h*33 + b.
func Hash(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 + uint32(name[i])
	}
	return h
}

func (t *Table) bloomWord(i uint32) uint64 {
	off := t.bloomBase + uint64(i)*t.wordBytes
	if t.wordBytes == 8 {
		return *(*uint64)(unsafe.Pointer(uintptr(off)))
	}
	return uint64(*(*uint32)(unsafe.Pointer(uintptr(off))))
}

func (t *Table) bucket(i uint32) uint32 {
	return *(*uint32)(unsafe.Pointer(uintptr(t.bucketBase + uint64(i)*4)))
}

func (t *Table) chain(i uint32) uint32 {
	return *(*uint32)(unsafe.Pointer(uintptr(t.chainBase + uint64(i)*4)))
}

// Lookup resolves name to its dynsym index, or ok=false if absent.
func (t *Table) Lookup(name string) (sym symtab.Sym, index uint32, ok bool) {
	h := Hash(name)
	bits := t.wordBytes * 8

	word := t.bloomWord((h / uint32(bits)) % t.bloomSize)
	bit1 := uint64(1) << (uint64(h) % bits)
	bit2 := uint64(1) << ((uint64(h) >> t.bloomShift) % bits)
	if word&bit1 == 0 || word&bit2 == 0 {
		return symtab.Sym{}, 0, false
	}

	bucketIdx := h % t.nbucket
	chainIdx := t.bucket(bucketIdx)
	if chainIdx == 0 {
		return symtab.Sym{}, 0, false
	}

	for {
		hc := t.chain(chainIdx - t.symoffset)
		if (hc | 1) == (h | 1) {
			s := t.syms.At(chainIdx)
			// An unversioned lookup (req=nil) must skip a hidden,
			// non-default definition and keep walking the chain for
			// another entry with the same name, per spec.md §4.5.
			if t.strs.String(s.Name) == name && symver.Matches(nil, t.versym, t.verdef, chainIdx) {
				return s, chainIdx, true
			}
		}
		if hc&1 != 0 {
			return symtab.Sym{}, 0, false
		}
		chainIdx++
	}
}

// AllIndices enumerates every dynsym index reachable through the hash
// table's buckets, the standard trick for listing a GNU-hash-only shared
// object's exported symbols without section headers: each bucket names a
// chain's starting index, and each chain runs until an entry with its low
// bit set, so walking every bucket's chain to its terminator covers every
// symbol from symoffset up to the table's true end.
func (t *Table) AllIndices() []uint32 {
	var out []uint32
	for b := uint32(0); b < t.nbucket; b++ {
		idx := t.bucket(b)
		if idx == 0 {
			continue
		}
		for {
			out = append(out, idx)
			if t.chain(idx-t.symoffset)&1 != 0 {
				break
			}
			idx++
		}
	}
	return out
}
