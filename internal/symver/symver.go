// Package symver implements GNU symbol versioning: the .gnu.version index
// table plus the .gnu.version_d (defined) and .gnu.version_r (required)
// auxiliary tables, per spec.md §4.5's versioning extension to GNU hash
// lookup.
package symver

import (
	"unsafe"

	"github.com/dlopenlib/dlopen/internal/symtab"
)

// Request describes a caller's version constraint for a symbol lookup:
// (name, hash-of-name, hidden). A hidden definition should only satisfy an
// unversioned lookup if it is the default (non-hidden) version.
type Request struct {
	Name   string
	Hash   uint32
	Hidden bool
}

// VersymTable is a view over .gnu.version: one uint16 index per dynsym
// entry.
type VersymTable struct{ Base uint64 }

// Index returns the version index for dynsym entry i.
func (t VersymTable) Index(i uint32) uint16 {
	return *(*uint16)(unsafe.Pointer(uintptr(t.Base) + uintptr(i)*2))
}

// VERSYM_HIDDEN is the high bit of a versym entry marking a hidden
// (non-default) definition.
const VERSYM_HIDDEN = 0x8000

// VerdefTable is a view over .gnu.version_d: a linked list of Elfxx_Verdef
// records, each followed by one or more Verdaux name entries.
type VerdefTable struct {
	Base  uint64
	Num   uint64
	Strs  symtab.StrTab
}

type verdefEntry struct {
	Version uint16
	Flags   uint16
	Ndx     uint16
	Cnt     uint16
	Hash    uint32
	Aux     uint32
	Next    uint32
}

type verdauxEntry struct {
	Name uint32
	Next uint32
}

// NameForIndex walks the verdef list looking for the entry whose vd_ndx
// matches versionIndex (masked of VERSYM_HIDDEN), returning its first aux
// name and whether the definition itself is hidden.
func (t VerdefTable) NameForIndex(versionIndex uint16) (name string, hidden bool, ok bool) {
	ndxWant := versionIndex &^ VERSYM_HIDDEN
	addr := uintptr(t.Base)
	for i := uint64(0); i < t.Num; i++ {
		vd := *(*verdefEntry)(unsafe.Pointer(addr))
		if vd.Ndx == ndxWant {
			auxAddr := addr + uintptr(vd.Aux)
			aux := *(*verdauxEntry)(unsafe.Pointer(auxAddr))
			return t.Strs.String(aux.Name), versionIndex&VERSYM_HIDDEN != 0, true
		}
		if vd.Next == 0 {
			break
		}
		addr += uintptr(vd.Next)
	}
	return "", false, false
}

// VerneedTable is a view over .gnu.version_r: a linked list of Elfxx_Verneed
// records, each followed by one or more Vernaux entries.
type VerneedTable struct {
	Base uint64
	Num  uint64
	Strs symtab.StrTab
}

type verneedEntry struct {
	Version uint16
	Cnt     uint16
	File    uint32
	Aux     uint32
	Next    uint32
}

type vernauxEntry struct {
	Hash  uint32
	Flags uint16
	Other uint16
	Name  uint32
	Next  uint32
}

// NameForIndex walks the verneed list looking for the vernaux entry whose
// vna_other matches versionIndex.
func (t VerneedTable) NameForIndex(versionIndex uint16) (name string, ok bool) {
	ndxWant := versionIndex &^ VersymHidden
	addr := uintptr(t.Base)
	for i := uint64(0); i < t.Num; i++ {
		vn := *(*verneedEntry)(unsafe.Pointer(addr))
		auxAddr := addr + uintptr(vn.Aux)
		for j := uint16(0); j < vn.Cnt; j++ {
			aux := *(*vernauxEntry)(unsafe.Pointer(auxAddr))
			if aux.Other == ndxWant {
				return t.Strs.String(aux.Name), true
			}
			if aux.Next == 0 {
				break
			}
			auxAddr += uintptr(aux.Next)
		}
		if vn.Next == 0 {
			break
		}
		addr += uintptr(vn.Next)
	}
	return "", false
}

// VersymHidden mirrors VERSYM_HIDDEN for use outside this file.
const VersymHidden = VERSYM_HIDDEN

// Matches implements the versioned-lookup rule from spec.md §4.5: a
// candidate symbol at dynsym index symIdx satisfies a versioned req when its
// version index resolves, through verdef, to a definition named req.Name
// (req.Hash is not compared), and satisfies an unversioned caller
// (req == nil) when the candidate is not itself hidden. A library without a
// versym table, or a versioned req against a library without a verdef
// table, always matches.
func Matches(req *Request, versym *VersymTable, verdef *VerdefTable, symIdx uint32) bool {
	if versym == nil {
		return true // no versioning present in this library
	}
	idx := versym.Index(symIdx)

	if req == nil {
		return idx&VERSYM_HIDDEN == 0
	}
	if verdef == nil {
		return true
	}
	name, _, ok := verdef.NameForIndex(idx)
	return ok && name == req.Name
}
