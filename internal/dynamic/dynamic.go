// Package dynamic walks an ELF PT_DYNAMIC segment and resolves its tagged
// offsets into absolute in-process addresses once a library's load base is
// known.
package dynamic

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/dlopenlib/dlopen/internal/elfhdr"
)

// Dynamic tags this loader understands. Unlisted tags are skipped.
const (
	DT_NULL     = 0
	DT_NEEDED   = 1
	DT_PLTRELSZ = 2
	DT_HASH     = 4
	DT_STRTAB   = 5
	DT_SYMTAB   = 6
	DT_RELA     = 7
	DT_RELASZ   = 8
	DT_STRSZ    = 10
	DT_INIT     = 12
	DT_FINI     = 13
	DT_JMPREL   = 23
	DT_INIT_ARRAY    = 25
	DT_FINI_ARRAY    = 26
	DT_INIT_ARRAYSZ  = 27
	DT_FINI_ARRAYSZ  = 28
	DT_FLAGS    = 30
	DT_GNU_HASH = 0x6ffffef5
	DT_VERSYM   = 0x6ffffff0
	DT_VERNEED  = 0x6ffffffe
	DT_VERNEEDNUM = 0x6fffffff
	DT_VERDEF   = 0x6ffffffc
	DT_VERDEFNUM = 0x6ffffffd
)

// Info is the ensemble of offsets extracted from PT_DYNAMIC (spec.md §3).
// Before Finish is called, Hash/Symtab/Strtab/... hold file-relative values
// (or, for an already-loaded system library seen through the platform
// bridge, values that are already absolute — see Finish).
type Info struct {
	Hash, Symtab, Strtab, Strsz uint64

	Jmprel, Pltrelsz uint64
	Rela, Relasz     uint64

	Init, Fini                     uint64
	InitArray, InitArraySz         uint64
	FiniArray, FiniArraySz         uint64

	Versym, Verneed, VerneedNum uint64
	Verdef, VerdefNum           uint64

	GNUHash bool // true if Hash points at DT_GNU_HASH rather than DT_HASH

	neededOffsets []uint64 // DT_NEEDED string-table offsets, pre-Finish

	finished bool
}

// Error reports a malformed or incomplete PT_DYNAMIC segment.
type Error struct{ Msg string }

func (e *Error) Error() string { return "ParseDynamic: " + e.Msg }

// Parse walks dynData (the bytes of the PT_DYNAMIC segment, already mapped
// at its runtime address so dynData is exactly the segment's in-process
// bytes) until DT_NULL, collecting every tag this loader understands.
func Parse(dynData []byte, class elfhdr.Class) (*Info, error) {
	info := &Info{}
	entrySize := 16
	if class == elfhdr.Class32 {
		entrySize = 8
	}

	for off := 0; off+entrySize <= len(dynData); off += entrySize {
		var tag int64
		var val uint64
		if class == elfhdr.Class32 {
			tag = int64(int32(binary.LittleEndian.Uint32(dynData[off:])))
			val = uint64(binary.LittleEndian.Uint32(dynData[off+4:]))
		} else {
			tag = int64(binary.LittleEndian.Uint64(dynData[off:]))
			val = binary.LittleEndian.Uint64(dynData[off+8:])
		}

		switch tag {
		case DT_NULL:
			return finalizeParse(info)
		case DT_NEEDED:
			info.neededOffsets = append(info.neededOffsets, val)
		case DT_HASH:
			if !info.GNUHash {
				info.Hash = val
			}
		case DT_GNU_HASH:
			info.Hash = val
			info.GNUHash = true
		case DT_STRTAB:
			info.Strtab = val
		case DT_SYMTAB:
			info.Symtab = val
		case DT_STRSZ:
			info.Strsz = val
		case DT_JMPREL:
			info.Jmprel = val
		case DT_PLTRELSZ:
			info.Pltrelsz = val
		case DT_RELA:
			info.Rela = val
		case DT_RELASZ:
			info.Relasz = val
		case DT_INIT:
			info.Init = val
		case DT_FINI:
			info.Fini = val
		case DT_INIT_ARRAY:
			info.InitArray = val
		case DT_INIT_ARRAYSZ:
			info.InitArraySz = val
		case DT_FINI_ARRAY:
			info.FiniArray = val
		case DT_FINI_ARRAYSZ:
			info.FiniArraySz = val
		case DT_VERSYM:
			info.Versym = val
		case DT_VERNEED:
			info.Verneed = val
		case DT_VERNEEDNUM:
			info.VerneedNum = val
		case DT_VERDEF:
			info.Verdef = val
		case DT_VERDEFNUM:
			info.VerdefNum = val
		}
	}

	return nil, &Error{"missing DT_NULL terminator"}
}

func finalizeParse(info *Info) (*Info, error) {
	if info.Hash == 0 || info.Symtab == 0 || info.Strtab == 0 || info.Strsz == 0 {
		return nil, &Error{"missing mandatory tag (hash/symtab/strtab/strsz)"}
	}
	return info, nil
}

// Finish resolves every offset in info to an absolute runtime address given
// the library's load base. Most shared objects store PT_DYNAMIC values as
// file-relative offsets, so base is simply added. Some already-resident
// system libraries (seen through the platform bridge) instead store
// absolute addresses directly; spec.md §4.4 calls the distinguishing rule
// "heuristically detect[ing] this when an offset is ≥ 2·base" — applied per
// field below, since only pointer-valued tags (not sizes or counts) are
// offsets that need the heuristic.
func (info *Info) Finish(base uint64) {
	if info.finished {
		return
	}
	info.finished = true

	rel := func(v uint64) uint64 {
		if v == 0 {
			return 0
		}
		if base != 0 && v >= 2*base {
			return v // already absolute
		}
		return v + base
	}

	info.Hash = rel(info.Hash)
	info.Symtab = rel(info.Symtab)
	info.Strtab = rel(info.Strtab)
	if info.Jmprel != 0 {
		info.Jmprel = rel(info.Jmprel)
	}
	if info.Rela != 0 {
		info.Rela = rel(info.Rela)
	}
	if info.Init != 0 {
		info.Init = rel(info.Init)
	}
	if info.Fini != 0 {
		info.Fini = rel(info.Fini)
	}
	if info.InitArray != 0 {
		info.InitArray = rel(info.InitArray)
	}
	if info.FiniArray != 0 {
		info.FiniArray = rel(info.FiniArray)
	}
	if info.Versym != 0 {
		info.Versym = rel(info.Versym)
	}
	if info.Verneed != 0 {
		info.Verneed = rel(info.Verneed)
	}
	if info.Verdef != 0 {
		info.Verdef = rel(info.Verdef)
	}
}

// NeededNames resolves DT_NEEDED string-table offsets into names, once
// Strtab is absolute (i.e. after Finish) and mapped.
func (info *Info) NeededNames() ([]string, error) {
	if !info.finished {
		return nil, fmt.Errorf("dynamic: NeededNames called before Finish")
	}
	names := make([]string, 0, len(info.neededOffsets))
	for _, off := range info.neededOffsets {
		names = append(names, readCString(info.Strtab+off))
	}
	return names, nil
}

// readCString reads a NUL-terminated string directly from process memory at
// addr. Used for DT_NEEDED and any other dynamic-section string lookup
// where the string table has already been mapped into this address space.
func readCString(addr uint64) string {
	p := uintptr(addr)
	n := 0
	for {
		b := *(*byte)(unsafe.Pointer(p + uintptr(n)))
		if b == 0 {
			break
		}
		n++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}
