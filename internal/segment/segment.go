// Package segment computes the load extent of an ELF shared object's
// PT_LOAD program headers, reserves a contiguous address range for them, and
// places each segment with its final page protections.
package segment

import (
	"fmt"
	"runtime"

	"github.com/dlopenlib/dlopen/internal/elfhdr"
	"github.com/dlopenlib/dlopen/internal/mmap"
)

// Mapping is the owned memory region backing a loaded library: the reserved
// range [Base, Base+Len), plus the bias (VMA bias) that turns a file virtual
// address into a runtime address.
type Mapping struct {
	Base  uintptr
	Len   uintptr
	Bias  uintptr // Base - addr_min
	mapper mmap.Mapper
}

// RuntimeAddr converts a file virtual address to its mapped runtime address.
func (m *Mapping) RuntimeAddr(vaddr uint64) uintptr {
	return uintptr(vaddr) + m.Bias
}

// Unmap releases the entire reserved range. Safe to call once; internal/loader
// calls it when a load fails, while Loader.Close leaves the mapping in place.
func (m *Mapping) Unmap() error {
	if m.Len == 0 {
		return nil
	}
	return m.mapper.Unmap(m.Base, m.Len)
}

// pageSize is resolved once per process for the current architecture (64
// KiB on aarch64, 4 KiB elsewhere — see spec.md §4.3).
func pageSize() uintptr { return mmap.PageSize(runtime.GOARCH) }

// Load walks phdrs, reserves the load extent, places every PT_LOAD entry's
// file-backed and BSS-extension pages, and returns the resulting Mapping.
// fileData must contain the full file contents (segments are copied out of
// it at their p_offset). File bytes are always copied into anonymous pages;
// MapFile is not used, for any mapper.
func Load(m mmap.Mapper, phdrs []elfhdr.Phdr, fileData []byte) (*Mapping, error) {
	ps := pageSize()

	addrMin := ^uint64(0)
	addrMax := uint64(0)
	for _, p := range phdrs {
		if p.Type != elfhdr.PT_LOAD {
			continue
		}
		if p.VAddr < addrMin {
			addrMin = p.VAddr
		}
		if end := p.VAddr + p.MemSz; end > addrMax {
			addrMax = end
		}
	}
	if addrMin == ^uint64(0) {
		return nil, fmt.Errorf("segment: no PT_LOAD entries")
	}

	alignedMin := mmap.AlignDown(uintptr(addrMin), ps)
	alignedMax := mmap.AlignUp(uintptr(addrMax), ps)
	extent := alignedMax - alignedMin

	reserved, err := m.Reserve(extent)
	if err != nil {
		return nil, err
	}

	mapping := &Mapping{Base: reserved, Len: extent, Bias: reserved - alignedMin, mapper: m}

	for _, p := range phdrs {
		if p.Type != elfhdr.PT_LOAD {
			continue
		}
		if err := placeSegment(m, mapping, p, fileData, ps); err != nil {
			_ = m.Unmap(reserved, extent)
			return nil, err
		}
	}

	return mapping, nil
}

// placeSegment maps one PT_LOAD entry's file-backed bytes, zero-fills the
// tail between file size and the page-aligned end, extends with anonymous
// BSS pages when p_memsz spans beyond that, then applies final protections.
// Writes happen before the protection change so pages are transiently
// writable, per spec.md §4.3 point 4.
func placeSegment(m mmap.Mapper, mapping *Mapping, p elfhdr.Phdr, fileData []byte, ps uintptr) error {
	runtimeAddr := mapping.RuntimeAddr(p.VAddr)
	alignedAddr := mmap.AlignDown(runtimeAddr, ps)
	alignedEnd := mmap.AlignUp(runtimeAddr+uintptr(p.MemSz), ps)
	prot := mmap.ProtFromPhdrFlags(p.Flags)

	// Map the whole aligned range writable first; the file bytes and BSS
	// zero-fill both need write access, and the final protection (which may
	// be read-only or non-writable) is applied once both are in place.
	if err := m.MapAnonymous(alignedAddr, alignedEnd-alignedAddr, mmap.ProtRead|mmap.ProtWrite); err != nil {
		return err
	}

	if p.FileSz > 0 {
		if p.Offset+p.FileSz > uint64(len(fileData)) {
			return fmt.Errorf("segment: file range [%d,%d) exceeds file length %d", p.Offset, p.Offset+p.FileSz, len(fileData))
		}
		if err := writeAt(runtimeAddr, fileData[p.Offset:p.Offset+p.FileSz]); err != nil {
			return err
		}
	}

	// BSS tail: [vaddr+filesz, aligned_end) must read as zero. The anonymous
	// mapping above already starts zeroed, so nothing more is needed here
	// beyond having mapped the full aligned range before writing file bytes.

	return m.Protect(alignedAddr, alignedEnd-alignedAddr, prot)
}

// RelroProtect applies PT_GNU_RELRO's read-only protection after relocation
// completes (spec.md invariant 4).
func RelroProtect(m mmap.Mapper, mapping *Mapping, relro elfhdr.Phdr) error {
	ps := pageSize()
	addr := mmap.AlignDown(mapping.RuntimeAddr(relro.VAddr), ps)
	end := mmap.AlignUp(mapping.RuntimeAddr(relro.VAddr)+uintptr(relro.MemSz), ps)
	if end <= addr {
		return nil
	}
	return m.Protect(addr, end-addr, mmap.ProtRead)
}
