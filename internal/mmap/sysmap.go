//go:build unix

package mmap

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// SysMapper is the real Mmap backend: it issues mmap(2)/mprotect(2)/munmap(2)
// directly via raw syscalls, the way the teacher's Unicorn-backed
// Emulator.MapRegion/MemWrite stood in for real memory during emulation. Here
// there is no emulator in the loop: segments are mapped into this very
// process's address space, which is why MAP_FIXED placement (not exposed by
// unix.Mmap's []byte-returning wrapper) is needed and reached via
// unix.Syscall6 directly.
type SysMapper struct{}

// New returns the syscall-backed Mapper.
func New() *SysMapper { return &SysMapper{} }

// Reserve carves out a writable, non-executable anonymous range of length
// bytes so the segment mapper has somewhere to place PT_LOAD segments before
// their final protections are known.
func (SysMapper) Reserve(length uintptr) (uintptr, error) {
	addr, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		0, length,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
		^uintptr(0), 0,
	)
	if errno != 0 {
		return 0, &Error{Op: "reserve", Length: length, Wrapped: errno}
	}
	return addr, nil
}

// MapFile places file-backed pages at addr using MAP_FIXED so the mapping
// lands inside the range Reserve returned.
func (SysMapper) MapFile(addr, length uintptr, prot Prot, fd uintptr, fileOffset int64) error {
	if length == 0 {
		return nil
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr, length,
		uintptr(sysProt(prot)),
		unix.MAP_PRIVATE|unix.MAP_FIXED,
		fd, uintptr(fileOffset),
	)
	if errno != 0 {
		return &Error{Op: "map_file", Addr: addr, Length: length, Wrapped: errno}
	}
	return nil
}

// MapAnonymous places zeroed anonymous pages at addr, used for BSS extension
// pages beyond a segment's file-backed portion.
func (SysMapper) MapAnonymous(addr, length uintptr, prot Prot) error {
	if length == 0 {
		return nil
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr, length,
		uintptr(sysProt(prot)),
		unix.MAP_PRIVATE|unix.MAP_FIXED|unix.MAP_ANON,
		^uintptr(0), 0,
	)
	if errno != 0 {
		return &Error{Op: "map_anon", Addr: addr, Length: length, Wrapped: errno}
	}
	return nil
}

// Protect changes the protection of an already-mapped range, used both for a
// segment's final PT_LOAD protections and for PT_GNU_RELRO.
func (SysMapper) Protect(addr, length uintptr, prot Prot) error {
	if length == 0 {
		return nil
	}
	if err := unix.Mprotect(bytesAt(addr, length), sysProt(prot)); err != nil {
		return &Error{Op: "protect", Addr: addr, Length: length, Wrapped: err}
	}
	return nil
}

// Unmap releases a mapped range.
func (SysMapper) Unmap(addr, length uintptr) error {
	if length == 0 {
		return nil
	}
	if err := unix.Munmap(bytesAt(addr, length)); err != nil {
		return &Error{Op: "unmap", Addr: addr, Length: length, Wrapped: err}
	}
	return nil
}

func sysProt(p Prot) int {
	var v int
	if p&ProtRead != 0 {
		v |= unix.PROT_READ
	}
	if p&ProtWrite != 0 {
		v |= unix.PROT_WRITE
	}
	if p&ProtExec != 0 {
		v |= unix.PROT_EXEC
	}
	return v
}

// bytesAt builds a []byte header over an already-mapped range so the
// higher-level unix.Mprotect/unix.Munmap wrappers (which operate on slices)
// can be reused for operations that don't need MAP_FIXED semantics.
func bytesAt(addr, length uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length))
}
