// Package dylib is the core data model tying together header parsing,
// segment mapping, dynamic-section resolution, and symbol lookup into a
// single loaded library (spec.md §3, §4.4-§4.6).
package dylib

import (
	"fmt"
	"os"
)

// Source is where a library's ELF bytes come from: an in-memory buffer, a
// path on disk, or an already-resident mapping discovered via the platform
// linker bridge (internal/platformld), matching spec.md §3's "either a byte
// buffer, a file handle, or an existing in-process mapping" trio.
type Source interface {
	// Bytes returns the full file contents this library should be parsed
	// and mapped from. For an already-resident source this reads the
	// pages back out of process memory (used only for header/dynamic
	// parsing, never to re-map them).
	Bytes() ([]byte, error)
	// Name is the canonical name used for registry bookkeeping and log
	// correlation (a path, or a synthetic name for byte-buffer sources).
	Name() string
	// FD returns the backing file descriptor, and ok=false when there isn't
	// one (byte-buffer and existing-load sources). segment.Load does not use
	// it: file bytes are copied into anonymous pages for every source.
	FD() (fd uintptr, ok bool)
}

// FromPath opens name from disk.
func FromPath(name string) (Source, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("dylib: open %s: %w", name, err)
	}
	return &pathSource{name: name, f: f}, nil
}

type pathSource struct {
	name string
	f    *os.File
}

func (s *pathSource) Name() string { return s.name }

func (s *pathSource) Bytes() ([]byte, error) {
	if _, err := s.f.Seek(0, 0); err != nil {
		return nil, err
	}
	return os.ReadFile(s.name)
}

func (s *pathSource) FD() (uintptr, bool) { return s.f.Fd(), true }

// FromBytes wraps an in-memory ELF image (e.g. extracted from an archive,
// or downloaded), matching spec.md §3's byte-buffer Source variant.
func FromBytes(name string, data []byte) Source {
	return &byteSource{name: name, data: data}
}

type byteSource struct {
	name string
	data []byte
}

func (s *byteSource) Name() string            { return s.name }
func (s *byteSource) Bytes() ([]byte, error)  { return s.data, nil }
func (s *byteSource) FD() (uintptr, bool)     { return 0, false }

// FromExistingMapping wraps a library the platform bridge found already
// mapped into this process (spec.md §9's "query via host-specific
// extensions when present", resolved in DESIGN.md as /proc/self/maps
// discovery rather than cgo dlopen). base is where the ELF header already
// sits in this address space; Bytes reads the header and program headers
// back out of that memory so the rest of the parsing pipeline is unchanged.
func FromExistingMapping(name string, base uintptr, size uintptr) Source {
	return &existingSource{name: name, base: base, size: size}
}

type existingSource struct {
	name string
	base uintptr
	size uintptr
}

func (s *existingSource) Name() string { return s.name }
func (s *existingSource) FD() (uintptr, bool) { return 0, false }

func (s *existingSource) Bytes() ([]byte, error) {
	return readProcessMemory(s.base, s.size)
}
