// Package unwind adapts each loaded library's .eh_frame_hdr into a pluggable
// stack-unwind backend, per spec.md §9's exception-handling supplement and
// original_source/dlopen-rs/src/unwind/unwinding.rs's eh_finder registry
// (there a hashbrown table keyed by eh_frame_hdr address; here a plain
// mutex-guarded map, matching how internal/registry tracks libraries).
package unwind

import "sync"

// Info locates a library's unwind tables, read directly from its PT_LOAD
// mapping (no copy: these are pointers into already-mapped memory). EHFrame
// and EHFrameLen are left to a backend to discover (TableBackend reads
// EHFrame out of the .eh_frame_hdr header itself, since there is no section
// header table here to get it from); callers only need to supply
// EHFrameHdr and the library's text range.
type Info struct {
	EHFrameHdr uintptr
	EHFrame    uintptr
	EHFrameLen uintptr
	TextBase   uintptr
	TextLen    uintptr
}

// Backend resolves a return address within a registered region to unwind
// step data. Two implementations ship: DummyBackend, which never finds
// anything (for environments that only need forward execution, no C++
// exceptions crossing library boundaries), and TableBackend, which parses
// the binary .eh_frame_hdr search table directly.
type Backend interface {
	// FindFDE returns the frame-description-entry offset (within EHFrame)
	// covering pc, or ok=false if pc isn't covered by this Info.
	FindFDE(info Info, pc uintptr) (fdeOffset uintptr, ok bool)
}

// Registry tracks one Info per live library, keyed by its eh_frame_hdr
// address (unique per library, mirroring the Rust original's hash key).
type Registry struct {
	mu      sync.RWMutex
	entries map[uintptr]Info
	backend Backend
}

// NewRegistry returns a registry using backend for FindFDE lookups.
func NewRegistry(backend Backend) *Registry {
	return &Registry{entries: make(map[uintptr]Info), backend: backend}
}

// Register records info for a newly loaded library. Idempotent re-register
// (same eh_frame_hdr) overwrites silently, matching §4.8's load idempotence.
func (r *Registry) Register(info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[info.EHFrameHdr] = info
}

// Unregister drops a library's unwind info, called when its last reference
// is dropped (spec.md §4.10).
func (r *Registry) Unregister(ehFrameHdr uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, ehFrameHdr)
}

// Find locates the Info whose text range covers pc, then asks the backend
// for an FDE within it.
func (r *Registry) Find(pc uintptr) (Info, uintptr, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, info := range r.entries {
		if pc < info.TextBase || pc >= info.TextBase+info.TextLen {
			continue
		}
		off, ok := r.backend.FindFDE(info, pc)
		if !ok {
			continue
		}
		return info, off, true
	}
	return Info{}, 0, false
}

// DummyBackend never resolves an FDE. Libraries loaded under this backend
// can still run normally; only unwinding across a call into them (e.g. a
// C++ exception thrown from inside) is unsupported, matching
// original_source's "dummy" unwind feature used when the host toolchain
// doesn't ship `unwinding` support.
type DummyBackend struct{}

func (DummyBackend) FindFDE(Info, uintptr) (uintptr, bool) { return 0, false }
