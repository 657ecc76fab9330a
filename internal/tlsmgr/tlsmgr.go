// Package tlsmgr implements the TLS manager from spec.md §4.7: per-library
// thread-local storage module allocation and the __tls_get_addr dispatch it
// backs, generalizing the teacher's map-based pthread TLS key/value store
// (internal/stubs/pthread/tls.go) from an emulated register convention to
// real addresses in this process.
package tlsmgr

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Module describes one library's PT_TLS segment: the initial image to copy
// into each thread's block, plus the total per-thread size and alignment.
type Module struct {
	ID      uint64 // 1-based; 0 is never assigned, matching spec.md's sentinel
	Image   uintptr
	ImageSz uintptr
	MemSz   uintptr
	Align   uintptr
}

// Manager owns the module table and the per-thread blocks allocated from it.
// Each OS thread gets its own block the first time it touches a module,
// keyed by the calling OS thread's kernel tid (see threadKey) rather than
// goroutine ID, since Go goroutines migrate across OS threads and TLS must
// not.
type Manager struct {
	mu      sync.RWMutex
	modules map[uint64]*Module
	nextID  uint64

	blocksMu sync.Mutex
	blocks   map[threadKey]map[uint64]uintptr // thread -> moduleID -> block addr

	// dtvOffset is TLS_DTV_OFFSET (reloc.HostDTVOffset()): CategoryDTPOff
	// subtracts it when a DTPOFF relocation writes a tls_index.offset field,
	// so GetAddr must add it back before indexing into the thread's block,
	// per spec.md §4.7/§6.2.
	dtvOffset uint64
}

// threadKey identifies the calling OS thread via its kernel tid (Gettid),
// not goroutine identity: a goroutine can migrate across OS threads between
// calls, but the memory a real __tls_get_addr caller expects is tied to the
// thread that happened to execute the PLT stub, so this manager keys on the
// same thing glibc's TLS does.
type threadKey int

// New returns an empty manager; module IDs start at 1. dtvOffset should be
// reloc.HostDTVOffset() in production (0 on every supported architecture
// except riscv64).
func New(dtvOffset uint64) *Manager {
	return &Manager{
		modules:   make(map[uint64]*Module),
		blocks:    make(map[threadKey]map[uint64]uintptr),
		dtvOffset: dtvOffset,
	}
}

// Register allocates a new TLS module ID for a library's PT_TLS segment and
// returns it. image/imageSz/memSz/align come directly from the PT_TLS
// program header and its file contents (spec.md §4.7).
func (m *Manager) Register(image uintptr, imageSz, memSz, align uintptr) *Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	mod := &Module{ID: m.nextID, Image: image, ImageSz: imageSz, MemSz: memSz, Align: align}
	m.modules[mod.ID] = mod
	return mod
}

// Unregister drops a module. Thread blocks previously allocated for it are
// not freed: they stay in the per-thread tables and pinned for the life of
// the process, including after their thread exits.
func (m *Manager) Unregister(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.modules, id)
}

func currentThreadKey() threadKey {
	return threadKey(unix.Gettid())
}

// blockFor returns (allocating if necessary) the calling thread's storage
// for module id, copying the initial image and zero-filling the BSS tail on
// first touch.
func (m *Manager) blockFor(id uint64) (uintptr, error) {
	m.mu.RLock()
	mod, ok := m.modules[id]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("tlsmgr: unknown module %d", id)
	}

	key := currentThreadKey()

	m.blocksMu.Lock()
	defer m.blocksMu.Unlock()

	perThread, ok := m.blocks[key]
	if !ok {
		perThread = make(map[uint64]uintptr)
		m.blocks[key] = perThread
	}
	if addr, ok := perThread[id]; ok {
		return addr, nil
	}

	buf := make([]byte, mod.MemSz+mod.Align)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (addr + mod.Align - 1) &^ (mod.Align - 1)
	if mod.Image != 0 && mod.ImageSz > 0 {
		src := unsafe.Slice((*byte)(unsafe.Pointer(mod.Image)), mod.ImageSz)
		dst := unsafe.Slice((*byte)(unsafe.Pointer(aligned)), mod.ImageSz)
		copy(dst, src)
	}
	m.pin(key, id, buf)
	perThread[id] = aligned
	return aligned, nil
}

// pins holds the backing slices for live thread blocks so the garbage
// collector doesn't reclaim memory this manager has handed out as a raw
// address, the same concern internal/mmap's heapmap backend has.
var pinsMu sync.Mutex
var pins = make(map[threadKey]map[uint64][]byte)

func (m *Manager) pin(key threadKey, id uint64, buf []byte) {
	pinsMu.Lock()
	defer pinsMu.Unlock()
	perThread, ok := pins[key]
	if !ok {
		perThread = make(map[uint64][]byte)
		pins[key] = perThread
	}
	perThread[id] = buf
}

// GetAddr implements the spec.md §4.7 rule for __tls_get_addr: given a
// tls_index{module, offset} pair, module identifies a Module registered by
// Register, and the returned address is that thread's block base plus
// offset, with TLS_DTV_OFFSET added back in to undo the subtraction
// CategoryDTPOff applied when offset was originally written.
func (m *Manager) GetAddr(module uint64, offset uint64) (uintptr, error) {
	base, err := m.blockFor(module)
	if err != nil {
		return 0, err
	}
	return base + uintptr(offset+m.dtvOffset), nil
}

// tlsIndex mirrors the ELF ABI's tls_index struct: two word-sized fields,
// module id and byte offset within that module's block.
type tlsIndex struct {
	Module uint64
	Offset uint64
}

// Dispatcher adapts Manager.GetAddr to the single-pointer-argument shape
// abi.MakeCallable expects: a tls_index* in, a pointer result out.
func (m *Manager) Dispatcher() func(uintptr) uintptr {
	return func(argAddr uintptr) uintptr {
		idx := (*tlsIndex)(unsafe.Pointer(argAddr))
		addr, err := m.GetAddr(idx.Module, idx.Offset)
		if err != nil {
			return 0
		}
		return addr
	}
}
