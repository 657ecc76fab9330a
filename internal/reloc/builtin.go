package reloc

import "sync"

// BuiltinStub is a small Go-backed implementation of a well-known libc/libgcc
// symbol, consulted before the user resolver and before the dependency list
// (spec.md §4.6), to avoid pulling in libc fragments that conflict with the
// host's own libc. This generalizes the teacher's stubs.Registry /
// stubs.RegisterFunc self-registration pattern (internal/stubs/registry.go)
// from an emulated-register calling convention to a real function address
// installed in this process.
type BuiltinStub struct {
	Name string
	Addr uint64 // resolved by internal/loader's installBuiltins, once the Go function has a callable address
}

// BuiltinRegistry holds the small set of symbols this loader resolves
// itself rather than deferring to a dependency library, mirroring
// spec.md §4.6's list: __cxa_finalize, __cxa_thread_atexit_impl,
// __tls_get_addr, _ITM_registerTMCloneTable, _ITM_deregisterTMCloneTable,
// __gmon_start__, dl_iterate_phdr, and optionally the _Unwind_* family.
type BuiltinRegistry struct {
	mu    sync.RWMutex
	addrs map[string]uint64
}

// DefaultBuiltins is the global builtin-stub table, populated by
// internal/loader's installBuiltins on the first Open.
var DefaultBuiltins = &BuiltinRegistry{addrs: make(map[string]uint64)}

// Register binds name to a resolved address. Called once per stub from
// internal/loader's installBuiltins (under a sync.Once): __tls_get_addr gets
// the ABI shim's address, and the ITM/gmon/cxa/dl_iterate_phdr names get
// address 0.
func (r *BuiltinRegistry) Register(name string, addr uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs[name] = addr
}

// Resolve looks up name, returning ok=false if this loader has no builtin
// for it (the caller then falls through to the dependency list).
func (r *BuiltinRegistry) Resolve(name string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.addrs[name]
	return addr, ok
}

// Names this loader expects to provide a builtin for.
var BuiltinNames = []string{
	"__cxa_finalize",
	"__cxa_thread_atexit_impl",
	"__tls_get_addr",
	"_ITM_registerTMCloneTable",
	"_ITM_deregisterTMCloneTable",
	"__gmon_start__",
	"dl_iterate_phdr",
}
