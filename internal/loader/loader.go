// Package loader is the high-level orchestrator spec.md §4 describes end to
// end: Open resolves a library and its transitive DT_NEEDED closure, applies
// relocations in dependency order, runs initializers, and registers the
// result; Symbol performs scoped lookup; Close runs finalizers and
// unregisters the library once the last reference drops. Close does not
// unmap the library's segments: the mapping stays in place.
package loader

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dlopenlib/dlopen/internal/abi"
	"github.com/dlopenlib/dlopen/internal/dlog"
	"github.com/dlopenlib/dlopen/internal/dylib"
	"github.com/dlopenlib/dlopen/internal/dynamic"
	"github.com/dlopenlib/dlopen/internal/elfhdr"
	"github.com/dlopenlib/dlopen/internal/mmap"
	"github.com/dlopenlib/dlopen/internal/reloc"
	"github.com/dlopenlib/dlopen/internal/registry"
	"github.com/dlopenlib/dlopen/internal/segment"
	"github.com/dlopenlib/dlopen/internal/symtab"
	"github.com/dlopenlib/dlopen/internal/tlsmgr"
	"github.com/dlopenlib/dlopen/internal/unwind"
)

// ErrorKind classifies Loader failures per spec.md §7's error taxonomy.
type ErrorKind int

const (
	ErrParseHeader ErrorKind = iota
	ErrClassMismatch
	ErrArchMismatch
	ErrFileTypeMismatch
	ErrCycle
	ErrUnresolvedSymbol
	ErrMissingDependency
	ErrRelocation
	ErrNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case ErrParseHeader:
		return "ParseHeader"
	case ErrClassMismatch:
		return "ClassMismatch"
	case ErrArchMismatch:
		return "ArchMismatch"
	case ErrFileTypeMismatch:
		return "FileTypeMismatch"
	case ErrCycle:
		return "Cycle"
	case ErrUnresolvedSymbol:
		return "UnresolvedSymbol"
	case ErrMissingDependency:
		return "MissingDependency"
	case ErrRelocation:
		return "Relocation"
	case ErrNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error is the Loader's error type; Kind lets callers branch on failure
// category without parsing strings.
type Error struct {
	Kind ErrorKind
	Lib  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("loader: %s[%s]: %v", e.Kind, e.Lib, e.Err)
}
func (e *Error) Unwrap() error { return e.Err }

// SearchPath resolves a DT_NEEDED name to a loadable Source, consulting
// configured search directories then, as a last resort, the platform bridge
// for already-resident system libraries. internal/config.Config produces
// one of these; internal/platformld backs the fallback.
type SearchPath interface {
	Resolve(name string) (dylib.Source, error)
}

// Loader is the top-level entry point: one per process, holding the
// registry, the mapper backend, and the TLS/unwind managers every loaded
// library shares.
type Loader struct {
	mu sync.Mutex

	mapper  mmap.Mapper
	search  SearchPath
	log     *dlog.Logger
	reg     *registry.Registry
	tls     *tlsmgr.Manager
	unwindR *unwind.Registry
	userRes reloc.UserResolver

	inProgress map[string]bool // cycle detection (spec.md §4.8)
	libs       map[string]*dylib.Dylib

	sf singleflight.Group

	tlsGetAddrAddr uint64
	installOnce    sync.Once
}

// New constructs a Loader. mapper is typically mmap.New() in production;
// tests may substitute mmap.NewHeap() to avoid real syscalls.
func New(mapper mmap.Mapper, search SearchPath, log *dlog.Logger) *Loader {
	return &Loader{
		mapper:     mapper,
		search:     search,
		log:        log,
		reg:        registry.New(),
		tls:        tlsmgr.New(reloc.HostDTVOffset()),
		unwindR:    unwind.NewRegistry(unwind.TableBackend{}),
		inProgress: make(map[string]bool),
		libs:       make(map[string]*dylib.Dylib),
	}
}

// SetUserResolver installs the optional caller-supplied name->address
// fallback (spec.md §4.6, realized by internal/resolver/jsresolver).
func (l *Loader) SetUserResolver(r reloc.UserResolver) { l.userRes = r }

func (l *Loader) installBuiltins() {
	l.installOnce.Do(func() {
		addr, err := abi.MakeCallable(l.tls.Dispatcher())
		if err == nil {
			reloc.DefaultBuiltins.Register("__tls_get_addr", uint64(addr))
		} else if l.log != nil {
			l.log.Sugar().Warnf("tls_get_addr trampoline unavailable on %s: %v", runtime.GOARCH, err)
		}
		for _, name := range []string{
			"__cxa_finalize",
			"__cxa_thread_atexit_impl",
			"_ITM_registerTMCloneTable",
			"_ITM_deregisterTMCloneTable",
			"__gmon_start__",
			"dl_iterate_phdr",
		} {
			reloc.DefaultBuiltins.Register(name, 0) // resolved to address 0; no callable stub is installed
		}
	})
}

// Open loads name (and its transitive dependencies), relocates it, runs its
// initializers, and returns a handle. Repeated opens of an already-loaded
// library return the same Dylib with its refcount bumped, per spec.md §4.8.
func (l *Loader) Open(name string, flags dylib.OpenFlags) (*dylib.Dylib, error) {
	l.installBuiltins()

	v, err, _ := l.sf.Do(name, func() (interface{}, error) {
		return l.openLocked(name, flags)
	})
	if err != nil {
		return nil, err
	}
	return v.(*dylib.Dylib), nil
}

func (l *Loader) openLocked(name string, flags dylib.OpenFlags) (*dylib.Dylib, error) {
	l.mu.Lock()
	if existing, ok := l.libs[name]; ok {
		existing.Retain()
		l.mu.Unlock()
		return existing, nil
	}
	l.mu.Unlock()

	d, err := l.load(name, flags, make(map[string]bool))
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.libs[name] = d
	l.mu.Unlock()
	return d, nil
}

// load is the recursive depth-first loader: it maps name, resolves its
// DT_NEEDED list before relocating (so symbol resolution can see the whole
// dependency closure), and detects cycles via the visiting set.
func (l *Loader) load(name string, flags dylib.OpenFlags, visiting map[string]bool) (*dylib.Dylib, error) {
	if visiting[name] {
		return nil, &Error{Kind: ErrCycle, Lib: name, Err: fmt.Errorf("dependency cycle")}
	}
	visiting[name] = true
	defer delete(visiting, name)

	src, err := l.search.Resolve(name)
	if err != nil {
		return nil, &Error{Kind: ErrMissingDependency, Lib: name, Err: err}
	}
	data, err := src.Bytes()
	if err != nil {
		return nil, &Error{Kind: ErrMissingDependency, Lib: name, Err: err}
	}

	parsed, err := dylib.ParseAndMap(l.mapper, data)
	if err != nil {
		return nil, &Error{Kind: ErrParseHeader, Lib: name, Err: err}
	}

	needed, err := parsed.Dyn.NeededNames()
	if err != nil {
		parsed.Mapping.Unmap()
		return nil, &Error{Kind: ErrRelocation, Lib: name, Err: err}
	}

	deps := &dylib.DepClosure{}
	for _, dep := range needed {
		depDylib, err := l.load(dep, dylib.OpenFlags{Global: flags.Global}, visiting)
		if err != nil {
			parsed.Mapping.Unmap()
			return nil, err
		}
		deps.Ordered = append(deps.Ordered, depDylib.Core)
	}

	symTable, err := dylib.BuildSymbolTable(parsed.Dyn, parsed.Header.Class == elfhdr.Class32)
	if err != nil {
		parsed.Mapping.Unmap()
		return nil, &Error{Kind: ErrRelocation, Lib: name, Err: err}
	}

	// PT_TLS: allocate a module id up front so relocation (DTPMOD/DTPOFF
	// against this library's own TLS variables) and __tls_get_addr both see
	// a stable module id, per spec.md §2/§4.7 and invariant #6.
	var tlsModuleID uint64
	if p, found := findPhdr(parsed.Phdrs, elfhdr.PT_TLS); found {
		image := parsed.Mapping.RuntimeAddr(p.VAddr)
		mod := l.tls.Register(image, uintptr(p.FileSz), uintptr(p.MemSz), uintptr(p.Align))
		tlsModuleID = mod.ID
	}

	var unwindInfo *unwind.Info
	if p, found := findPhdr(parsed.Phdrs, elfhdr.PT_GNU_EH_FRAME); found {
		unwindInfo = &unwind.Info{
			EHFrameHdr: parsed.Mapping.RuntimeAddr(p.VAddr),
			TextBase:   parsed.Mapping.Base,
			TextLen:    parsed.Mapping.Len,
		}
	}

	core := &dylib.CoreDylib{
		LoadID:        dylib.NewLoadID(),
		CanonicalName: src.Name(),
		ShortName:     name,
		Base:          parsed.Mapping.Base,
		MapLen:        parsed.Mapping.Len,
		Phdrs:         parsed.Phdrs,
		Dyn:           parsed.Dyn,
		Symbols:       symTable,
		Needed:        needed,
		TLSModuleID:   tlsModuleID,
		UnwindInfo:    unwindInfo,
	}

	arch, ok := reloc.ForMachine(parsed.Header.Machine)
	if !ok {
		parsed.Mapping.Unmap()
		return nil, &Error{Kind: ErrArchMismatch, Lib: name, Err: fmt.Errorf("no relocation table for machine %v", parsed.Header.Machine)}
	}

	resolver := &chainResolver{
		self:    core,
		deps:    deps.Ordered,
		globals: l.reg.GlobalInOrder(),
		user:    l.userRes,
	}

	bias := parsed.Mapping.Bias
	if err := applyAllRelocations(parsed.Dyn, arch, uint64(bias), resolver, name, l.log); err != nil {
		parsed.Mapping.Unmap()
		return nil, &Error{Kind: ErrRelocation, Lib: name, Err: err}
	}

	// PT_GNU_RELRO: re-protect read-only-after-relocation data now that
	// every GOT/data relocation above has finished writing it, per spec.md
	// §4.6 and invariant #4.
	if p, found := findPhdr(parsed.Phdrs, elfhdr.PT_GNU_RELRO); found {
		if err := segment.RelroProtect(l.mapper, parsed.Mapping, p); err != nil {
			parsed.Mapping.Unmap()
			return nil, &Error{Kind: ErrRelocation, Lib: name, Err: err}
		}
	}

	if unwindInfo != nil {
		l.unwindR.Register(*unwindInfo)
	}

	core.Finalizers = collectFinalizers(parsed.Dyn)
	runInitArray(parsed.Dyn)
	dylib.LogLoad(l.log, name)

	inserted := l.reg.Register(name, dylib.AsRegistryEntry(core))
	if inserted && flags.Global {
		l.reg.PromoteGlobal(name)
	}

	d := &dylib.Dylib{Core: core, Flags: flags, Deps: deps}
	d.Retain()
	return d, nil
}

// findPhdr returns the first program header of type t, if any.
func findPhdr(phdrs []elfhdr.Phdr, t uint32) (elfhdr.Phdr, bool) {
	for _, p := range phdrs {
		if p.Type == t {
			return p, true
		}
	}
	return elfhdr.Phdr{}, false
}

// runInitArray calls DT_INIT then each DT_INIT_ARRAY entry in file order,
// per spec.md §4.8. Every entry is a zero-argument function pointer, so the
// plain func-pointer-cast pattern is safe on every architecture without an
// ABI shim (see internal/abi's package doc).
func runInitArray(info *dynamic.Info) {
	if info.Init != 0 {
		callVoidFunc(uintptr(info.Init))
	}
	if info.InitArray != 0 {
		n := int(info.InitArraySz / 8)
		for i := 0; i < n; i++ {
			entry := *(*uint64)(wordPtr(uintptr(info.InitArray) + uintptr(i*8)))
			if entry != 0 {
				callVoidFunc(uintptr(entry))
			}
		}
	}
}

// collectFinalizers gathers DT_FINI_ARRAY then DT_FINI in the reverse order
// Close must invoke them (spec.md §4.10): DT_FINI_ARRAY entries run in
// reverse file order, followed by the single DT_FINI entry last... reversed
// here so the caller can simply iterate forward.
func collectFinalizers(info *dynamic.Info) []uintptr {
	var out []uintptr
	if info.FiniArray != 0 {
		n := int(info.FiniArraySz / 8)
		for i := n - 1; i >= 0; i-- {
			entry := *(*uint64)(wordPtr(uintptr(info.FiniArray) + uintptr(i*8)))
			if entry != 0 {
				out = append(out, uintptr(entry))
			}
		}
	}
	if info.Fini != 0 {
		out = append(out, uintptr(info.Fini))
	}
	return out
}

// applyAllRelocations decodes and applies both .rela.dyn and .rela.plt
// (DT_JMPREL), per spec.md §4.6. PLT entries are JUMP_SLOT relocations,
// already handled by the same CategoryGlobDat dispatch as GLOB_DAT.
func applyAllRelocations(info *dynamic.Info, arch reloc.Arch, base uint64, resolver reloc.Resolver, shortName string, log *dlog.Logger) error {
	var entries []reloc.Entry
	if info.Rela != 0 {
		entries = append(entries, reloc.DecodeRela(info.Rela, info.Relasz)...)
	}
	if info.Jmprel != 0 {
		entries = append(entries, reloc.DecodeRela(info.Jmprel, info.Pltrelsz)...)
	}
	if len(entries) == 0 {
		return nil
	}
	return reloc.ApplyWithRetry(entries, arch, base, resolver, nil, shortName, log)
}

// chainResolver implements reloc.Resolver for one relocating library:
// builtin stubs first, then its own dynsym table, then its dependency
// closure in order, then the process-wide global scope, then the user
// resolver.
type chainResolver struct {
	self    *dylib.CoreDylib
	deps    []*dylib.CoreDylib
	globals []registry.Entry
	user    reloc.UserResolver
}

func (r *chainResolver) Resolve(symIdx uint32) (reloc.ResolvedSymbol, bool) {
	if symIdx == 0 {
		return reloc.ResolvedSymbol{}, false
	}
	sym := r.self.Symbols.Symtab.At(symIdx)
	name := r.self.Symbols.Strtab.String(sym.Name)
	if name == "" {
		return reloc.ResolvedSymbol{}, false
	}

	// spec.md §4.6: builtin stubs are consulted before the user resolver
	// and before the dependency list, so a library's own copy of e.g.
	// __tls_get_addr never shadows this loader's.
	if addr, ok := reloc.DefaultBuiltins.Resolve(name); ok {
		return reloc.ResolvedSymbol{Value: addr}, true
	}

	// spec.md §4.6 step 2: a symbol defined in this library's own symtab
	// (st_shndx != SHN_UNDEF) resolves against itself before the dependency
	// list is consulted; its module-id for DTPMOD is its own TLS module.
	if sym.Shndx != symtab.SHN_UNDEF {
		return reloc.ResolvedSymbol{Value: uint64(r.self.Base) + sym.Value, ModuleID: r.self.TLSModuleID}, true
	}

	for _, dep := range r.deps {
		if s, _, ok := dep.Symbols.Hash.Lookup(name); ok && s.Shndx != symtab.SHN_UNDEF {
			return reloc.ResolvedSymbol{Value: uint64(dep.Base) + s.Value, ModuleID: dep.TLSModuleID}, true
		}
	}
	for _, g := range r.globals {
		entry, ok := g.(dylib.RegistryEntry)
		if !ok {
			continue
		}
		dep := entry.Core()
		if s, _, ok := dep.Symbols.Hash.Lookup(name); ok && s.Shndx != symtab.SHN_UNDEF {
			return reloc.ResolvedSymbol{Value: uint64(dep.Base) + s.Value, ModuleID: dep.TLSModuleID}, true
		}
	}
	if r.user != nil {
		if addr, ok := r.user.ResolveByName(name); ok {
			return reloc.ResolvedSymbol{Value: addr}, true
		}
	}
	return reloc.ResolvedSymbol{}, false
}
