package dylib

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dlopenlib/dlopen/internal/dlog"
	"github.com/dlopenlib/dlopen/internal/dynamic"
	"github.com/dlopenlib/dlopen/internal/elfhdr"
	"github.com/dlopenlib/dlopen/internal/gnuhash"
	"github.com/dlopenlib/dlopen/internal/mmap"
	"github.com/dlopenlib/dlopen/internal/segment"
	"github.com/dlopenlib/dlopen/internal/symtab"
	"github.com/dlopenlib/dlopen/internal/symver"
	"github.com/dlopenlib/dlopen/internal/unwind"
)

// SymbolTable bundles the lookup structures a resolved CoreDylib exposes,
// per spec.md §4.5.
type SymbolTable struct {
	Hash   *gnuhash.Table
	Symtab symtab.SymTab
	Strtab symtab.StrTab

	Versym  *symver.VersymTable
	Verdef  *symver.VerdefTable
	Verneed *symver.VerneedTable
}

// CoreDylib is one fully mapped and relocated library: the unit the
// registry and the TLS/unwind managers operate on.
type CoreDylib struct {
	LoadID        uuid.UUID
	CanonicalName string
	ShortName     string

	Base   uintptr
	MapLen uintptr
	Phdrs  []elfhdr.Phdr

	Dyn     *dynamic.Info
	Symbols SymbolTable
	Needed  []string

	// Finalizers holds DT_FINI_ARRAY entries in reverse array order, then
	// DT_FINI, already biased to absolute addresses, in the order they run
	// at unload.
	Finalizers []uintptr

	TLSModuleID uint64 // 0 if this library has no PT_TLS segment
	UnwindInfo  *unwind.Info

	mapping *segment.Mapping
}

// registryEntry adapts a CoreDylib to the registry.Entry interface, which
// needs ShortName()/Base() as methods while CoreDylib exposes them as
// plain fields for everything else in this package.
type registryEntry struct{ core *CoreDylib }

func (e registryEntry) ShortName() string { return e.core.ShortName }
func (e registryEntry) Base() uintptr     { return e.core.Base }

// Core returns the wrapped library, letting a resolver recover the full
// CoreDylib (symbol tables, TLS module id) from a registry lookup.
func (e registryEntry) Core() *CoreDylib { return e.core }

// RegistryEntry is the concrete type AsRegistryEntry returns; callers that
// need the underlying CoreDylib back (internal/loader's global-scope
// resolver) type-assert to this.
type RegistryEntry interface {
	ShortName() string
	Base() uintptr
	Core() *CoreDylib
}

// AsRegistryEntry wraps d for internal/registry.Register/Get round-trips.
func AsRegistryEntry(d *CoreDylib) RegistryEntry {
	return registryEntry{core: d}
}

// OpenFlags mirrors the RTLD_* flags from spec.md §4.9.
type OpenFlags struct {
	Global   bool // RTLD_GLOBAL vs RTLD_LOCAL
	Now      bool // RTLD_NOW vs RTLD_LAZY; relocation is always eager, so Now=false does not defer JUMP_SLOT binding
	NoDelete bool
}

// DepClosure is the resolved, ordered dependency list shared by a Dylib and
// everything it transitively needs, computed once by internal/loader and
// reused for every relocation pass against that library.
type DepClosure struct {
	Ordered []*CoreDylib
}

// Dylib is the user-facing handle returned by internal/loader.Open: a
// CoreDylib plus the flags it was opened with and its resolved dependency
// closure.
type Dylib struct {
	Core  *CoreDylib
	Flags OpenFlags
	Deps  *DepClosure

	refs int
}

// Retain/Release implement the refcounting spec.md §4.8 requires for
// repeated Open calls against the same library.
func (d *Dylib) Retain() { d.refs++ }

// Release decrements the refcount, returning true once it reaches zero and
// the library is ready to be torn down.
func (d *Dylib) Release() bool {
	d.refs--
	return d.refs <= 0
}

// Parsed is the intermediate result of header/segment/dynamic parsing,
// before relocation and registry insertion — the boundary between
// "mapped" and "linked" in spec.md §4's pipeline.
type Parsed struct {
	Header *elfhdr.Header
	Phdrs  []elfhdr.Phdr
	Mapping *segment.Mapping
	Dyn    *dynamic.Info
}

// ParseAndMap runs header validation, program-header parsing, and segment
// placement: the first three pipeline stages from spec.md §4, common to
// every Source variant.
func ParseAndMap(mapper mmap.Mapper, data []byte) (*Parsed, error) {
	hdr, err := elfhdr.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("dylib: %w", err)
	}
	phdrs, err := elfhdr.ReadPhdrs(hdr, data)
	if err != nil {
		return nil, fmt.Errorf("dylib: %w", err)
	}
	mapping, err := segment.Load(mapper, phdrs, data)
	if err != nil {
		return nil, fmt.Errorf("dylib: %w", err)
	}

	var dynPhdr *elfhdr.Phdr
	for i := range phdrs {
		if phdrs[i].Type == elfhdr.PT_DYNAMIC {
			dynPhdr = &phdrs[i]
			break
		}
	}
	if dynPhdr == nil {
		mapping.Unmap()
		return nil, fmt.Errorf("dylib: no PT_DYNAMIC segment (not a shared object)")
	}

	dynAddr := mapping.RuntimeAddr(dynPhdr.VAddr)
	dynBytes, err := readProcessMemory(dynAddr, uintptr(dynPhdr.FileSz))
	if err != nil {
		mapping.Unmap()
		return nil, err
	}
	info, err := dynamic.Parse(dynBytes, hdr.Class)
	if err != nil {
		mapping.Unmap()
		return nil, fmt.Errorf("dylib: %w", err)
	}
	info.Finish(uint64(mapping.Bias))

	return &Parsed{Header: hdr, Phdrs: phdrs, Mapping: mapping, Dyn: info}, nil
}

// BuildSymbolTable wires the resolved dynamic section addresses into the
// gnuhash/symtab/symver views used for lookup, per spec.md §4.5.
func BuildSymbolTable(info *dynamic.Info, is32 bool) (SymbolTable, error) {
	if !info.GNUHash {
		return SymbolTable{}, fmt.Errorf("dylib: DT_HASH (SysV hash) symbol tables are not supported, only DT_GNU_HASH")
	}
	st := symtab.NewSymTab(info.Symtab, is32)
	strs := symtab.StrTab{Base: info.Strtab, Size: info.Strsz}

	table := SymbolTable{Symtab: st, Strtab: strs}
	if info.Versym != 0 {
		v := symver.VersymTable{Base: info.Versym}
		table.Versym = &v
	}
	if info.Verdef != 0 {
		vd := symver.VerdefTable{Base: info.Verdef, Num: info.VerdefNum, Strs: strs}
		table.Verdef = &vd
	}
	if info.Verneed != 0 {
		vn := symver.VerneedTable{Base: info.Verneed, Num: info.VerneedNum, Strs: strs}
		table.Verneed = &vn
	}

	// Versym/Verdef are threaded into the hash table itself so every Lookup
	// enforces the unversioned-caller default-version rule, not just callers
	// that happen to check symver.Matches themselves.
	wordBytes := uint64(8)
	if is32 {
		wordBytes = 4
	}
	table.Hash = gnuhash.New(info.Hash, st, strs, wordBytes, table.Versym, table.Verdef)
	return table, nil
}

// NewLoadID mints the correlation id a CoreDylib carries through its whole
// lifecycle (open -> relocate -> init -> registry -> finalize), in the
// spirit of the teacher's trace/event correlation.
func NewLoadID() uuid.UUID { return uuid.New() }

// LogLoad emits the "mapped" lifecycle event, once a library's segments are
// placed but before relocation.
func LogLoad(log *dlog.Logger, shortName string) {
	if log != nil {
		log.Lifecycle("mapped", shortName)
	}
}
