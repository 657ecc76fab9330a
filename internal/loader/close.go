package loader

import (
	"errors"

	"github.com/dlopenlib/dlopen/internal/dylib"
)

var errNotLoaded = errors.New("loader: library not loaded")

// Symbol resolves name against d's own dynsym table then its dependency
// closure, mirroring dlsym(3)'s default scope rather than a single-library
// lookup, per spec.md §4.9.
func (l *Loader) Symbol(d *dylib.Dylib, name string) (uintptr, bool) {
	if s, _, ok := d.Core.Symbols.Hash.Lookup(name); ok {
		return d.Core.Base + uintptr(s.Value), true
	}
	for _, dep := range d.Deps.Ordered {
		if s, _, ok := dep.Symbols.Hash.Lookup(name); ok {
			return dep.Base + uintptr(s.Value), true
		}
	}
	return 0, false
}

// Close drops a reference to shortName; once the refcount reaches zero it
// runs finalizers in order and unregisters the library, per spec.md §4.10.
// The mapping itself is intentionally left in place — unmapping executable
// pages a thread might still be returning into is unsafe without knowing
// every live call stack, so spec.md treats Close as "no [further] symbols
// resolve from it" rather than a hard munmap guarantee.
func (l *Loader) Close(shortName string) error {
	l.mu.Lock()
	d, ok := l.libs[shortName]
	if !ok {
		l.mu.Unlock()
		return &Error{Kind: ErrNotFound, Lib: shortName, Err: errNotLoaded}
	}
	done := d.Release()
	if !done {
		l.mu.Unlock()
		return nil
	}
	delete(l.libs, shortName)
	l.mu.Unlock()

	for _, fini := range d.Core.Finalizers {
		callVoidFunc(fini)
	}
	l.reg.Unregister(shortName)
	if d.Core.TLSModuleID != 0 {
		l.tls.Unregister(d.Core.TLSModuleID)
	}
	if d.Core.UnwindInfo != nil {
		l.unwindR.Unregister(d.Core.UnwindInfo.EHFrameHdr)
	}
	return nil
}
