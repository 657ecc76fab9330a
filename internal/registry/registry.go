// Package registry tracks every loaded library by short name, keeping the
// insertion order the spec's dependency-ordered init/fini calls rely on, and
// maintains the "all loaded" vs. "global-scope" distinction RTLD_GLOBAL vs
// RTLD_LOCAL draws (spec.md §4.9, §6.4).
package registry

import "sync"

// Entry is the minimal view the registry itself needs; the wrapper returned
// by dylib.AsRegistryEntry satisfies this, keeping registry decoupled from
// the full dylib model.
type Entry interface {
	ShortName() string
	Base() uintptr
}

// Registry holds every loaded library (all) and the subset visible to
// later symbol lookups from unrelated libraries (global), both as
// insertion-ordered slices so iteration matches load order, alongside a
// name index for O(1) lookup.
type Registry struct {
	mu sync.RWMutex

	allOrder []string
	all      map[string]Entry

	globalOrder []string
	global      map[string]bool

	// debugHead threads a linked list mirroring glibc's r_debug/link_map
	// rendezvous structure, so an external debugger (or a test) can walk
	// loaded libraries the same way it would against a real ld.so.
	debugHead *LinkMapNode
	debugTail *LinkMapNode
}

// LinkMapNode is one node of the debug rendezvous list (spec.md §6.4).
type LinkMapNode struct {
	ShortName string
	Base      uintptr
	Next      *LinkMapNode
	Prev      *LinkMapNode
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		all:    make(map[string]Entry),
		global: make(map[string]bool),
	}
}

// Register adds e under shortName if not already present (idempotent:
// spec.md §4.8 requires repeat opens of the same library to be a no-op
// besides a refcount bump, which the caller — internal/dylib — tracks; the
// registry itself just reports whether this call actually inserted).
func (r *Registry) Register(shortName string, e Entry) (inserted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.all[shortName]; ok {
		return false
	}
	r.all[shortName] = e
	r.allOrder = append(r.allOrder, shortName)

	node := &LinkMapNode{ShortName: shortName, Base: e.Base()}
	if r.debugTail == nil {
		r.debugHead = node
	} else {
		r.debugTail.Next = node
		node.Prev = r.debugTail
	}
	r.debugTail = node
	return true
}

// Unregister removes a library entirely, once its refcount reaches zero.
func (r *Registry) Unregister(shortName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.all, shortName)
	delete(r.global, shortName)
	r.allOrder = removeName(r.allOrder, shortName)
	r.globalOrder = removeName(r.globalOrder, shortName)

	for n := r.debugHead; n != nil; n = n.Next {
		if n.ShortName != shortName {
			continue
		}
		if n.Prev != nil {
			n.Prev.Next = n.Next
		} else {
			r.debugHead = n.Next
		}
		if n.Next != nil {
			n.Next.Prev = n.Prev
		} else {
			r.debugTail = n.Prev
		}
		break
	}
}

// PromoteGlobal marks shortName visible to symbol lookups performed on
// behalf of any other library (RTLD_GLOBAL), per spec.md §4.9.
func (r *Registry) PromoteGlobal(shortName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.global[shortName] {
		return
	}
	r.global[shortName] = true
	r.globalOrder = append(r.globalOrder, shortName)
}

// Get looks up a loaded library by short name.
func (r *Registry) Get(shortName string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.all[shortName]
	return e, ok
}

// AllInOrder returns every loaded library, in load order.
func (r *Registry) AllInOrder() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.allOrder))
	for _, name := range r.allOrder {
		out = append(out, r.all[name])
	}
	return out
}

// GlobalInOrder returns the global-scope subset, in the order each was
// promoted, for use as the search order in an undecorated symbol lookup
// that falls through every library's own dependency list.
func (r *Registry) GlobalInOrder() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.globalOrder))
	for _, name := range r.globalOrder {
		out = append(out, r.all[name])
	}
	return out
}

// DebugHead returns the head of the rendezvous list, for a debugger (or
// test) to walk exactly as it would glibc's r_debug->r_map chain.
func (r *Registry) DebugHead() *LinkMapNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.debugHead
}

func removeName(s []string, name string) []string {
	out := s[:0]
	for _, v := range s {
		if v != name {
			out = append(out, v)
		}
	}
	return out
}
