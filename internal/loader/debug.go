package loader

import "github.com/dlopenlib/dlopen/internal/registry"

// DebugHead exposes the registry's rendezvous list head, the Go-level
// equivalent of r_debug->r_map that an external tool can walk the same way
// it would against a real ld.so (spec.md §6.4).
func (l *Loader) DebugHead() *registry.LinkMapNode {
	return l.reg.DebugHead()
}
