package dylib

import "unsafe"

// readProcessMemory copies size bytes starting at base out of this
// process's own address space, the read-side counterpart to
// internal/segment's writeAt.
func readProcessMemory(base, size uintptr) ([]byte, error) {
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(base)), size))
	return out, nil
}
