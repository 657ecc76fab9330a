package segment

import "unsafe"

// writeAt copies data into the process's own address space starting at
// addr. This is safe only because the caller has just mapped that exact
// range as writable; it is the one place this loader reaches past Go's type
// system to act as its own memcpy into freshly reserved memory.
func writeAt(addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(data))
	copy(dst, data)
	return nil
}
