package loader

import "unsafe"

func wordPtr(addr uintptr) unsafe.Pointer { return unsafe.Pointer(addr) }

// callVoidFunc invokes a zero-argument, zero-return function at addr —
// DT_INIT, one DT_INIT_ARRAY/DT_FINI_ARRAY entry, or DT_FINI. No ABI shim
// is needed here: with no arguments to place, SysV/AAPCS64 and Go's
// ABIInternal agree trivially (see internal/abi's package doc).
func callVoidFunc(addr uintptr) {
	fn := *(*func())(unsafe.Pointer(&addr))
	fn()
}
