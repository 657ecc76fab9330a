// Package abi bridges the platform C calling convention used by relocated
// ELF code to Go's internal register ABI, for the small set of entry points
// foreign machine code must be able to call directly: __tls_get_addr
// (spec.md §4.7, §6.2); there is no lazy PLT resolver stub, since relocation
// is always eager. Everywhere else this loader
// only needs to call *into* foreign code (DT_INIT, ifunc resolvers), which a
// plain function-pointer cast already handles since those calls pass no
// arguments.
//
// A single-pointer-argument Go function's entry point can be called directly
// from C on arm64, because Go's ABIInternal happens to assign the first
// integer/pointer argument to the same register (R0/X0) as AAPCS64. amd64
// is not so fortunate: ABIInternal's first argument register is AX, while
// SysV places it in DI. Trampoline bridges that gap with a one-instruction
// register move per architecture, implemented in trampoline_<GOARCH>.s.
//
// fn must be a plain (non-closure) function of the shape func(uintptr) uintptr;
// a closure's captured-variable pointer would need its own calling-convention
// register, which this package does not attempt to thread through.
package abi

import (
	"fmt"
	"reflect"
	"runtime"
)

// ErrUnsupportedArch is returned by MakeCallable on architectures without a
// trampoline (spec.md's arch list: x86_64, i386, aarch64, riscv64; only the
// first and third have one here since a single-pointer TLS getter is the
// only caller-facing entry point this loader installs).
var ErrUnsupportedArch = fmt.Errorf("abi: no trampoline for %s", runtime.GOARCH)

// callableFunc1 is implemented per architecture: it returns the address of a
// small machine-code thunk that, when entered with a pointer argument in the
// platform's C-ABI argument register, moves it into place for fn and jumps
// to fn's entry point.
var callableFunc1 func(fn uintptr) uintptr

// MakeCallable returns the process address at which fn can be invoked by
// foreign machine code using the platform C calling convention with one
// pointer argument and one pointer return value.
func MakeCallable(fn func(uintptr) uintptr) (uintptr, error) {
	if callableFunc1 == nil {
		return 0, ErrUnsupportedArch
	}
	entry := reflect.ValueOf(fn).Pointer()
	return callableFunc1(entry), nil
}
