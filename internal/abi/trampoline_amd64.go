package abi

// trampolineEntry and thunk are implemented in trampoline_amd64.s.
func trampolineEntry() uintptr

// targetFn is the current callable's Go entry point; thunk reads it on
// every invocation, so only one trampoline target is live at a time. This
// loader only ever installs one (__tls_get_addr), which is sufficient.
var targetFn uintptr

func init() {
	callableFunc1 = func(fn uintptr) uintptr {
		targetFn = fn
		return trampolineEntry()
	}
}
