package abi

// trampolineEntry and thunk are implemented in trampoline_arm64.s.
func trampolineEntry() uintptr

var targetFn uintptr

func init() {
	callableFunc1 = func(fn uintptr) uintptr {
		targetFn = fn
		return trampolineEntry()
	}
}
