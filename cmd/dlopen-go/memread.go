package main

import "unsafe"

func readBytes(addr uintptr, n int) ([]byte, error) {
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(addr)), n))
	return out, nil
}
