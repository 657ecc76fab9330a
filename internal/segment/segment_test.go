package segment

import (
	"testing"

	"github.com/dlopenlib/dlopen/internal/elfhdr"
	"github.com/dlopenlib/dlopen/internal/mmap"
)

func TestLoadRejectsNoLoadSegments(t *testing.T) {
	m := mmap.NewHeap()
	phdrs := []elfhdr.Phdr{{Type: elfhdr.PT_DYNAMIC, VAddr: 0x1000, MemSz: 0x100}}
	if _, err := Load(m, phdrs, nil); err == nil {
		t.Fatalf("Load succeeded with no PT_LOAD entries")
	}
}

func TestLoadPlacesSegmentAndReportsBias(t *testing.T) {
	m := mmap.NewHeap()
	data := make([]byte, 0x2000)
	for i := range data[0x1000:0x1010] {
		data[0x1000+i] = byte(i + 1)
	}

	phdrs := []elfhdr.Phdr{
		{Type: elfhdr.PT_LOAD, VAddr: 0, Offset: 0, FileSz: 0x1000, MemSz: 0x1000, Flags: 0x4},
		{Type: elfhdr.PT_LOAD, VAddr: 0x1000, Offset: 0x1000, FileSz: 0x10, MemSz: 0x20, Flags: 0x6},
	}

	mapping, err := Load(m, phdrs, data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if mapping.Base == 0 || mapping.Len == 0 {
		t.Fatalf("Load returned an empty mapping: %+v", mapping)
	}

	runtimeAddr := mapping.RuntimeAddr(0x1000)
	if runtimeAddr != mapping.Base+0x1000 {
		t.Fatalf("RuntimeAddr(0x1000) = 0x%x, want 0x%x", runtimeAddr, mapping.Base+0x1000)
	}

	if err := mapping.Unmap(); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
}

func TestLoadRejectsSegmentPastFileEnd(t *testing.T) {
	m := mmap.NewHeap()
	data := make([]byte, 0x10)
	phdrs := []elfhdr.Phdr{
		{Type: elfhdr.PT_LOAD, VAddr: 0, Offset: 0, FileSz: 0x1000, MemSz: 0x1000, Flags: 0x4},
	}
	if _, err := Load(m, phdrs, data); err == nil {
		t.Fatalf("Load succeeded reading a file range past the data it was given")
	}
}
