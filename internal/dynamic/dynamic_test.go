package dynamic

import (
	"encoding/binary"
	"testing"

	"github.com/dlopenlib/dlopen/internal/elfhdr"
)

func putTag(buf []byte, off int, tag int64, val uint64) {
	binary.LittleEndian.PutUint64(buf[off:], uint64(tag))
	binary.LittleEndian.PutUint64(buf[off+8:], val)
}

func TestParseMandatoryTags(t *testing.T) {
	buf := make([]byte, 16*5)
	putTag(buf, 0, DT_HASH, 0x100)
	putTag(buf, 16, DT_SYMTAB, 0x200)
	putTag(buf, 32, DT_STRTAB, 0x300)
	putTag(buf, 48, DT_STRSZ, 0x40)
	putTag(buf, 64, DT_NULL, 0)

	info, err := Parse(buf, elfhdr.Class64)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if info.Hash != 0x100 || info.Symtab != 0x200 || info.Strtab != 0x300 || info.Strsz != 0x40 {
		t.Fatalf("unexpected Info: %+v", info)
	}
}

func TestParseMissingMandatoryTag(t *testing.T) {
	buf := make([]byte, 16*2)
	putTag(buf, 0, DT_SYMTAB, 0x200)
	putTag(buf, 16, DT_NULL, 0)

	if _, err := Parse(buf, elfhdr.Class64); err == nil {
		t.Fatalf("Parse accepted a PT_DYNAMIC missing DT_HASH/DT_STRTAB/DT_STRSZ")
	}
}

func TestParseMissingNullTerminator(t *testing.T) {
	buf := make([]byte, 16)
	putTag(buf, 0, DT_SYMTAB, 0x200)
	if _, err := Parse(buf, elfhdr.Class64); err == nil {
		t.Fatalf("Parse accepted a PT_DYNAMIC with no DT_NULL terminator")
	}
}

func TestFinishRebasesFileRelativeOffsets(t *testing.T) {
	info := &Info{Hash: 0x100, Symtab: 0x200, Strtab: 0x300, Strsz: 0x10}
	const base = 0x7f0000000000
	info.Finish(base)

	if info.Hash != base+0x100 {
		t.Errorf("Hash = 0x%x, want 0x%x", info.Hash, base+0x100)
	}
	if !info.finished {
		t.Errorf("Finish did not mark info finished")
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	info := &Info{Hash: 0x100}
	info.Finish(0x1000)
	first := info.Hash
	info.Finish(0x9999) // a second call with a different base must be a no-op
	if info.Hash != first {
		t.Fatalf("Finish was not idempotent: Hash changed from 0x%x to 0x%x", first, info.Hash)
	}
}

func TestFinishDetectsAlreadyAbsoluteOffsets(t *testing.T) {
	const base = 0x1000
	// A value >= 2*base is treated as already absolute, per spec.md §4.4's
	// heuristic for platform-bridged (already-loaded) system libraries.
	info := &Info{Hash: 0x10000}
	info.Finish(base)
	if info.Hash != 0x10000 {
		t.Fatalf("Finish rebased an already-absolute offset: got 0x%x", info.Hash)
	}
}
