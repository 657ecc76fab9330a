package reloc

import (
	"runtime"

	"github.com/dlopenlib/dlopen/internal/elfhdr"
)

// Arch is a per-architecture relocation dispatch table: the r_type -> action
// mapping from spec.md §6.2, plus TLS_DTV_OFFSET (0 except riscv64).
type Arch struct {
	Machine      elfhdr.Machine
	TLSDTVOffset uint64
	table        map[uint32]Category
}

// Dispatch resolves r_type to a relocation Category.
func (a Arch) Dispatch(rType uint32) (Category, bool) {
	if rType == 0 {
		return CategoryNone, true
	}
	cat, ok := a.table[rType]
	return cat, ok
}

// x86_64 relocation type constants (R_X86_64_*).
const (
	rX8664None      = 0
	rX8664_64       = 1
	rX8664PC32      = 2
	rX8664GlobDat   = 6
	rX8664JumpSlot  = 7
	rX8664Relative  = 8
	rX8664DTPMod64  = 16
	rX8664DTPOff64  = 17
	rX8664IRelative = 37
)

// X86_64 returns the x86_64 dispatch table.
func X86_64() Arch {
	return Arch{
		Machine:      elfhdr.MachineX86_64,
		TLSDTVOffset: 0,
		table: map[uint32]Category{
			rX8664None:      CategoryNone,
			rX8664_64:       CategoryAbs,
			rX8664GlobDat:   CategoryGlobDat,
			rX8664JumpSlot:  CategoryGlobDat,
			rX8664Relative:  CategoryRelative,
			rX8664DTPMod64:  CategoryDTPMod,
			rX8664DTPOff64:  CategoryDTPOff,
			rX8664IRelative: CategoryIRelative,
		},
	}
}

// i386 relocation type constants (R_386_*).
const (
	r386None     = 0
	r38632       = 1
	r386GlobDat  = 6
	r386JumpSlot = 7
	r386Relative = 8
	r386TLSDTPMod32 = 35
	r386TLSDTPOff32 = 36
)

// I386 returns the i386 dispatch table.
func I386() Arch {
	return Arch{
		Machine:      elfhdr.Machine386,
		TLSDTVOffset: 0,
		table: map[uint32]Category{
			r386None:        CategoryNone,
			r38632:          CategoryAbs,
			r386GlobDat:     CategoryGlobDat,
			r386JumpSlot:    CategoryGlobDat,
			r386Relative:    CategoryRelative,
			r386TLSDTPMod32: CategoryDTPMod,
			r386TLSDTPOff32: CategoryDTPOff,
		},
	}
}

// aarch64 relocation type constants (R_AARCH64_*).
const (
	rAArch64None       = 0
	rAArch64Abs64      = 257
	rAArch64GlobDat    = 1025
	rAArch64JumpSlot   = 1026
	rAArch64Relative   = 1027
	rAArch64TLSDTPMod  = 1028
	rAArch64TLSDTPOff  = 1029
)

// AArch64 returns the aarch64 dispatch table. aarch64 has no IRELATIVE type
// in the public ABI table (ifunc resolution piggybacks on GLOB_DAT for that
// architecture in practice); this loader treats it the same as x86_64 would
// only if/when a future revision adds it, so it is deliberately absent here.
func AArch64() Arch {
	return Arch{
		Machine:      elfhdr.MachineAArch64,
		TLSDTVOffset: 0,
		table: map[uint32]Category{
			rAArch64None:      CategoryNone,
			rAArch64Abs64:     CategoryAbs,
			rAArch64GlobDat:   CategoryGlobDat,
			rAArch64JumpSlot:  CategoryGlobDat,
			rAArch64Relative:  CategoryRelative,
			rAArch64TLSDTPMod: CategoryDTPMod,
			rAArch64TLSDTPOff: CategoryDTPOff,
		},
	}
}

// riscv64 relocation type constants (R_RISCV_*).
const (
	rRISCVNone        = 0
	rRISCV64          = 2
	rRISCVRelative    = 3
	rRISCVJumpSlot    = 5
	rRISCVTLSDTPMod64 = 7
	rRISCVTLSDTPOff64 = 9
)

// RISCV64 returns the riscv64 dispatch table. TLS_DTV_OFFSET is 0x800 on
// this architecture, per spec.md §6.2.
func RISCV64() Arch {
	return Arch{
		Machine:      elfhdr.MachineRISCV,
		TLSDTVOffset: 0x800,
		table: map[uint32]Category{
			rRISCVNone:        CategoryNone,
			rRISCV64:          CategoryAbs,
			rRISCVRelative:    CategoryRelative,
			rRISCVJumpSlot:    CategoryGlobDat,
			rRISCVTLSDTPMod64: CategoryDTPMod,
			rRISCVTLSDTPOff64: CategoryDTPOff,
		},
	}
}

// HostDTVOffset returns TLS_DTV_OFFSET for the process's own architecture
// (runtime.GOARCH), the same constant embedded per machine in the tables
// above. internal/tlsmgr uses this to undo, in __tls_get_addr, the
// subtraction CategoryDTPOff applies when a DTPOFF relocation is written
// (spec.md §4.7/§6.2).
func HostDTVOffset() uint64 {
	if runtime.GOARCH == "riscv64" {
		return 0x800
	}
	return 0
}

// ForMachine returns the dispatch table for an elfhdr.Machine, or ok=false
// if this loader doesn't carry a table for it (spec.md §6.2 only lists
// x86_64, i386, aarch64, riscv64).
func ForMachine(m elfhdr.Machine) (Arch, bool) {
	switch m {
	case elfhdr.MachineX86_64:
		return X86_64(), true
	case elfhdr.Machine386:
		return I386(), true
	case elfhdr.MachineAArch64:
		return AArch64(), true
	case elfhdr.MachineRISCV:
		return RISCV64(), true
	default:
		return Arch{}, false
	}
}
