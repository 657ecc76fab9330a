package unwind

import "unsafe"

// TableBackend reads the binary search table a linker emits into
// .eh_frame_hdr (DWARF CFI augmentation, eh_frame_hdr(5)) to locate the FDE
// covering a given PC without scanning .eh_frame linearly. It supports the
// common encoding GCC and LLVM both emit: DW_EH_PE_datarel | DW_EH_PE_sdata4
// for both the initial-location and FDE-address columns.
type TableBackend struct{}

const (
	dwEHPEOmit    = 0xff
	dwEHPEUData4  = 0x03
	dwEHPESData4  = 0x0b
	dwEHPEPCRel   = 0x10
	dwEHPEDataRel = 0x30
)

type hdrHeader struct {
	Version      uint8
	EHFramePtrEnc uint8
	FDECountEnc   uint8
	TableEnc      uint8
}

func (TableBackend) FindFDE(info Info, pc uintptr) (uintptr, bool) {
	base := info.EHFrameHdr
	if base == 0 {
		return 0, false
	}
	hdr := *(*hdrHeader)(unsafe.Pointer(base))
	if hdr.Version != 1 {
		return 0, false
	}
	if hdr.TableEnc == dwEHPEOmit {
		return 0, false
	}

	cursor := base + 4 // past the 4-byte header
	// eh_frame_ptr gives the absolute address of .eh_frame itself: this
	// loader has no section header table to read that address from
	// directly, so it comes from here instead of from the caller.
	ehFramePtr, w := readEncoded(cursor, hdr.EHFramePtrEnc, base)
	cursor += w

	fdeCount, width := readEncoded(cursor, hdr.FDECountEnc, base)
	cursor += width

	entrySize := encWidth(hdr.TableEnc) * 2
	if entrySize == 0 || fdeCount == 0 {
		return 0, false
	}

	lo, hi := uint64(0), fdeCount
	var bestFDE uintptr
	found := false
	for lo < hi {
		mid := (lo + hi) / 2
		entryAddr := cursor + uintptr(mid)*entrySize
		initialLoc, w := readEncoded(entryAddr, hdr.TableEnc, base)
		fdeAddr, _ := readEncoded(entryAddr+w, hdr.TableEnc, base)
		if uintptr(initialLoc) <= pc {
			bestFDE = uintptr(fdeAddr)
			found = true
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if !found {
		return 0, false
	}
	return bestFDE - uintptr(ehFramePtr), true
}

func encWidth(enc uint8) uintptr {
	switch enc & 0x0f {
	case dwEHPEUData4, dwEHPESData4:
		return 4
	default:
		return 0
	}
}

// readEncoded reads one table value at addr, returning it and the number of
// bytes consumed. Only the sdata4/udata4 forms are handled, either absolute,
// pc-relative (eh_frame_ptr as GCC and LLVM emit it) or datarel; anything
// else returns width 0, and encWidth likewise reports 0 for such a table
// encoding so FindFDE fails to resolve.
func readEncoded(addr uintptr, enc uint8, base uintptr) (uint64, uintptr) {
	form := enc & 0x0f
	application := enc & 0x70

	var raw int64
	var width uintptr
	switch form {
	case dwEHPEUData4:
		raw = int64(*(*uint32)(unsafe.Pointer(addr)))
		width = 4
	case dwEHPESData4:
		raw = int64(*(*int32)(unsafe.Pointer(addr)))
		width = 4
	default:
		return 0, 0
	}

	val := uint64(raw)
	switch application {
	case dwEHPEDataRel:
		val = uint64(int64(base) + raw)
	case dwEHPEPCRel:
		val = uint64(int64(addr) + raw)
	}
	return val, width
}
