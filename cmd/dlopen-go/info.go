package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/arch/arm64/arm64asm"

	"github.com/dlopenlib/dlopen/internal/dylib"
	"github.com/dlopenlib/dlopen/internal/elfhdr"
	"github.com/dlopenlib/dlopen/internal/mmap"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <path>",
		Short: "Show ELF header, segment layout, and dependency list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showInfo(args[0])
		},
	}
	return cmd
}

func showInfo(path string) error {
	src, err := dylib.FromPath(path)
	if err != nil {
		return err
	}
	data, err := src.Bytes()
	if err != nil {
		return err
	}

	hdr, err := elfhdr.Parse(data)
	if err != nil {
		return err
	}
	fmt.Printf("class:   %v\n", hdr.Class)
	fmt.Printf("machine: %v\n", hdr.Machine)
	fmt.Printf("type:    %v\n", hdr.Type)
	fmt.Printf("entry:   0x%x\n", hdr.Entry)

	phdrs, err := elfhdr.ReadPhdrs(hdr, data)
	if err != nil {
		return err
	}
	fmt.Printf("\nprogram headers (%d):\n", len(phdrs))
	for _, p := range phdrs {
		fmt.Printf("  type=0x%x flags=0x%x off=0x%x vaddr=0x%x filesz=0x%x memsz=0x%x\n",
			p.Type, p.Flags, p.Offset, p.VAddr, p.FileSz, p.MemSz)
	}

	parsed, err := dylib.ParseAndMap(mmap.New(), data)
	if err != nil {
		return err
	}
	defer parsed.Mapping.Unmap()

	needed, _ := parsed.Dyn.NeededNames()
	fmt.Printf("\nneeded (%d):\n", len(needed))
	for _, n := range needed {
		fmt.Printf("  %s\n", n)
	}

	if hdr.Machine == elfhdr.MachineAArch64 {
		disassembleEntry(parsed, hdr)
	}
	return nil
}

// disassembleEntry prints the first few instructions at the entry point,
// using golang.org/x/arch's arm64 disassembler — useful for eyeballing
// whether an entry point looks like a normal _start or something hand
// rolled, the same sanity check the teacher's `info` command ran before
// committing to an emulation run.
func disassembleEntry(parsed *dylib.Parsed, hdr *elfhdr.Header) {
	addr := parsed.Mapping.RuntimeAddr(hdr.Entry)
	code, err := readBytes(addr, 64)
	if err != nil {
		return
	}
	fmt.Println("\nentry point disassembly:")
	off := 0
	for off+4 <= len(code) {
		inst, err := arm64asm.Decode(code[off : off+4])
		if err != nil {
			fmt.Printf("  0x%x: (decode error)\n", hdr.Entry+uint64(off))
			off += 4
			continue
		}
		fmt.Printf("  0x%x: %s\n", hdr.Entry+uint64(off), inst.String())
		off += 4
	}
}
