package main

import (
	"fmt"

	"github.com/ianlancetaylor/demangle"
	"github.com/spf13/cobra"

	"github.com/dlopenlib/dlopen/internal/dylib"
	"github.com/dlopenlib/dlopen/internal/elfhdr"
	"github.com/dlopenlib/dlopen/internal/mmap"
)

func newSymbolsCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "symbols <path>",
		Short: "List the exported dynamic symbols of a shared object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := listDynamicSymbols(args[0])
			if err != nil {
				return err
			}
			for _, n := range names {
				if raw {
					fmt.Println(n)
					continue
				}
				if demangled, err := demangle.ToString(n, demangle.NoParams); err == nil {
					fmt.Println(demangled)
				} else {
					fmt.Println(n)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "don't demangle C++ names")
	return cmd
}

// listDynamicSymbols parses and maps path but does not relocate it; symbol
// enumeration only needs the tables, not a relocated address space
// (spec.md §4.5).
func listDynamicSymbols(path string) ([]string, error) {
	src, err := dylib.FromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := src.Bytes()
	if err != nil {
		return nil, err
	}
	parsed, err := dylib.ParseAndMap(mmap.New(), data)
	if err != nil {
		return nil, err
	}
	defer parsed.Mapping.Unmap()

	table, err := dylib.BuildSymbolTable(parsed.Dyn, parsed.Header.Class == elfhdr.Class32)
	if err != nil {
		return nil, err
	}

	indices := table.Hash.AllIndices()
	names := make([]string, 0, len(indices))
	seen := make(map[uint32]bool, len(indices))
	for _, idx := range indices {
		if seen[idx] {
			continue
		}
		seen[idx] = true
		sym := table.Symtab.At(idx)
		names = append(names, table.Strtab.String(sym.Name))
	}
	return names, nil
}
