package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlopenlib/dlopen/internal/dylib"
	"github.com/dlopenlib/dlopen/internal/loader"
)

// newIterateCmd loads every path given, then walks the resulting debug
// rendezvous list the way a debugger attached to this process would,
// matching dl_iterate_phdr's contract (spec.md §6.4) rather than this
// process's Go-level load order, in case the two ever diverge.
func newIterateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iterate <path>...",
		Short: "Load one or more libraries, then walk the debug link map",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := buildLoader()
			if err != nil {
				return err
			}
			for _, p := range args {
				if _, err := l.Open(p, dylib.OpenFlags{}); err != nil {
					return err
				}
			}
			printLinkMap(l)
			return nil
		},
	}
	return cmd
}

func printLinkMap(l *loader.Loader) {
	for n := l.DebugHead(); n != nil; n = n.Next {
		fmt.Printf("%-32s base=0x%x\n", n.ShortName, n.Base)
	}
}
