package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlopenlib/dlopen/internal/dylib"
	"github.com/dlopenlib/dlopen/internal/loader"
	"github.com/dlopenlib/dlopen/internal/mmap"
	"github.com/dlopenlib/dlopen/internal/platformld"
)

func newOpenCmd() *cobra.Command {
	var global, now bool
	cmd := &cobra.Command{
		Use:   "open <path>",
		Short: "Load a shared object and its dependency closure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := buildLoader()
			if err != nil {
				return err
			}
			d, err := l.Open(args[0], dylib.OpenFlags{Global: global, Now: now})
			if err != nil {
				return err
			}
			fmt.Printf("loaded %s at base 0x%x (%d bytes), %d dependencies\n",
				d.Core.ShortName, d.Core.Base, d.Core.MapLen, len(d.Deps.Ordered))
			return nil
		},
	}
	cmd.Flags().BoolVar(&global, "global", false, "RTLD_GLOBAL: make symbols visible to later loads")
	cmd.Flags().BoolVar(&now, "now", false, "RTLD_NOW: resolve all symbols immediately")
	return cmd
}

func buildLoader() (*loader.Loader, error) {
	cfg := loadConfig()
	log := newLogger()

	bridge, err := platformld.NewBridge()
	if err != nil {
		bridge = nil
	}
	search := configSearchPath(cfg, bridge)
	return loader.New(mmap.New(), search, log), nil
}
