package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dlopenlib/dlopen/internal/config"
	"github.com/dlopenlib/dlopen/internal/dlog"
)

var (
	debug      bool
	cfgPath    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dlopen-go",
		Short: "Load and inspect ELF shared objects without cgo",
		Long: `dlopen-go maps, relocates, and initializes ELF shared objects directly
in this process, the way ld.so would, without calling the host's dlopen(3).

Examples:
  dlopen-go open ./libfoo.so              # load a library and its dependencies
  dlopen-go symbols ./libfoo.so           # list exported dynamic symbols
  dlopen-go info ./libfoo.so              # show header and segment layout
  dlopen-go iterate ./libfoo.so           # load libraries, then walk the debug link map
  dlopen-go inspect ./libfoo.so           # interactive TUI symbol browser`,
	}

	rootCmd.PersistentFlags().BoolVarP(&debug, "verbose", "v", false, "verbose debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file (defaults built in otherwise)")

	rootCmd.AddCommand(newOpenCmd())
	rootCmd.AddCommand(newSymbolsCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newIterateCmd())
	rootCmd.AddCommand(newInspectCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	if cfgPath == "" {
		return config.Default()
	}
	c, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return c
}

func newLogger() *dlog.Logger {
	return dlog.New(debug)
}
