// Command cairo-vm runs compiled Cairo zero programs: the "run" subcommand
// executes a program and optionally emits the trace/memory a prover
// consumes (spec.md §6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cairo-vm/cairo-vm-go/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cairo-vm",
		Short: "A Cairo zero virtual machine",
	}
	root.AddCommand(newRunCmd())
	return root
}

func setupLogger(verbose bool) {
	logger.New(logger.Config{Verbose: verbose, Pretty: true})
}
