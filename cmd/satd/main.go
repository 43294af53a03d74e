// Command satd is the sat daemon: bootstrap, the supervisor loop, and
// the per-command worker images, selected by hidden Cobra subcommands
// (spec.md §4.E/§4.H, SPEC_FULL.md's "Go process model"). Operators
// never invoke satd directly in ordinary use — internal/client starts it
// on demand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "satd",
	Short:         "supervises the per-user sat job queue",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(bootstrapCmd(), loopCmd(), workerCmd(), watchCmd())
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "satd: %v\n", err)
		os.Exit(1)
	}
}
