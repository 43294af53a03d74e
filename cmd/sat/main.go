// Command sat is the client: enqueue, list, remove, run-now, and status,
// talking to satd over a user-local stream socket (spec.md §4.G). It
// auto-starts the daemon on first use.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "sat",
	Short:         "schedule and manage at-style jobs",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(enqueueCmd(), listCmd(), removeCmd(), runNowCmd(), statusCmd())
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sat: %v\n", err)
		os.Exit(1)
	}
}
