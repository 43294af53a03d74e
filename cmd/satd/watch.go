package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sat-sched/sat/internal/bootstrap"
	"github.com/sat-sched/sat/internal/rundirwatch"
)

// watchCmd is an operator diagnostic, not part of the client/daemon wire
// protocol (SPEC_FULL.md's supplemented CLI surface): it reports
// external mutation of the runtime directory for debugging a misbehaving
// installation.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "__watch",
		Hidden: true,
		Short:  "watch the runtime directory for external changes (diagnostic)",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := bootstrap.RuntimePaths()
			w, err := rundirwatch.Open(paths.Dir)
			if err != nil {
				return err
			}
			defer w.Close()
			fmt.Fprintf(os.Stdout, "watching %s\n", paths.Dir)
			w.Run(func(ev rundirwatch.Event) {
				fmt.Fprintf(os.Stdout, "%s\t%s\n", ev.Kind, ev.Path)
			})
			return nil
		},
	}
}
