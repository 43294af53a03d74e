package main

import (
	"github.com/spf13/cobra"

	"github.com/sat-sched/sat/internal/bootstrap"
	"github.com/sat-sched/sat/internal/supervisor"
)

// loopCmd runs the supervisor event loop, reconstructing its Daemon from
// fds inherited across Daemonize or Reexec: spec.md §4.H's "re-exec the
// loop image to shed one-shot initialisation code". Never invoked
// directly by an operator.
func loopCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "loop",
		Hidden: true,
		Short:  "run the supervisor event loop (internal)",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := bootstrap.FromEnv()
			if err != nil {
				return err
			}
			return supervisor.Run(d)
		},
	}
}
