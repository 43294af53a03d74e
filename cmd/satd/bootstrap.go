package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sat-sched/sat/internal/bootstrap"
	"github.com/sat-sched/sat/internal/supervisor"
)

// bootstrapCmd implements spec.md §4.H's exactly-once resource
// acquisition, followed by daemonizing unless --foreground is set.
// internal/client's auto-start path execs exactly this subcommand and
// waits for it to exit: Daemonize itself blocks until the detached loop
// image signals it has reached its event loop, so exit 0 here means the
// daemon is actually ready to accept connections, not just forked.
func bootstrapCmd() *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:    "bootstrap",
		Hidden: true,
		Short:  "acquire daemon resources and start serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := bootstrap.Open()
			if err != nil {
				if errors.Is(err, bootstrap.ErrAlreadyRunning) {
					// A daemon is already listening: from the auto-start
					// caller's point of view this is success, not failure.
					fmt.Fprintln(os.Stderr, "satd: a daemon is already running")
					return nil
				}
				return err
			}

			if foreground {
				return supervisor.Run(d)
			}

			if err := d.Daemonize(); err != nil {
				d.Close()
				return err
			}
			// The detached loop image now owns every fd this process
			// acquired; release this process's copies without unlinking
			// any of the paths they point at.
			return d.Close()
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "run the supervisor loop in this process instead of daemonizing")
	return cmd
}
