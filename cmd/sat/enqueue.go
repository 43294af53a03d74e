package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sat-sched/sat/internal/bootclock"
	"github.com/sat-sched/sat/internal/client"
	"github.com/sat-sched/sat/internal/job"
	"github.com/sat-sched/sat/internal/timeparse"
	"github.com/sat-sched/sat/internal/wire"
)

// enqueueCmd implements `enqueue TIME COMMAND [ARG...]`: spec.md §6.
// Flag parsing is disabled so COMMAND's own flags pass through
// untouched; this command does its own minimal positional-argument
// handling instead of Cobra's.
func enqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "enqueue TIME COMMAND [ARG...]",
		Short:              "schedule COMMAND to run at TIME",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				fmt.Fprintln(os.Stderr, "sat enqueue: usage: sat enqueue TIME COMMAND [ARG...]")
				os.Exit(client.ExitUsage)
			}
			timeStr, argv := args[0], args[1:]
			if argv[0] == "--" {
				argv = argv[1:]
			} else if len(argv[0]) > 1 && argv[0][0] == '-' {
				fmt.Fprintf(os.Stderr, "sat enqueue: unexpected option %q (use -- to pass it through)\n", argv[0])
				os.Exit(client.ExitUsage)
			}
			if len(argv) == 0 {
				fmt.Fprintln(os.Stderr, "sat enqueue: missing command")
				os.Exit(client.ExitUsage)
			}

			boot, wall := bootclock.Now()
			res, err := timeparse.Parse(timeStr, timeparse.Now{Boot: boot, Wall: wall})
			if err != nil {
				fmt.Fprintf(os.Stderr, "sat enqueue: %v\n", err)
				os.Exit(client.ExitUsage)
			}
			for _, warning := range res.Warnings {
				fmt.Fprintf(os.Stderr, "sat enqueue: warning: %s\n", warning)
			}

			cwd, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(os.Stderr, "sat enqueue: getwd: %v\n", err)
				os.Exit(client.ExitLocalError)
			}

			payload, err := job.EncodePayload(argv, cwd, os.Environ())
			if err != nil {
				fmt.Fprintf(os.Stderr, "sat enqueue: %v\n", err)
				os.Exit(client.ExitLocalError)
			}
			j := &job.Job{
				Argc:     int32(len(argv)),
				Clock:    res.Clock,
				Deadline: res.Deadline,
				Payload:  payload,
			}

			var buf bytes.Buffer
			if err := job.EncodeRecord(&buf, j); err != nil {
				fmt.Fprintf(os.Stderr, "sat enqueue: %v\n", err)
				os.Exit(client.ExitLocalError)
			}

			os.Exit(client.Send(wire.TagEnqueue, buf.Bytes(), os.Stdout, os.Stderr))
			return nil
		},
	}
}
