package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sat-sched/sat/internal/client"
	"github.com/sat-sched/sat/internal/wire"
)

func runNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-now [ID...]",
		Short: "execute queued jobs immediately, bypassing their deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				fmt.Fprintf(os.Stderr, "sat run-now: %v\n", err)
				os.Exit(client.ExitUsage)
			}
			os.Exit(client.Send(wire.TagRunNow, wire.EncodeIDs(ids), os.Stdout, os.Stderr))
			return nil
		},
	}
}
