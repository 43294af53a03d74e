package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sat-sched/sat/internal/client"
	"github.com/sat-sched/sat/internal/wire"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list queued jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(client.Send(wire.TagList, nil, os.Stdout, os.Stderr))
			return nil
		},
	}
}
