package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sat-sched/sat/internal/client"
	"github.com/sat-sched/sat/internal/wire"
)

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID [ID...]",
		Short: "remove queued jobs by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				fmt.Fprintf(os.Stderr, "sat remove: %v\n", err)
				os.Exit(client.ExitUsage)
			}
			os.Exit(client.Send(wire.TagRemove, wire.EncodeIDs(ids), os.Stdout, os.Stderr))
			return nil
		},
	}
}

func parseIDs(args []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
