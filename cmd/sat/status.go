package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sat-sched/sat/internal/bootstrap"
	"github.com/sat-sched/sat/internal/flock"
	"github.com/sat-sched/sat/internal/procinfo"
)

// statusCmd is a supplemented command (SPEC_FULL.md): it never contacts
// the daemon over the wire protocol. Instead it probes the lock file
// directly the same way the daemon itself treats its presence as
// authoritative, then reports resource usage via internal/procinfo. It
// exits 0 whether or not a daemon is running.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "report whether the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := bootstrap.RuntimePaths()
			lockFile, err := os.OpenFile(paths.Lock, os.O_RDONLY|os.O_CREATE, 0600)
			if err != nil {
				fmt.Fprintf(os.Stderr, "sat status: %v\n", err)
				return nil
			}
			defer lockFile.Close()

			probeErr := flock.TryShared(lockFile)
			if probeErr == nil {
				flock.Unlock(lockFile)
				fmt.Println("sat: no daemon running")
				return nil
			}
			if !errors.Is(probeErr, flock.ErrWouldBlock) {
				fmt.Fprintf(os.Stderr, "sat status: %v\n", probeErr)
				return nil
			}

			data, err := os.ReadFile(paths.Lock)
			if err != nil {
				fmt.Fprintf(os.Stderr, "sat status: %v\n", err)
				return nil
			}
			pid, err := strconv.ParseInt(strings.TrimSpace(firstLine(data)), 10, 32)
			if err != nil {
				fmt.Println("sat: a daemon appears to be running, but its lock file is unreadable")
				return nil
			}
			info, err := procinfo.Describe(int32(pid))
			if err != nil {
				fmt.Printf("sat: daemon pid %d is locked but not inspectable: %v\n", pid, err)
				return nil
			}
			fmt.Printf("sat: daemon running, pid %d, rss %d bytes, cpu %.1f%%, started %s\n",
				info.PID, info.RSSBytes, info.CPUPercent, info.CreateTime.Format(time.RFC3339))
			return nil
		},
	}
}

func firstLine(b []byte) string {
	if i := strings.IndexByte(string(b), '\n'); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
