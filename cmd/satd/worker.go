package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sat-sched/sat/internal/display"
	"github.com/sat-sched/sat/internal/executor"
	"github.com/sat-sched/sat/internal/hook"
	"github.com/sat-sched/sat/internal/job"
	"github.com/sat-sched/sat/internal/store"
	"github.com/sat-sched/sat/internal/wire"
)

// workerCmd handles exactly one client command: spec.md §4.E's "spawn a
// worker (fork + exec of the worker image corresponding to the tag)".
// The supervisor hands this process the accepted connection fd (3) and
// the state fd (4) via ExtraFiles, named by the SAT_FD_CONN/SAT_FD_STATE
// environment variables, plus a request id (argv[1], assigned by the
// supervisor via wire.NewRequestID) used only to correlate this worker's
// log lines with the supervisor's "spawned worker" line above it.
func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "__worker <tag> <request-id>",
		Hidden: true,
		Args:   cobra.ExactArgs(2),
		Short:  "handle one client command (internal)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tagN, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("__worker: bad tag %q: %w", args[0], err)
			}
			reqID := args[1]
			log.Printf("__worker: req %s tag %d starting", reqID, tagN)

			conn, err := fdFromEnv("SAT_FD_CONN", "conn")
			if err != nil {
				return err
			}
			defer conn.Close()
			stateFile, err := fdFromEnv("SAT_FD_STATE", "state")
			if err != nil {
				return err
			}
			defer stateFile.Close()

			st := store.FromFile(stateFile)
			hooks := hook.NewRunner(os.Getenv(hook.HookPathEnv))
			w := wire.NewWriter(conn)

			switch wire.Tag(tagN) {
			case wire.TagEnqueue:
				doEnqueue(conn, st, hooks, w)
			case wire.TagRemove:
				doRemove(conn, st, hooks, w)
			case wire.TagList:
				doList(st, w)
			case wire.TagRunNow:
				doRunNow(conn, st, hooks, w)
			default:
				w.Errorf("__worker: unknown command tag %d", tagN)
			}
			return nil
		},
	}
}

func fdFromEnv(name, label string) (*os.File, error) {
	s := os.Getenv(name)
	if s == "" {
		return nil, fmt.Errorf("__worker: missing inherited fd env var %s", name)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("__worker: invalid fd env var %s=%q: %w", name, s, err)
	}
	return os.NewFile(uintptr(n), label), nil
}

// doEnqueue implements spec.md §4.A's append lifecycle for the ENQUEUE
// command: the request payload is a fully serialised Job (the client
// assigns no id; Append overwrites it), appended under exclusive lock,
// followed by the "queued" hook once the job is in the store. Append
// takes and releases the lock itself, so the lock is not held while the
// hook is started.
func doEnqueue(conn *os.File, st *store.Store, hooks *hook.Runner, w *wire.Writer) {
	j, err := job.DecodeRecord(conn)
	if err != nil {
		w.Errorf("enqueue: decode request: %v", err)
		return
	}
	id, err := st.Append(j)
	if err != nil {
		w.Errorf("enqueue: %v", err)
		return
	}
	j.ID = id
	hooks.Invoke(j, hook.EventQueued)
	w.Stdout([]byte(fmt.Sprintf("%d\n", id)))
}

func doRemove(conn *os.File, st *store.Store, hooks *hook.Runner, w *wire.Writer) {
	ids, err := readIDs(conn)
	if err != nil {
		w.Errorf("remove: %v", err)
		return
	}
	if len(ids) == 0 {
		w.Errorf("remove: no ids given")
		return
	}
	for _, id := range ids {
		removed, j, err := st.Remove(store.ByID(id))
		if err != nil {
			w.Errorf("remove %d: %v", id, err)
			continue
		}
		if !removed {
			w.Errorf("remove %d: no such job", id)
			continue
		}
		hooks.Invoke(j, hook.EventRemoved)
		w.Stdout([]byte(fmt.Sprintf("%d\n", id)))
	}
}

func doList(st *store.Store, w *wire.Writer) {
	jobs, err := st.Iterate()
	if err != nil {
		w.Errorf("list: %v", err)
		return
	}
	rows := make([]display.Row, 0, len(jobs))
	for _, j := range jobs {
		argv, cwd, _, err := j.Decode()
		if err != nil {
			continue
		}
		rows = append(rows, display.Row{
			ID:       j.ID,
			Argv:     argv,
			Cwd:      cwd,
			Clock:    j.Clock,
			Deadline: j.Deadline,
		})
	}
	var buf bytes.Buffer
	// The worker has no notion of the client's terminal capabilities, so
	// it renders without color; sat list itself is a pass-through of
	// these bytes to its own stdout.
	display.List(&buf, rows, false)
	w.Stdout(buf.Bytes())
}

// doRunNow implements RUN-NOW: splice every targeted job out of the
// store first (each under its own lock acquisition, never held across
// the executor's fork+exec, per spec.md §5), then force/success/failure
// hooks and the executor run outside any lock.
func doRunNow(conn *os.File, st *store.Store, hooks *hook.Runner, w *wire.Writer) {
	ids, err := readIDs(conn)
	if err != nil {
		w.Errorf("run-now: %v", err)
		return
	}

	var targets []*job.Job
	if len(ids) == 0 {
		for {
			removed, j, err := st.Remove(store.First())
			if err != nil {
				w.Errorf("run-now: %v", err)
				return
			}
			if !removed {
				break
			}
			targets = append(targets, j)
		}
	} else {
		for _, id := range ids {
			removed, j, err := st.Remove(store.ByID(id))
			if err != nil {
				w.Errorf("run-now %d: %v", id, err)
				continue
			}
			if !removed {
				w.Errorf("run-now %d: no such job", id)
				continue
			}
			targets = append(targets, j)
		}
	}

	for _, j := range targets {
		hooks.Invoke(j, hook.EventForced)
		result := executor.Run(j)
		if result.Succeeded() {
			hooks.Invoke(j, hook.EventSuccess)
		} else {
			hooks.Invoke(j, hook.EventFailure)
		}
		w.Stdout([]byte(fmt.Sprintf("%d\n", j.ID)))
	}
}

func readIDs(r io.Reader) ([]uint64, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read id list: %w", err)
	}
	return wire.DecodeIDs(payload)
}
