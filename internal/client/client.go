// Package client implements the sat binary's side of the wire protocol:
// spec.md §4.G. Send computes the socket address, auto-starts the
// daemon if none is listening, sends one framed request, half-closes,
// and demultiplexes the response into the caller's stdout/stderr,
// returning an exit code.
package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sat-sched/sat/internal/bootstrap"
	"github.com/sat-sched/sat/internal/flock"
	"github.com/sat-sched/sat/internal/wire"
)

// Exit codes per spec.md §7's table for the client-side tools.
const (
	ExitOK          = 0
	ExitLocalError  = 1
	ExitUsage       = 2
	ExitDaemonError = 3
)

// Send sends one request (tag + payload) to the daemon, auto-starting it
// if necessary, and copies the demultiplexed response frames to
// stdout/stderr. It returns ExitDaemonError if any stderr frame was
// forwarded, ExitLocalError on a local I/O failure, ExitOK otherwise.
func Send(tag wire.Tag, payload []byte, stdout, stderr io.Writer) int {
	paths := bootstrap.RuntimePaths()

	if err := ensureDaemon(paths); err != nil {
		fmt.Fprintf(stderr, "sat: %v\n", err)
		return ExitLocalError
	}

	conn, err := net.Dial("unix", paths.Socket)
	if err != nil {
		fmt.Fprintf(stderr, "sat: connect: %v\n", err)
		return ExitLocalError
	}
	defer conn.Close()

	if err := wire.WriteTag(conn, tag); err != nil {
		fmt.Fprintf(stderr, "sat: send command: %v\n", err)
		return ExitLocalError
	}
	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			fmt.Fprintf(stderr, "sat: send payload: %v\n", err)
			return ExitLocalError
		}
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		fmt.Fprintln(stderr, "sat: internal error: not a unix connection")
		return ExitLocalError
	}
	if err := unixConn.CloseWrite(); err != nil {
		fmt.Fprintf(stderr, "sat: half-close: %v\n", err)
		return ExitLocalError
	}

	return demux(conn, stdout, stderr)
}

// demux reads response frames from r until a clean EOF, forwarding each
// frame's payload to stdout or stderr per its stream id, and returns the
// exit code spec.md §7 assigns: ExitDaemonError if any stderr frame was
// forwarded, ExitLocalError on a read failure, ExitOK otherwise. Split
// out from Send so it can be exercised against an in-memory pipe without
// a real daemon or socket.
func demux(r io.Reader, stdout, stderr io.Writer) int {
	sawErrorFrame := false
	for {
		frame, err := wire.ReadFrame(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(stderr, "sat: read response: %v\n", err)
			return ExitLocalError
		}
		switch frame.Stream {
		case wire.StreamStdout:
			stdout.Write(frame.Payload)
		case wire.StreamStderr:
			stderr.Write(frame.Payload)
			sawErrorFrame = true
		case wire.StreamEnd:
			// explicit terminator; nothing further to forward.
		}
	}

	if sawErrorFrame {
		return ExitDaemonError
	}
	return ExitOK
}

// ensureDaemon probes for a live daemon by attempting a shared advisory
// lock on the lock file (spec.md §4.G): acquiring it means nobody holds
// it exclusively, i.e. no daemon is running, so one is started and waited
// for. Failing to acquire it with ErrWouldBlock means a daemon already
// holds the exclusive lock for its lifetime, i.e. one is already
// listening.
func ensureDaemon(paths bootstrap.Paths) error {
	if err := os.MkdirAll(paths.Dir, 0700); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	lockFile, err := os.OpenFile(paths.Lock, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer lockFile.Close()

	probeErr := flock.TryShared(lockFile)
	if probeErr == nil {
		flock.Unlock(lockFile)
		return startDaemon()
	}
	if errors.Is(probeErr, flock.ErrWouldBlock) {
		return nil
	}
	return fmt.Errorf("probe lock file: %w", probeErr)
}

// startDaemon execs the "satd bootstrap" helper and waits for it to
// exit, satisfying spec.md §4.G's "wait for it to complete its own
// bootstrap before connecting": bootstrap.Daemonize (which this helper
// calls) blocks until the detached daemon image itself signals it has
// reached its event loop, so this function's return, not just the
// helper's fork+exec, means the daemon is actually ready to accept
// connections.
func startDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}
	cmd := exec.Command(satdPath(exe), "bootstrap")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	return nil
}

// satdPath locates the satd binary as a sibling of the sat binary's own
// install location, the convention tool suites with a client/daemon
// split (e.g. git and its git-remote-* helpers) commonly use.
func satdPath(satExe string) string {
	return filepath.Join(filepath.Dir(satExe), "satd")
}
