package supervisor

import (
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/sat-sched/sat/internal/bootstrap"
	"github.com/sat-sched/sat/internal/expire"
	"github.com/sat-sched/sat/internal/store"
)

// fakeTimer records Arm/Disarm calls instead of touching a real kernel
// timer, so rearm's decisions can be asserted without timerfd/epoll.
type fakeTimer struct {
	ready    chan struct{}
	armed    bool
	deadline time.Time
}

func newFakeTimer() *fakeTimer { return &fakeTimer{ready: make(chan struct{}, 1)} }

func (t *fakeTimer) Ready() <-chan struct{} { return t.ready }
func (t *fakeTimer) Arm(deadline time.Time) error {
	t.armed = true
	t.deadline = deadline
	return nil
}
func (t *fakeTimer) Disarm() error { t.armed = false; return nil }
func (t *fakeTimer) Close() error  { return nil }

func newTestSupervisor(t *testing.T) (*Supervisor, *fakeTimer, *fakeTimer, *store.Store) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "state")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	st, err := store.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	lockFile, err := os.CreateTemp(t.TempDir(), "lock")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lockFile.Close() })

	boot, wall := newFakeTimer(), newFakeTimer()
	s := &Supervisor{
		d: &bootstrap.Daemon{
			Store:     st,
			BootTimer: boot,
			WallTimer: wall,
			LockFile:  lockFile,
		},
		pokeCh:     make(chan struct{}, 1),
		connCh:     make(chan *net.UnixConn),
		passDoneCh: make(chan passResult, 1),
		children:   make(map[int]*child),
	}
	return s, boot, wall, st
}

func TestRearmArmsBothClocksOnNonZeroDeadlines(t *testing.T) {
	s, boot, wall, _ := newTestSupervisor(t)
	bootDeadline := time.Now().Add(time.Minute)
	wallDeadline := time.Now().Add(2 * time.Minute)

	s.rearm(expire.Armed{Boot: bootDeadline, Wall: wallDeadline})

	if !boot.armed || !boot.deadline.Equal(bootDeadline) {
		t.Fatalf("boot timer not armed to %v: armed=%v deadline=%v", bootDeadline, boot.armed, boot.deadline)
	}
	if !wall.armed || !wall.deadline.Equal(wallDeadline) {
		t.Fatalf("wall timer not armed to %v: armed=%v deadline=%v", wallDeadline, wall.armed, wall.deadline)
	}
	if !s.bootArmed || !s.wallArmed {
		t.Fatalf("supervisor armed flags not set: boot=%v wall=%v", s.bootArmed, s.wallArmed)
	}
}

func TestRearmDisarmsOnZeroDeadline(t *testing.T) {
	s, boot, wall, _ := newTestSupervisor(t)
	// arm both first, as a prior pass would have.
	s.rearm(expire.Armed{Boot: time.Now().Add(time.Minute), Wall: time.Now().Add(time.Minute)})

	s.rearm(expire.Armed{}) // both zero: "disarm" per expire.Armed's doc.

	if boot.armed || wall.armed {
		t.Fatalf("expected both timers disarmed, got boot=%v wall=%v", boot.armed, wall.armed)
	}
	if s.bootArmed || s.wallArmed {
		t.Fatalf("expected supervisor armed flags cleared, got boot=%v wall=%v", s.bootArmed, s.wallArmed)
	}
}

func TestIdleExitTerminatesWhenQuiescent(t *testing.T) {
	s, _, _, _ := newTestSupervisor(t)
	paths := bootstrap.Paths{
		Dir:    t.TempDir(),
		Lock:   t.TempDir() + "/lock",
		State:  t.TempDir() + "/state",
		Socket: t.TempDir() + "/socket",
	}
	s.d.Paths = paths
	// terminate() unlinks files that may not exist; os.Remove on a
	// missing file is tolerated (see terminate's os.IsNotExist checks),
	// and d.Close() tolerates the nil Listener and Hooks this harness
	// leaves unset (newTestSupervisor does set LockFile).
	s.accepted = true // quiescence only matters once a connection has been served

	if !s.idleExit() {
		t.Fatal("expected idleExit to report quiescent with no children, no armed timers, empty store")
	}
}

func TestIdleExitFalseBeforeAnyConnectionAccepted(t *testing.T) {
	s, _, _, _ := newTestSupervisor(t)
	paths := bootstrap.Paths{
		Dir:    t.TempDir(),
		Lock:   t.TempDir() + "/lock",
		State:  t.TempDir() + "/state",
		Socket: t.TempDir() + "/socket",
	}
	s.d.Paths = paths

	// Otherwise-quiescent (no children, no armed timers, empty store),
	// but s.accepted is still false: the forced BOOTING-state pass can
	// finish before the very first client connection that caused this
	// daemon to auto-start has even reached accept(), and idleExit must
	// not unlink the socket out from under it.
	if s.idleExit() {
		t.Fatal("expected idleExit to report false before the daemon has accepted any connection")
	}
}

func TestIdleExitFalseWithLiveChild(t *testing.T) {
	s, _, _, _ := newTestSupervisor(t)
	s.accepted = true
	s.children[1234] = &child{pid: 1234}

	if s.idleExit() {
		t.Fatal("expected idleExit to report false with a live child tracked")
	}
}

func TestIdleExitFalseWhenTimerArmed(t *testing.T) {
	s, _, _, _ := newTestSupervisor(t)
	s.accepted = true
	s.bootArmed = true

	if s.idleExit() {
		t.Fatal("expected idleExit to report false while a timer is armed")
	}
}

func TestFinishPassRearmsFromResultWhenNoPassPending(t *testing.T) {
	s, boot, _, _ := newTestSupervisor(t)
	deadline := time.Now().Add(30 * time.Second)
	s.passLive = true

	s.finishPass(passResult{res: expire.Result{Armed: expire.Armed{Boot: deadline}}})

	if s.passLive {
		t.Fatal("expected passLive cleared after finishPass")
	}
	if !boot.armed || !boot.deadline.Equal(deadline) {
		t.Fatalf("expected boot timer armed to %v, got armed=%v deadline=%v", deadline, boot.armed, boot.deadline)
	}
}

// TestRunWaitsForFirstConnectionBeforeIdleExit exercises Run's auto-start
// path end-to-end against a real listening socket: on a freshly opened,
// empty store the forced BOOTING-state pass (Run's call to startPass
// before loop starts) completes almost instantly and leaves both timers
// disarmed with zero children, satisfying every idleExit condition
// except one. Without the s.accepted gate, Run would unlink the socket
// and return before the very first client connection — the one that
// caused this daemon to auto-start — is ever accepted, matching
// _examples/original_source/src/satd-diminished.c:228's
// `if (accepted && !child_count)`.
func TestRunWaitsForFirstConnectionBeforeIdleExit(t *testing.T) {
	dir := t.TempDir()

	stateFile, err := os.CreateTemp(dir, "state")
	if err != nil {
		t.Fatal(err)
	}
	stateFile.Close()
	st, err := store.Open(stateFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	lockFile, err := os.CreateTemp(dir, "lock")
	if err != nil {
		t.Fatal(err)
	}
	defer lockFile.Close()

	sockPath := filepath.Join(dir, "socket")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: sockPath, Net: "unix"})
	if err != nil {
		t.Fatal(err)
	}

	d := &bootstrap.Daemon{
		Paths: bootstrap.Paths{
			Dir:    dir,
			Lock:   lockFile.Name(),
			State:  stateFile.Name(),
			Socket: sockPath,
		},
		LockFile:  lockFile,
		Store:     st,
		Listener:  ln,
		BootTimer: newFakeTimer(),
		WallTimer: newFakeTimer(),
	}

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- Run(d) }()

	// Give the forced pass every chance to complete and feed idleExit a
	// false "quiescent" reading before any connection exists.
	select {
	case err := <-runErrCh:
		t.Fatalf("Run returned (err=%v) before any client ever connected", err)
	case <-time.After(150 * time.Millisecond):
	}

	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: sockPath, Net: "unix"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	// Closing without writing a tag byte is enough: handleConn marks
	// s.accepted before it ever reaches wire.ReadTag, and the resulting
	// EOF makes it return without spawning a worker, which this test
	// has no need to exercise. Nothing re-checks idleExit on its own
	// after that (no further pass or child exit occurs), so a real
	// SIGTERM drives the rest of the shutdown, exercising that the
	// accepted gate never blocks an operator-requested drain either.
	conn.Close()
	time.Sleep(50 * time.Millisecond)

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("signal self: %v", err)
	}

	select {
	case err := <-runErrCh:
		if err != nil {
			t.Fatalf("Run returned error after SIGTERM: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run never exited after SIGTERM once its first connection had been served")
	}
}

func TestFinishPassStartsAnotherPassWhenPending(t *testing.T) {
	s, _, _, _ := newTestSupervisor(t)
	s.passLive = true
	s.passPending = true

	s.finishPass(passResult{})

	// startPass should have fired again in response to the pending flag,
	// leaving passLive true and passPending cleared, with a result
	// eventually delivered on passDoneCh (the store is empty, so the
	// pass completes immediately with a zero Armed{}).
	if s.passPending {
		t.Fatal("expected passPending cleared once the follow-up pass started")
	}
	select {
	case r := <-s.passDoneCh:
		if r.err != nil {
			t.Fatalf("unexpected pass error: %v", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for follow-up pass to complete")
	}
}
