//go:build linux

package timerfd

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// clockFD is a real timerfd_create(2) file descriptor armed with
// TFD_TIMER_ABSTIME, drained on an internal goroutine so Ready can be a
// plain channel like the emulated implementation.
type clockFD struct {
	file  *os.File
	clock int // unix.CLOCK_BOOTTIME or unix.CLOCK_REALTIME
	ready chan struct{}
	done  chan struct{}
}

// NewBoot returns a Timer on CLOCK_BOOTTIME (suspend-inclusive monotonic).
func NewBoot() (Timer, error) { return newClockFD(unix.CLOCK_BOOTTIME) }

// NewWall returns a Timer on CLOCK_REALTIME.
func NewWall() (Timer, error) { return newClockFD(unix.CLOCK_REALTIME) }

func newClockFD(clock int) (Timer, error) {
	fd, err := unix.TimerfdCreate(clock, unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("timerfd: create (clock=%d): %w", clock, err)
	}
	t := &clockFD{
		file:  os.NewFile(uintptr(fd), "timerfd"),
		clock: clock,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go t.watch()
	return t, nil
}

// watch blocks in Read until either the timer expires (the kernel writes
// an 8-byte expiration count) or Close closes the underlying fd, which
// unblocks Read with an error.
func (t *clockFD) watch() {
	buf := make([]byte, 8)
	for {
		n, err := t.file.Read(buf)
		if err != nil {
			return // fd closed
		}
		if n == 8 {
			select {
			case t.ready <- struct{}{}:
			default:
			}
		}
	}
}

func (t *clockFD) Ready() <-chan struct{} { return t.ready }

func (t *clockFD) Arm(deadline time.Time) error {
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(deadline.UnixNano()),
	}
	if err := unix.TimerfdSettime(int(t.file.Fd()), unix.TFD_TIMER_ABSTIME, &spec, nil); err != nil {
		return fmt.Errorf("timerfd: settime: %w", err)
	}
	return nil
}

func (t *clockFD) Disarm() error {
	var spec unix.ItimerSpec // zero Value disarms
	if err := unix.TimerfdSettime(int(t.file.Fd()), unix.TFD_TIMER_ABSTIME, &spec, nil); err != nil {
		return fmt.Errorf("timerfd: disarm: %w", err)
	}
	return nil
}

func (t *clockFD) Close() error {
	close(t.done)
	return t.file.Close()
}

// FD exposes the raw descriptor number of a Linux timerfd Timer; it
// reports false for any other Timer implementation. Timer fds are not
// handed across a re-exec: the loop image creates fresh ones.
func FD(t Timer) (uintptr, bool) {
	if c, ok := t.(*clockFD); ok {
		return c.file.Fd(), true
	}
	return 0, false
}
