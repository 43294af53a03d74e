// Package flock provides advisory file locking for state-store and
// lock-file synchronization across cooperating sat/satd processes.
//
// Grounded on the pack's filelock reference (other_examples'
// lyrebirdaudio-go internal/lock/filelock.go) for the flock(2) shape, and
// on the teacher's worker_unix.go for how this module reaches for
// golang.org/x/sys/unix rather than the standard library when it needs a
// raw syscall.
package flock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Exclusive acquires LOCK_EX on f, blocking until available.
func Exclusive(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("flock: exclusive lock on %s: %w", f.Name(), err)
	}
	return nil
}

// Shared acquires LOCK_SH on f, blocking until available.
func Shared(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return fmt.Errorf("flock: shared lock on %s: %w", f.Name(), err)
	}
	return nil
}

// Unlock releases whatever lock this process holds on f.
func Unlock(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("flock: unlock %s: %w", f.Name(), err)
	}
	return nil
}

// ErrWouldBlock is returned by TryExclusive/TryShared when the lock is
// already held elsewhere.
var ErrWouldBlock = unix.EWOULDBLOCK

// TryExclusive attempts LOCK_EX | LOCK_NB, returning ErrWouldBlock if the
// lock is held by another process. Used by bootstrap to detect "a daemon
// is already running"; the client probes for a live daemon with
// TryShared instead.
func TryExclusive(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrWouldBlock
		}
		return fmt.Errorf("flock: try-exclusive lock on %s: %w", f.Name(), err)
	}
	return nil
}

// TryShared attempts LOCK_SH | LOCK_NB, returning ErrWouldBlock if an
// exclusive lock is held elsewhere.
func TryShared(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrWouldBlock
		}
		return fmt.Errorf("flock: try-shared lock on %s: %w", f.Name(), err)
	}
	return nil
}

// WithExclusive runs fn while holding an exclusive lock on f, releasing it
// (in all exit paths, including a panic recovered and re-raised) before
// returning.
func WithExclusive(f *os.File, fn func() error) error {
	if err := Exclusive(f); err != nil {
		return err
	}
	defer Unlock(f)
	return fn()
}

// WithShared runs fn while holding a shared lock on f, releasing it before
// returning.
func WithShared(f *os.File, fn func() error) error {
	if err := Shared(f); err != nil {
		return err
	}
	defer Unlock(f)
	return fn()
}
