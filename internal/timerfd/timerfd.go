// Package timerfd wraps the two absolute-time kernel timers the daemon
// arms: one on the boot-monotonic clock, one on the wall clock. On Linux
// this is a thin wrapper around timerfd_create(2)/timerfd_settime(2) with
// TFD_TIMER_ABSTIME, matching spec.md §4.D and §9's "kernel-level absolute
// timers" language exactly. On other platforms there is no timerfd
// syscall, so Timer emulates the same absolute-time, read-to-rearm
// contract with a software timer (documented in timerfd_other.go) per
// spec.md §9's "implementations lacking direct boot-monotonic timer APIs
// should emulate".
package timerfd

import "time"

// Timer is an absolute-time, one-shot-until-rearmed timer. Ready fires
// (possibly more than once, coalesced per read semantics below) when the
// armed deadline has passed. A Timer that is never armed never fires.
type Timer interface {
	// Ready is signaled when the timer has expired. Exactly one value is
	// sent per expiration-detecting read, matching "reading a timer fd
	// whose expiration count is positive is required to re-arm it" from
	// spec.md §4.D: callers must call Arm or Disarm after observing a
	// value on Ready before the next expiration will be reported.
	Ready() <-chan struct{}
	// Arm sets the absolute deadline at which the timer next fires.
	Arm(deadline time.Time) error
	// Disarm cancels any pending expiration.
	Disarm() error
	// Close releases the underlying resource (fd or goroutine).
	Close() error
}
