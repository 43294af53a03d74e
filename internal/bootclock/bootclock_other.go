//go:build !linux

package bootclock

import "time"

// bootNow falls back to the wall clock on platforms without
// CLOCK_BOOTTIME: spec.md §9 accepts this as "tolerating suspended-system
// drift" for implementations lacking a direct boot-monotonic timer API.
func bootNow() time.Time {
	return time.Now()
}
