//go:build linux

package bootclock

import (
	"time"

	"golang.org/x/sys/unix"
)

func bootNow() time.Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return time.Now()
	}
	return time.Unix(int64(ts.Sec), int64(ts.Nsec))
}
