// Package procinfo reports resource usage for a running daemon process,
// backing `sat status`. Grounded on the teacher's
// cluster.ClusterManager.monitorLoop, which polls gopsutil's process
// package for each worker's RSS and CPU percentage; here it is turned
// inward, on the single daemon process identified by the lock file's PID.
package procinfo

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Info is what `sat status` reports about a live daemon.
type Info struct {
	PID        int32
	RSSBytes   uint64
	CPUPercent float64
	CreateTime time.Time
}

// Describe looks up pid and reports its current resource usage. It
// returns an error if no such process exists (the lock file's PID is
// stale — the daemon died without cleaning up, which should not happen
// under normal operation but is possible after a hard crash).
func Describe(pid int32) (Info, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return Info{}, fmt.Errorf("procinfo: process %d: %w", pid, err)
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return Info{}, fmt.Errorf("procinfo: memory info for %d: %w", pid, err)
	}
	cpuPct, err := p.CPUPercent()
	if err != nil {
		cpuPct = 0
	}
	createMs, err := p.CreateTime()
	if err != nil {
		createMs = 0
	}
	return Info{
		PID:        pid,
		RSSBytes:   mem.RSS,
		CPUPercent: cpuPct,
		CreateTime: time.UnixMilli(createMs),
	}, nil
}
