// Package expire implements the expiration engine: spec.md §4.D. One Pass
// scans the queue, fires every job whose deadline has passed, and reports
// the next deadline per clock so the caller (internal/supervisor) can
// re-arm the two timerfd.Timers.
package expire

import (
	"container/heap"
	"log"
	"time"

	"github.com/sat-sched/sat/internal/executor"
	"github.com/sat-sched/sat/internal/hook"
	"github.com/sat-sched/sat/internal/job"
	"github.com/sat-sched/sat/internal/store"
)

// Now supplies the current time on each clock. Production code passes
// the real CLOCK_BOOTTIME/CLOCK_REALTIME readings; tests substitute fixed
// values.
type Now struct {
	Boot time.Time
	Wall time.Time
}

func (n Now) forClock(c job.ClockKind) time.Time {
	if c == job.ClockBoot {
		return n.Boot
	}
	return n.Wall
}

// Armed reports, per clock, the minimum deadline remaining among queued
// jobs of that clock kind, or the zero Time if none remain (meaning
// "disarm").
type Armed struct {
	Boot time.Time // zero means disarm
	Wall time.Time // zero means disarm
}

// Result summarizes one pass.
type Result struct {
	Fired int
	Armed Armed
}

// jobHeap orders jobs by deadline, then by the scan order they were
// appended in (spec.md §4.D: "jobs with equal deadlines fire in insertion
// order"), realized via a monotonically increasing sequence number
// assigned at push time.
type heapEntry struct {
	j   *job.Job
	seq int
}

type jobHeap []heapEntry

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, k int) bool {
	if !h[i].j.Deadline.Equal(h[k].j.Deadline) {
		return h[i].j.Deadline.Before(h[k].j.Deadline)
	}
	return h[i].seq < h[k].seq
}
func (h jobHeap) Swap(i, k int) { h[i], h[k] = h[k], h[i] }
func (h *jobHeap) Push(x any)   { *h = append(*h, x.(heapEntry)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Pass performs one expiration sweep: spec.md §9's "single priority queue
// indexed by (clock_kind, deadline)" is rebuilt here from the store's
// snapshot on every pass, since the store itself is the authoritative
// queue — no heap state survives across passes.
func Pass(s *store.Store, now Now, hooks *hook.Runner) (Result, error) {
	jobs, err := s.Iterate()
	if err != nil {
		return Result{}, err
	}

	var boot, wall jobHeap
	for i, j := range jobs {
		entry := heapEntry{j: j, seq: i}
		if j.Clock == job.ClockBoot {
			boot = append(boot, entry)
		} else {
			wall = append(wall, entry)
		}
	}
	heap.Init(&boot)
	heap.Init(&wall)

	fired := fireDue(s, &boot, job.ClockBoot, now, hooks)
	fired += fireDue(s, &wall, job.ClockWall, now, hooks)

	return Result{
		Fired: fired,
		Armed: Armed{
			Boot: minDeadline(boot),
			Wall: minDeadline(wall),
		},
	}, nil
}

func minDeadline(h jobHeap) time.Time {
	if h.Len() == 0 {
		return time.Time{}
	}
	return h[0].j.Deadline
}

// fireDue pops and fires every job in h whose deadline is <= now for its
// clock. The store lock is acquired once per job removed (spec.md §4.D:
// "so the lock is not held across fork/exec"), not once for the whole
// pass.
func fireDue(s *store.Store, h *jobHeap, clock job.ClockKind, now Now, hooks *hook.Runner) int {
	fired := 0
	nowT := now.forClock(clock)
	for h.Len() > 0 && !(*h)[0].j.Deadline.After(nowT) {
		entry := heap.Pop(h).(heapEntry)
		j := entry.j

		hooks.Invoke(j, hook.EventExpired)

		removed, removedJob, err := s.Remove(store.ByID(j.ID))
		if err != nil {
			log.Printf("expire: remove job %d: %v", j.ID, err)
			continue
		}
		if !removed {
			// Already removed concurrently (e.g. by a `remove` or
			// `run-now` worker racing this pass); nothing more to do.
			continue
		}

		result := executor.Run(removedJob)
		if result.Err != nil {
			log.Printf("expire: run job %d: %v (%s)", j.ID, result.Err, result.Result)
		}
		if result.Succeeded() {
			hooks.Invoke(removedJob, hook.EventSuccess)
		} else {
			hooks.Invoke(removedJob, hook.EventFailure)
		}
		fired++
	}
	return fired
}
