package expire

import (
	"os"
	"testing"
	"time"

	"github.com/sat-sched/sat/internal/job"
	"github.com/sat-sched/sat/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
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
	return st
}

func appendJob(t *testing.T, st *store.Store, clock job.ClockKind, deadline time.Time, argv []string) uint64 {
	t.Helper()
	payload, err := job.EncodePayload(argv, "/", []string{"PATH=" + os.Getenv("PATH")})
	if err != nil {
		t.Fatal(err)
	}
	j := &job.Job{Argc: int32(len(argv)), Clock: clock, Deadline: deadline, Payload: payload}
	id, err := st.Append(j)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestPassFiresOnlyDueJobs(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	appendJob(t, st, job.ClockWall, now.Add(-time.Minute), []string{"true"}) // due
	futureDeadline := now.Add(time.Hour)
	appendJob(t, st, job.ClockWall, futureDeadline, []string{"true"}) // not due

	res, err := Pass(st, Now{Boot: now, Wall: now}, nil)
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if res.Fired != 1 {
		t.Fatalf("Fired = %d, want 1", res.Fired)
	}
	if !res.Armed.Wall.Equal(futureDeadline) {
		t.Fatalf("Armed.Wall = %v, want %v", res.Armed.Wall, futureDeadline)
	}
	if !res.Armed.Boot.IsZero() {
		t.Fatalf("Armed.Boot = %v, want zero (no boot-clock jobs queued)", res.Armed.Boot)
	}

	jobs, err := st.Iterate()
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("store has %d jobs after the pass, want 1 remaining", len(jobs))
	}
	if !jobs[0].Deadline.Equal(futureDeadline) {
		t.Fatalf("remaining job deadline = %v, want %v", jobs[0].Deadline, futureDeadline)
	}
}

func TestPassFiresEqualDeadlinesInInsertionOrder(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()
	deadline := now.Add(-time.Second)

	out := t.TempDir() + "/order"
	first := appendJob(t, st, job.ClockWall, deadline, []string{"sh", "-c", "echo first >> " + out})
	second := appendJob(t, st, job.ClockWall, deadline, []string{"sh", "-c", "echo second >> " + out})

	res, err := Pass(st, Now{Boot: now, Wall: now}, nil)
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if res.Fired != 2 {
		t.Fatalf("Fired = %d, want 2", res.Fired)
	}
	order, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read order file: %v", err)
	}
	if string(order) != "first\nsecond\n" {
		t.Fatalf("jobs %d and %d ran in order %q, want %q", first, second, order, "first\nsecond\n")
	}

	jobs, err := st.Iterate()
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Fatalf("store has %d jobs after the pass, want 0 remaining", len(jobs))
	}
}

func TestPassOnEmptyStoreDisarmsBothClocks(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	res, err := Pass(st, Now{Boot: now, Wall: now}, nil)
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if res.Fired != 0 {
		t.Fatalf("Fired = %d, want 0", res.Fired)
	}
	if !res.Armed.Boot.IsZero() || !res.Armed.Wall.IsZero() {
		t.Fatalf("Armed = %+v, want both zero", res.Armed)
	}
}

func TestPassKeepsClocksIndependent(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	bootDeadline := now.Add(time.Hour)
	wallDeadline := now.Add(-time.Minute) // due

	appendJob(t, st, job.ClockBoot, bootDeadline, []string{"true"})
	appendJob(t, st, job.ClockWall, wallDeadline, []string{"true"})

	res, err := Pass(st, Now{Boot: now, Wall: now}, nil)
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if res.Fired != 1 {
		t.Fatalf("Fired = %d, want 1 (only the wall-clock job is due)", res.Fired)
	}
	if !res.Armed.Boot.Equal(bootDeadline) {
		t.Fatalf("Armed.Boot = %v, want %v", res.Armed.Boot, bootDeadline)
	}
	if !res.Armed.Wall.IsZero() {
		t.Fatalf("Armed.Wall = %v, want zero (no wall jobs remain)", res.Armed.Wall)
	}
}
