package hook

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sat-sched/sat/internal/job"
)

func TestResolvePrefersXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	xdgHook := filepath.Join(dir, "sat", "hook")
	if err := os.MkdirAll(filepath.Dir(xdgHook), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(xdgHook, []byte("#!/bin/sh\n"), 0700); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", t.TempDir())

	path, ok := Resolve()
	if !ok {
		t.Fatal("Resolve: ok = false, want true")
	}
	if path != xdgHook {
		t.Fatalf("path = %q, want %q", path, xdgHook)
	}
}

func TestResolveFallsBackToHomeConfig(t *testing.T) {
	home := t.TempDir()
	homeHook := filepath.Join(home, ".config", "sat", "hook")
	if err := os.MkdirAll(filepath.Dir(homeHook), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(homeHook, []byte("#!/bin/sh\n"), 0700); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", home)

	path, ok := Resolve()
	if !ok {
		t.Fatal("Resolve: ok = false, want true")
	}
	if path != homeHook {
		t.Fatalf("path = %q, want %q", path, homeHook)
	}
}

func TestResolveNoneFound(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, ok := Resolve()
	if ok {
		t.Fatal("Resolve: ok = true, want false when no candidate exists")
	}
}

func TestRunnerInvokeNoopWithoutPath(t *testing.T) {
	r := NewRunner("")
	payload, err := job.EncodePayload([]string{"true"}, "/", []string{"PATH=/bin"})
	if err != nil {
		t.Fatal(err)
	}
	j := &job.Job{Argc: 1, Payload: payload}

	// Must not panic or attempt to exec anything when no hook is configured.
	r.Invoke(j, EventQueued)
}

func TestRunnerInvokeNilReceiverIsNoop(t *testing.T) {
	var r *Runner
	payload, _ := job.EncodePayload([]string{"true"}, "/", []string{"PATH=/bin"})
	j := &job.Job{Argc: 1, Payload: payload}

	r.Invoke(j, EventQueued) // must not panic on a nil *Runner
}

func TestRunnerInvokeRunsConfiguredHook(t *testing.T) {
	dir := t.TempDir()
	hookPath := filepath.Join(dir, "hook")
	marker := filepath.Join(dir, "invoked")
	script := "#!/bin/sh\necho \"$1\" > " + marker + "\n"
	if err := os.WriteFile(hookPath, []byte(script), 0700); err != nil {
		t.Fatal(err)
	}

	r := NewRunner(hookPath)
	payload, err := job.EncodePayload([]string{"true"}, "/", []string{"PATH=" + os.Getenv("PATH")})
	if err != nil {
		t.Fatal(err)
	}
	j := &job.Job{ID: 1, Argc: 1, Payload: payload}

	r.Invoke(j, EventSuccess)

	ok := false
	for i := 0; i < 300; i++ {
		if data, err := os.ReadFile(marker); err == nil && len(data) > 0 {
			ok = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !ok {
		t.Fatal("hook never ran within the timeout")
	}
}
