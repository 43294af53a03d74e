// Package hook invokes the user's lifecycle-hook program: spec.md §4.B.
// The hook's pathname is resolved once at daemon start and exported to
// workers via an environment variable (HookPathEnv) so forked-off workers
// don't need to repeat the resolution (mirrors the teacher's pattern in
// cluster.buildEnv of publishing worker configuration through the child's
// environment rather than re-deriving it).
package hook

import (
	"log"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"

	"github.com/sat-sched/sat/internal/job"
)

// HookPathEnv is the environment variable the daemon publishes its
// resolved hook path under, for inheritance by re-exec'd workers.
const HookPathEnv = "SAT_HOOK_PATH"

// Event names a lifecycle event a hook is invoked for.
type Event string

const (
	EventQueued  Event = "queued"
	EventRemoved Event = "removed"
	EventExpired Event = "expired"
	EventForced  Event = "forced"
	EventSuccess Event = "success"
	EventFailure Event = "failure"
)

// Resolve finds the hook script's pathname using the precedence order
// from spec.md §4.B: user-config-home + /sat/hook; user-home +
// /.config/sat/hook; passwd-entry home + /.config/sat/hook (only when
// effective uid != 0); system fallback /etc/sat/hook. The first candidate
// that exists on disk wins; if none exist, ok is false and there is no
// hook to invoke.
func Resolve() (path string, ok bool) {
	var candidates []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "sat", "hook"))
	}
	if home := os.Getenv("HOME"); home != "" {
		candidates = append(candidates, filepath.Join(home, ".config", "sat", "hook"))
	}
	if os.Geteuid() != 0 {
		if u, err := user.Current(); err == nil && u.HomeDir != "" {
			candidates = append(candidates, filepath.Join(u.HomeDir, ".config", "sat", "hook"))
		}
	}
	candidates = append(candidates, filepath.Join("/etc", "sat", "hook"))

	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c, true
		}
	}
	return "", false
}

// Runner invokes the resolved hook for each lifecycle event.
type Runner struct {
	Path string // empty means "no hook configured"
}

// NewRunner builds a Runner from an already-resolved path (possibly
// empty, e.g. read back from HookPathEnv by a worker process).
func NewRunner(path string) *Runner { return &Runner{Path: path} }

// Invoke execs the hook with argv = [Path, event, job's own argv...],
// environment = job's captured envp, cwd = job's captured working
// directory, per spec.md §4.B. The hook's exit status is ignored. A
// failure to fork or exec is logged but never propagated: hook errors
// must never affect the job's own lifecycle (spec.md §7).
func (r *Runner) Invoke(j *job.Job, event Event) {
	if r == nil || r.Path == "" {
		return
	}
	argv, cwd, envp, err := j.Decode()
	if err != nil {
		log.Printf("hook: decode job %d payload: %v", j.ID, err)
		return
	}

	hookArgv := make([]string, 0, len(argv)+2)
	hookArgv = append(hookArgv, r.Path, string(event))
	hookArgv = append(hookArgv, argv...)

	if err := execDetached(r.Path, hookArgv, envp, cwd); err != nil {
		log.Printf("hook: invoke %s for job %d event %s: %v", r.Path, j.ID, event, err)
	}
}

// execDetached runs path with argv/envp/cwd and does not wait beyond
// process start failing: the hook's exit status is explicitly not part
// of the contract, so this does not block the caller on hook completion
// any longer than starting the process requires. Spec.md leaves "forked
// but not waited" implementation-defined for hooks specifically (unlike
// the job executor, which does wait); here we still reap it in the
// background so it never becomes a zombie.
func execDetached(path string, argv, envp []string, cwd string) error {
	cmd := exec.Command(path, argv[1:]...)
	cmd.Env = envp
	cmd.Dir = cwd
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
