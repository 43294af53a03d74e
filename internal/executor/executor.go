// Package executor runs a Job's captured command: spec.md §4.C. The
// child's environment is replaced wholesale with the Job's captured
// envp (not merged with the daemon's own environment, unlike the
// teacher's cluster.buildEnv, which augments os.Environ() — this module
// diverges deliberately since §4.C specifies replacement).
package executor

import (
	"errors"
	"os/exec"

	"github.com/sat-sched/sat/internal/job"
)

// Result classifies how a job's execution attempt concluded.
type Result int

const (
	// OK means the child was started and has exited (whatever its exit
	// code — spec.md §4.C only distinguishes "the child ran" from "it
	// never got to run").
	OK Result = iota
	// ExecFailed means the command could not be found or executed (PATH
	// lookup failure, permission denied, not executable).
	ExecFailed
	// ForkFailed means the operating system could not create the child
	// process at all (resource exhaustion).
	ForkFailed
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case ExecFailed:
		return "exec-failed"
	case ForkFailed:
		return "fork-failed"
	default:
		return "unknown"
	}
}

// Run forks, execs, and waits for j's captured command. PATH lookup,
// chdir, and environment replacement follow spec.md §4.C's contract
// exactly. The exit code of the child, when it ran, is returned in
// ExitCode; it is meaningless when Result != OK.
type RunResult struct {
	Result   Result
	ExitCode int
	Err      error
}

// Run executes j's captured argv with its captured envp and cwd.
func Run(j *job.Job) RunResult {
	argv, cwd, envp, err := j.Decode()
	if err != nil {
		return RunResult{Result: ExecFailed, ExitCode: -1, Err: err}
	}
	if len(argv) == 0 {
		return RunResult{Result: ExecFailed, ExitCode: -1, Err: errors.New("executor: empty argv")}
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		// PATH lookup happens in Go's userland before any process is
		// created; a failure here is the closest analogue to the C
		// source's child-side "exec failed, exit non-zero" path.
		return RunResult{Result: ExecFailed, ExitCode: -1, Err: err}
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Env = envp
	cmd.Dir = cwd

	if err := cmd.Start(); err != nil {
		return RunResult{Result: ForkFailed, ExitCode: -1, Err: err}
	}

	waitErr := cmd.Wait()
	if waitErr == nil {
		return RunResult{Result: OK, ExitCode: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return RunResult{Result: OK, ExitCode: exitErr.ExitCode(), Err: nil}
	}
	return RunResult{Result: ExecFailed, ExitCode: -1, Err: waitErr}
}

// Succeeded reports whether the job's hook sequence should fire "success"
// (true) or "failure" (false): spec.md §4.D invokes one or the other
// depending on executor result. A job that ran and exited non-zero is
// still a "ran" outcome at the process level, but the expiration engine's
// hook choice tracks whether the command's own exit status was zero.
func (r RunResult) Succeeded() bool {
	return r.Result == OK && r.ExitCode == 0
}
