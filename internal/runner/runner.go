// Package runner spawns interpreter processes and enforces their limits.
//
// This is the only package in the repository permitted to create OS
// processes. Every child runs in its own process group so a timeout or
// cancellation can kill the whole subtree, including anything the child
// forked. The wall-clock timeout enforced here is authoritative; the
// interpreter may self-limit as a second line of defense but is never
// relied upon.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/arefin/codelab/internal/apperror"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/workspace"
)

// State is the terminal state of one execution attempt.
type State string

const (
	StateCompleted State = "completed" // child exited 0
	StateFailed    State = "failed"    // child exited nonzero
	StateTimedOut  State = "timed_out" // killed by the runner
	StateError     State = "error"     // never ran: spawn or I/O failure
)

// Exit codes reported for runner-originated terminations, matching
// conventional shell timeout semantics.
const (
	ExitTimedOut = 124
	ExitError    = 1
)

// Options bound one execution.
type Options struct {
	Stdin          string
	Timeout        time.Duration
	MaxOutputBytes int
}

// Outcome is the result of one execution attempt. Partial output captured
// before a timeout or I/O failure is always preserved.
//
// Err categorizes runner-originated terminations using the apperror
// sentinels (ErrSpawnFailure, ErrResourceLimit) so callers can audit-log by
// category with errors.Is. It is nil when the child ran to completion on its
// own, and it never escapes the execution service as a caller-visible error.
type Outcome struct {
	State           State
	Stdout          string
	Stderr          string
	ReturnCode      int
	ElapsedSeconds  float64
	MemoryBytesUsed int64
	Truncated       bool
	Err             error
}

// Runner executes a prepared workspace. The execution service depends on
// this interface so tests can count spawns without creating processes.
type Runner interface {
	Execute(ctx context.Context, h *workspace.Handle, lang model.Language, opts Options) Outcome
}

// ProcessRunner runs workspaces as real child processes.
type ProcessRunner struct {
	interpreters map[model.Language]string
	logger       *slog.Logger
	spawns       atomic.Int64
}

var _ Runner = (*ProcessRunner)(nil)

// NewProcessRunner creates a runner using the given interpreter binaries.
// A language with no configured binary fails closed at execution time.
func NewProcessRunner(interpreters map[model.Language]string, logger *slog.Logger) *ProcessRunner {
	return &ProcessRunner{
		interpreters: interpreters,
		logger:       logger,
	}
}

// SpawnCount returns how many child processes this runner has started.
// Instrumentation for tests asserting that invalid or rate-limited requests
// never spawn.
func (r *ProcessRunner) SpawnCount() int64 {
	return r.spawns.Load()
}

// Execute runs the workspace's script with the language's interpreter,
// feeding stdin, enforcing the wall-clock timeout, and collecting output.
// It never returns an error; every failure mode maps onto a terminal state
// in the outcome.
func (r *ProcessRunner) Execute(ctx context.Context, h *workspace.Handle, lang model.Language, opts Options) Outcome {
	binary, err := r.resolveInterpreter(lang)
	if err != nil {
		spawnErr := apperror.SpawnFailure(err.Error())
		return Outcome{
			State:      StateError,
			ReturnCode: ExitError,
			Stderr:     spawnErr.Error(),
			Err:        spawnErr,
		}
	}

	stdout := newLimitWriter(opts.MaxOutputBytes)
	stderr := newLimitWriter(opts.MaxOutputBytes)

	cmd := exec.Command(binary, h.ScriptPath())
	cmd.Dir = h.Dir()
	cmd.Stdin = strings.NewReader(opts.Stdin)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + h.Dir(),
		"LANG=C.UTF-8",
		"PYTHONDONTWRITEBYTECODE=1",
	}
	// New process group so the whole subtree can be signaled together.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Don't let a grandchild holding the output pipes block Wait forever
	// after the immediate child is gone.
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	r.spawns.Add(1)
	if err := cmd.Start(); err != nil {
		spawnErr := apperror.SpawnFailure(fmt.Sprintf("failed to start %s: %v", binary, err))
		return Outcome{
			State:      StateError,
			ReturnCode: ExitError,
			Stderr:     spawnErr.Error(),
			Err:        spawnErr,
		}
	}
	pid := cmd.Process.Pid

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	var (
		timedOut bool
		waitErr  error
	)
	select {
	case waitErr = <-waitCh:
	case <-timer.C:
		timedOut = true
		r.killGroup(pid)
		waitErr = <-waitCh
	case <-ctx.Done():
		// Caller cancellation takes the same kill path as a timeout.
		timedOut = true
		r.killGroup(pid)
		waitErr = <-waitCh
	}

	elapsed := time.Since(start).Seconds()
	outcome := Outcome{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ElapsedSeconds:  elapsed,
		MemoryBytesUsed: maxRSSBytes(cmd),
		Truncated:       stdout.Truncated() || stderr.Truncated(),
	}

	switch {
	case timedOut:
		outcome.State = StateTimedOut
		outcome.ReturnCode = ExitTimedOut
		note := fmt.Sprintf("execution timed out after %gs", opts.Timeout.Seconds())
		outcome.Err = apperror.ResourceLimit(note)
		if outcome.Stderr != "" {
			outcome.Stderr += "\n"
		}
		outcome.Stderr += note
		// The diagnostic counts against the same cap as child output; stderr
		// must never exceed MaxOutputBytes.
		if len(outcome.Stderr) > opts.MaxOutputBytes {
			outcome.Stderr = outcome.Stderr[:opts.MaxOutputBytes]
			outcome.Truncated = true
		}
	case waitErr == nil:
		outcome.State = StateCompleted
		outcome.ReturnCode = 0
	default:
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			outcome.State = StateFailed
			outcome.ReturnCode = exitErr.ExitCode()
			if outcome.ReturnCode < 0 {
				// Killed by a signal outside our timeout path.
				outcome.ReturnCode = ExitError
			}
		} else {
			// I/O failure after the process ran; keep the partial output.
			outcome.State = StateError
			outcome.ReturnCode = ExitError
			outcome.Err = apperror.SpawnFailure(waitErr.Error())
			if outcome.Stderr == "" {
				outcome.Stderr = waitErr.Error()
			}
		}
	}

	if outcome.Err == nil && outcome.Truncated {
		outcome.Err = apperror.ResourceLimit(fmt.Sprintf("output truncated to %d bytes", opts.MaxOutputBytes))
	}

	r.logger.Debug("process finished",
		slog.String("language", string(lang)),
		slog.String("state", string(outcome.State)),
		slog.Int("returnCode", outcome.ReturnCode),
		slog.Float64("elapsedSeconds", elapsed),
	)
	return outcome
}

// resolveInterpreter maps a language to a runnable binary path. An
// unresolved interpreter fails closed: no fallback is attempted.
func (r *ProcessRunner) resolveInterpreter(lang model.Language) (string, error) {
	binary, ok := r.interpreters[lang]
	if !ok || binary == "" {
		return "", fmt.Errorf("no interpreter configured for language %q", lang)
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("interpreter %s for language %q not found", binary, lang)
	}
	return path, nil
}

// killGroup SIGKILLs the child's entire process group. The negative pid
// addresses the group rather than the single process.
func (r *ProcessRunner) killGroup(pid int) {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		r.logger.Warn("failed to kill process group",
			slog.Int("pgid", pid),
			slog.String("error", err.Error()),
		)
	}
}

// maxRSSBytes reads the child's peak resident set size from its rusage.
func maxRSSBytes(cmd *exec.Cmd) int64 {
	if cmd.ProcessState == nil {
		return 0
	}
	rusage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage)
	if !ok || rusage == nil {
		return 0
	}
	// Linux reports Maxrss in kilobytes.
	return rusage.Maxrss * 1024
}

// limitWriter captures up to max bytes and discards the rest, remembering
// that truncation happened. It never reports a short write, so the child's
// output pipe keeps draining and the child never blocks on a full pipe.
type limitWriter struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newLimitWriter(max int) *limitWriter {
	return &limitWriter{max: max}
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.max - w.buf.Len()
	switch {
	case remaining >= len(p):
		w.buf.Write(p)
	case remaining > 0:
		w.buf.Write(p[:remaining])
		w.truncated = true
	default:
		if len(p) > 0 {
			w.truncated = true
		}
	}
	return len(p), nil
}

func (w *limitWriter) String() string {
	return w.buf.String()
}

func (w *limitWriter) Truncated() bool {
	return w.truncated
}
