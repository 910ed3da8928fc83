package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arefin/codelab/internal/apperror"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/workspace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// shRunner returns a runner whose "python" interpreter is /bin/sh, so tests
// can exercise real process lifecycle without needing Python installed.
func shRunner(t *testing.T) (*ProcessRunner, *workspace.Manager) {
	t.Helper()
	r := NewProcessRunner(map[model.Language]string{
		model.LanguagePython: "sh",
	}, testLogger())
	m, err := workspace.NewManager(t.TempDir(), testLogger())
	require.NoError(t, err)
	return r, m
}

func acquire(t *testing.T, m *workspace.Manager, script string) *workspace.Handle {
	t.Helper()
	h, err := m.Acquire(model.LanguagePython, script)
	require.NoError(t, err)
	t.Cleanup(h.Release)
	return h
}

func defaultOpts() Options {
	return Options{Timeout: 5 * time.Second, MaxOutputBytes: 10240}
}

func TestExecuteCompleted(t *testing.T) {
	r, m := shRunner(t)
	h := acquire(t, m, "echo hello\n")

	out := r.Execute(context.Background(), h, model.LanguagePython, defaultOpts())

	assert.Equal(t, StateCompleted, out.State)
	assert.Equal(t, 0, out.ReturnCode)
	assert.Equal(t, "hello\n", out.Stdout)
	assert.False(t, out.Truncated)
	assert.NoError(t, out.Err)
	assert.Greater(t, out.ElapsedSeconds, 0.0)
	assert.Equal(t, int64(1), r.SpawnCount())
}

func TestExecuteFailedNonzeroExit(t *testing.T) {
	r, m := shRunner(t)
	h := acquire(t, m, "echo oops >&2\nexit 3\n")

	out := r.Execute(context.Background(), h, model.LanguagePython, defaultOpts())

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, 3, out.ReturnCode)
	assert.Contains(t, out.Stderr, "oops")
}

func TestExecuteStdin(t *testing.T) {
	r, m := shRunner(t)
	h := acquire(t, m, "cat\n")

	opts := defaultOpts()
	opts.Stdin = "line one\nline two\n"
	out := r.Execute(context.Background(), h, model.LanguagePython, opts)

	assert.Equal(t, StateCompleted, out.State)
	assert.Equal(t, "line one\nline two\n", out.Stdout)
}

func TestExecuteTimeout(t *testing.T) {
	r, m := shRunner(t)
	h := acquire(t, m, "echo partial\nsleep 30\necho never\n")

	opts := defaultOpts()
	opts.Timeout = 200 * time.Millisecond

	start := time.Now()
	out := r.Execute(context.Background(), h, model.LanguagePython, opts)

	assert.Equal(t, StateTimedOut, out.State)
	assert.Equal(t, ExitTimedOut, out.ReturnCode)
	// Partial output captured before the kill is preserved.
	assert.Contains(t, out.Stdout, "partial")
	assert.NotContains(t, out.Stdout, "never")
	assert.Contains(t, out.Stderr, "timed out")
	assert.True(t, errors.Is(out.Err, apperror.ErrResourceLimit))
	// The kill must be prompt, not bounded by the child's sleep.
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecuteTimeoutStderrStaysWithinOutputCap(t *testing.T) {
	r, m := shRunner(t)
	// Fill stderr to the cap before sleeping, so the timeout diagnostic has
	// no room left.
	h := acquire(t, m, "i=0\nwhile [ $i -lt 100 ]; do printf e >&2; i=$((i+1)); done\nsleep 30\n")

	opts := defaultOpts()
	opts.Timeout = 300 * time.Millisecond
	opts.MaxOutputBytes = 10
	out := r.Execute(context.Background(), h, model.LanguagePython, opts)

	assert.Equal(t, StateTimedOut, out.State)
	// The diagnostic counts against the cap; stderr never exceeds it.
	assert.LessOrEqual(t, len(out.Stderr), 10)
	assert.True(t, out.Truncated)
	assert.True(t, errors.Is(out.Err, apperror.ErrResourceLimit))
}

func TestExecuteTimeoutKillsDescendants(t *testing.T) {
	r, m := shRunner(t)
	// The background child inherits our pipes; without a process-group kill
	// (and WaitDelay) it would keep Wait blocked for 30s.
	h := acquire(t, m, "sleep 30 &\nsleep 30\n")

	opts := defaultOpts()
	opts.Timeout = 200 * time.Millisecond

	start := time.Now()
	out := r.Execute(context.Background(), h, model.LanguagePython, opts)

	assert.Equal(t, StateTimedOut, out.State)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecuteCancellation(t *testing.T) {
	r, m := shRunner(t)
	h := acquire(t, m, "sleep 30\n")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out := r.Execute(ctx, h, model.LanguagePython, defaultOpts())

	// Cancellation takes the same kill path as a timeout.
	assert.Equal(t, StateTimedOut, out.State)
	assert.Equal(t, ExitTimedOut, out.ReturnCode)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecuteTruncatesOutput(t *testing.T) {
	r, m := shRunner(t)
	h := acquire(t, m, "i=0\nwhile [ $i -lt 100 ]; do printf a; i=$((i+1)); done\n")

	opts := defaultOpts()
	opts.MaxOutputBytes = 10
	out := r.Execute(context.Background(), h, model.LanguagePython, opts)

	// Truncation caps the output at exactly the limit without changing the
	// terminal state.
	assert.Equal(t, StateCompleted, out.State)
	assert.Equal(t, strings.Repeat("a", 10), out.Stdout)
	assert.True(t, out.Truncated)
	assert.True(t, errors.Is(out.Err, apperror.ErrResourceLimit))
}

func TestExecuteMissingInterpreter(t *testing.T) {
	r := NewProcessRunner(map[model.Language]string{
		model.LanguagePython: "definitely-not-a-real-binary-3412",
	}, testLogger())
	m, err := workspace.NewManager(t.TempDir(), testLogger())
	require.NoError(t, err)
	h := acquire(t, m, "echo hi\n")

	out := r.Execute(context.Background(), h, model.LanguagePython, defaultOpts())

	assert.Equal(t, StateError, out.State)
	assert.Equal(t, ExitError, out.ReturnCode)
	assert.Contains(t, out.Stderr, "not found")
	assert.True(t, errors.Is(out.Err, apperror.ErrSpawnFailure))
	assert.Equal(t, int64(0), r.SpawnCount())
}

func TestExecuteUnconfiguredLanguage(t *testing.T) {
	r, m := shRunner(t)
	h := acquire(t, m, "move\n")

	out := r.Execute(context.Background(), h, model.LanguageKarel, defaultOpts())

	assert.Equal(t, StateError, out.State)
	assert.Equal(t, ExitError, out.ReturnCode)
	assert.Contains(t, out.Stderr, "no interpreter configured")
	assert.True(t, errors.Is(out.Err, apperror.ErrSpawnFailure))
}

func TestLimitWriter(t *testing.T) {
	w := newLimitWriter(5)

	n, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, w.Truncated())

	// Crossing the limit keeps exactly max bytes but still reports the full
	// write so the pipe keeps draining.
	n, err = w.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "abcde", w.String())
	assert.True(t, w.Truncated())

	n, err = w.Write([]byte("xyz"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abcde", w.String())
}
