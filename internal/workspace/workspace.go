// Package workspace manages the ephemeral scratch directories executions run
// in.
//
// Each execution gets its own directory holding the source file and whatever
// the child writes. The directory is exclusively owned by one execution and
// is removed on release no matter how the execution ended. Cleanup failures
// are logged and swallowed: best-effort removal must never turn a successful
// execution into a failure.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/xid"

	"github.com/arefin/codelab/internal/model"
)

// ScriptName is the base name of the source file inside a workspace.
const ScriptName = "script"

// Manager creates and removes workspaces under a single scratch root.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager ensures the scratch root exists and returns a manager for it.
// An empty root defaults to a codelab directory under the OS temp dir.
func NewManager(root string, logger *slog.Logger) (*Manager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "codelab")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: creating scratch root %s: %w", root, err)
	}
	return &Manager{root: root, logger: logger}, nil
}

// Root returns the scratch root directory.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates a uniquely-named workspace directory and writes the source
// file into it. The caller must Release the handle, normally via defer, so
// the directory is removed on every exit path.
func (m *Manager) Acquire(lang model.Language, code string) (*Handle, error) {
	dir := filepath.Join(m.root, xid.New().String())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("workspace: creating %s: %w", dir, err)
	}

	script := filepath.Join(dir, ScriptName+lang.Ext())
	if err := os.WriteFile(script, []byte(code), 0o600); err != nil {
		// The directory exists but is unusable; remove it now rather than
		// waiting for a Release that will never come.
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			m.logger.Warn("failed to remove broken workspace",
				slog.String("dir", dir),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil, fmt.Errorf("workspace: writing script: %w", err)
	}

	return &Handle{dir: dir, script: script, logger: m.logger}, nil
}

// Handle is one execution's exclusively-owned workspace.
type Handle struct {
	dir    string
	script string
	logger *slog.Logger

	releaseOnce sync.Once
}

// Dir returns the workspace directory path.
func (h *Handle) Dir() string {
	return h.dir
}

// ScriptPath returns the absolute path of the source file.
func (h *Handle) ScriptPath() string {
	return h.script
}

// Release removes the workspace directory and everything in it. Idempotent:
// only the first call deletes, later calls are no-ops. Deletion failures are
// logged as warnings and never escalated.
func (h *Handle) Release() {
	h.releaseOnce.Do(func() {
		if err := os.RemoveAll(h.dir); err != nil {
			h.logger.Warn("workspace cleanup failed",
				slog.String("dir", h.dir),
				slog.String("error", err.Error()),
			)
		}
	})
}
