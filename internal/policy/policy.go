// Package policy holds the security policy governing what code may run and
// under which limits.
//
// Exactly one policy is active at a time. It is loaded at startup and may be
// hot-swapped (SIGHUP) through the Store, which keeps the active snapshot
// behind an atomic pointer so readers never observe a half-updated policy.
// Each request takes one snapshot and uses it for its whole lifetime.
package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/arefin/codelab/internal/model"
)

// Policy is an immutable snapshot of the active security policy.
// Do not mutate a Policy after publishing it through a Store.
type Policy struct {
	MaxExecutionSeconds     float64  `yaml:"max_execution_time"`
	MaxMemoryMB             int      `yaml:"max_memory"`
	MaxOutputBytes          int      `yaml:"max_output_size"`
	MaxCodeBytes            int      `yaml:"max_code_size"`
	AllowedLanguages        []string `yaml:"allowed_languages"`
	BlockedImports          []string `yaml:"blocked_imports"`
	BlockedFunctionPatterns []string `yaml:"blocked_functions"`
	MaxExecutionsPerMinute  int      `yaml:"max_executions_per_minute"`
	MaxExecutionsPerHour    int      `yaml:"max_executions_per_hour"`
}

// Default returns the documented fallback policy. Absence of a policy file
// falls back to these values, never to "unlimited".
func Default() *Policy {
	return &Policy{
		MaxExecutionSeconds: 5.0,
		MaxMemoryMB:         64,
		MaxOutputBytes:      10240,
		MaxCodeBytes:        102400,
		AllowedLanguages: []string{
			string(model.LanguagePython),
			string(model.LanguageKarel),
		},
		BlockedImports: []string{
			"os", "sys", "subprocess", "socket", "shutil", "pathlib",
			"multiprocessing", "threading", "ctypes", "signal", "pty",
			"importlib", "urllib", "http", "requests", "pickle",
		},
		BlockedFunctionPatterns: []string{
			"eval(", "exec(", "__import__", "open(", "compile(",
			"globals(", "locals(", "getattr(", "setattr(", "delattr(",
			"input(", "breakpoint(", "memoryview(", "vars(",
		},
		MaxExecutionsPerMinute: 60,
		MaxExecutionsPerHour:   1000,
	}
}

// LanguageAllowed reports whether the language is on the allow-list.
func (p *Policy) LanguageAllowed(lang model.Language) bool {
	for _, allowed := range p.AllowedLanguages {
		if allowed == string(lang) {
			return true
		}
	}
	return false
}

// Validate rejects policies that would disable the sandbox's protections.
func (p *Policy) Validate() error {
	if p.MaxExecutionSeconds <= 0 {
		return fmt.Errorf("policy: max_execution_time must be positive, got %v", p.MaxExecutionSeconds)
	}
	if p.MaxOutputBytes <= 0 {
		return fmt.Errorf("policy: max_output_size must be positive, got %d", p.MaxOutputBytes)
	}
	if p.MaxCodeBytes <= 0 {
		return fmt.Errorf("policy: max_code_size must be positive, got %d", p.MaxCodeBytes)
	}
	if p.MaxExecutionsPerMinute <= 0 || p.MaxExecutionsPerHour <= 0 {
		return errors.New("policy: rate limits must be positive")
	}
	if len(p.AllowedLanguages) == 0 {
		return errors.New("policy: allowed_languages must not be empty")
	}
	return nil
}

// Load reads a policy file, overlaying it on the defaults. An empty path or
// a missing file yields the defaults.
func Load(path string) (*Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("policy: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("policy: parsing %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Store publishes the active policy. Readers call Current for a snapshot;
// Reload swaps in a new policy atomically.
type Store struct {
	path    string
	current atomic.Pointer[Policy]
	logger  *slog.Logger
}

// NewStore loads the policy from path (falling back to defaults) and returns
// a store serving it.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	p, err := policyOrDefault(path, logger)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, logger: logger}
	s.current.Store(p)
	return s, nil
}

// Current returns the active policy snapshot. Never nil.
func (s *Store) Current() *Policy {
	return s.current.Load()
}

// Reload re-reads the policy file and swaps it in. On failure the previous
// policy stays active and the error is returned for logging.
func (s *Store) Reload() error {
	p, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(p)
	s.logger.Info("security policy reloaded",
		slog.String("path", s.path),
		slog.Float64("maxExecutionSeconds", p.MaxExecutionSeconds),
		slog.Int("maxOutputBytes", p.MaxOutputBytes),
	)
	return nil
}

// Swap replaces the active policy directly. Used by tests and by callers
// that construct policies programmatically.
func (s *Store) Swap(p *Policy) {
	s.current.Store(p)
}

func policyOrDefault(path string, logger *slog.Logger) (*Policy, error) {
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	if path == "" {
		logger.Info("no policy file configured, using defaults")
	}
	return p, nil
}
