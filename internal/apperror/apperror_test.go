package apperror

import (
	"errors"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("execution", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("code", "code is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "SecurityViolation wraps ErrSecurityViolation",
			err:       SecurityViolation("import os", "blocked import: os"),
			target:    ErrSecurityViolation,
			wantMatch: true,
		},
		{
			name:      "RateLimited wraps ErrRateLimited",
			err:       RateLimited("rate limit exceeded: 60 executions per minute"),
			target:    ErrRateLimited,
			wantMatch: true,
		},
		{
			name:      "SpawnFailure wraps ErrSpawnFailure",
			err:       SpawnFailure("interpreter not found"),
			target:    ErrSpawnFailure,
			wantMatch: true,
		},
		{
			name:      "SecurityViolation does NOT match ErrRateLimited",
			err:       SecurityViolation("eval(", "blocked token: eval("),
			target:    ErrRateLimited,
			wantMatch: false,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("execution", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("execution", "abc123"),
			wantMessage: "execution not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("code", "code is required"),
			wantMessage: "code is required",
		},
		{
			name:        "SecurityViolation uses custom message",
			err:         SecurityViolation("__import__", "blocked token: __import__"),
			wantMessage: "blocked token: __import__",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := SpawnFailure("python3: no such file or directory")
	if unwrapped := err.Unwrap(); unwrapped != ErrSpawnFailure {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrSpawnFailure)
	}
}

func TestSecurityViolationToken(t *testing.T) {
	// The matched token rides along in Field for audit logging.
	err := SecurityViolation("import socket", "blocked import: socket")
	if err.Field != "import socket" {
		t.Errorf("Field = %q, want %q", err.Field, "import socket")
	}
}
