// Package repository defines the storage interfaces the service layer
// depends on. Services receive these interfaces, never a concrete database
// type, so tests inject in-memory mocks and the backend can be swapped in
// one place in server.go.
package repository

import (
	"context"

	"github.com/arefin/codelab/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ExecutionRepository persists execution records. SaveExecution is an upsert
// keyed by record ID: the service writes the record once as pending before
// running and once more in its terminal state.
type ExecutionRepository interface {
	SaveExecution(ctx context.Context, rec *model.ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error)
	ListExecutions(ctx context.Context, userID string, opts ListOptions) ([]model.ExecutionRecord, error)
}

// SessionStatsRepository persists the per-user-per-day aggregates. Writes
// are additive deltas folded into the stored row, so counters accumulated
// before a process restart are never overwritten.
type SessionStatsRepository interface {
	AddSessionStats(ctx context.Context, delta *model.SessionStats) error
	GetSessionStats(ctx context.Context, userID, day string) (*model.SessionStats, error)
}

// UserRepository persists user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

// SnippetRepository persists saved code templates.
type SnippetRepository interface {
	CreateSnippet(ctx context.Context, snippet *model.Snippet) error
	GetSnippet(ctx context.Context, id string) (*model.Snippet, error)
	ListSnippets(ctx context.Context, userID string, opts ListOptions) ([]model.Snippet, error)
	UpdateSnippet(ctx context.Context, snippet *model.Snippet) error
	DeleteSnippet(ctx context.Context, id string) error
}
