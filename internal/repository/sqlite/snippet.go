package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/arefin/codelab/internal/apperror"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/repository"
)

var _ repository.SnippetRepository = (*DB)(nil)

// CreateSnippet inserts a new snippet, filling in ID and timestamps.
func (db *DB) CreateSnippet(ctx context.Context, snippet *model.Snippet) error {
	now := time.Now()
	snippet.ID = xid.New().String()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO snippets (id, user_id, name, language, code, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snippet.ID,
		snippet.UserID,
		snippet.Name,
		string(snippet.Language),
		snippet.Code,
		snippet.Description,
		snippet.CreatedAt,
		snippet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting snippet %s: %w", snippet.Name, err)
	}
	return nil
}

// GetSnippet returns the snippet with the given ID, or apperror.ErrNotFound.
func (db *DB) GetSnippet(ctx context.Context, id string) (*model.Snippet, error) {
	var (
		s        model.Snippet
		language string
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, name, language, code, description, created_at, updated_at
		FROM snippets WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &s.Name, &language, &s.Code, &s.Description, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}
	s.Language = model.Language(language)
	return &s, nil
}

// ListSnippets returns a user's snippets, newest first.
func (db *DB) ListSnippets(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Snippet, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, name, language, code, description, created_at, updated_at
		FROM snippets
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets for user %s: %w", userID, err)
	}
	defer rows.Close()

	var snippets []model.Snippet
	for rows.Next() {
		var (
			s        model.Snippet
			language string
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &language, &s.Code, &s.Description, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		s.Language = model.Language(language)
		snippets = append(snippets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}
	return snippets, nil
}

// UpdateSnippet rewrites a snippet's mutable fields.
func (db *DB) UpdateSnippet(ctx context.Context, snippet *model.Snippet) error {
	snippet.UpdatedAt = time.Now()
	res, err := db.conn.ExecContext(ctx, `
		UPDATE snippets SET name = ?, language = ?, code = ?, description = ?, updated_at = ?
		WHERE id = ?`,
		snippet.Name,
		string(snippet.Language),
		snippet.Code,
		snippet.Description,
		snippet.UpdatedAt,
		snippet.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("snippet", snippet.ID)
	}
	return nil
}

// DeleteSnippet removes a snippet by ID.
func (db *DB) DeleteSnippet(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}
