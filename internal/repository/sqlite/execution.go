package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arefin/codelab/internal/apperror"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/repository"
)

var _ repository.ExecutionRepository = (*DB)(nil)

// SaveExecution upserts an execution record by ID. The execution service
// calls this twice per run: once with the pending record before spawning, so
// a crash mid-execution still leaves an auditable trace, and once with the
// terminal record.
func (db *DB) SaveExecution(ctx context.Context, rec *model.ExecutionRecord) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO executions (
			id, user_id, language, code, stdin, status, stdout, stderr,
			return_code, execution_seconds, memory_bytes_used,
			output_truncated, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status            = excluded.status,
			stdout            = excluded.stdout,
			stderr            = excluded.stderr,
			return_code       = excluded.return_code,
			execution_seconds = excluded.execution_seconds,
			memory_bytes_used = excluded.memory_bytes_used,
			output_truncated  = excluded.output_truncated,
			completed_at      = excluded.completed_at`,
		rec.ID,
		rec.UserID,
		string(rec.Language),
		rec.Code,
		rec.Stdin,
		string(rec.Status),
		rec.Stdout,
		rec.Stderr,
		rec.ReturnCode,
		rec.ExecutionSeconds,
		rec.MemoryBytesUsed,
		rec.OutputTruncated,
		rec.CreatedAt,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving execution %s: %w", rec.ID, err)
	}
	return nil
}

// GetExecution returns the record with the given ID, or apperror.ErrNotFound.
func (db *DB) GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, language, code, stdin, status, stdout, stderr,
		       return_code, execution_seconds, memory_bytes_used,
		       output_truncated, created_at, completed_at
		FROM executions WHERE id = ?`, id)

	rec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("execution", id)
		}
		return nil, fmt.Errorf("sqlite: getting execution %s: %w", id, err)
	}
	return rec, nil
}

// ListExecutions returns a user's records, newest first.
func (db *DB) ListExecutions(ctx context.Context, userID string, opts repository.ListOptions) ([]model.ExecutionRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, language, code, stdin, status, stdout, stderr,
		       return_code, execution_seconds, memory_bytes_used,
		       output_truncated, created_at, completed_at
		FROM executions
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing executions for user %s: %w", userID, err)
	}
	defer rows.Close()

	var records []model.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning execution row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating executions: %w", err)
	}
	return records, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(s scanner) (*model.ExecutionRecord, error) {
	var (
		rec        model.ExecutionRecord
		language   string
		status     string
		returnCode sql.NullInt64
	)
	err := s.Scan(
		&rec.ID,
		&rec.UserID,
		&language,
		&rec.Code,
		&rec.Stdin,
		&status,
		&rec.Stdout,
		&rec.Stderr,
		&returnCode,
		&rec.ExecutionSeconds,
		&rec.MemoryBytesUsed,
		&rec.OutputTruncated,
		&rec.CreatedAt,
		&rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Language = model.Language(language)
	rec.Status = model.Status(status)
	if returnCode.Valid {
		code := int(returnCode.Int64)
		rec.ReturnCode = &code
	}
	return &rec, nil
}
