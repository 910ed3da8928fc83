package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/repository"
)

var _ repository.SessionStatsRepository = (*DB)(nil)

// AddSessionStats folds one execution's delta into the (user_id, day) row.
// The arithmetic lives in SQL rather than in the caller: a process restarted
// mid-day starts its in-memory counters from zero, and an additive write
// keeps accumulating on top of what is already stored instead of replacing
// it.
func (db *DB) AddSessionStats(ctx context.Context, delta *model.SessionStats) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO session_stats (
			user_id, day, total_executions, successful_executions,
			failed_executions, total_execution_seconds
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET
			total_executions        = total_executions + excluded.total_executions,
			successful_executions   = successful_executions + excluded.successful_executions,
			failed_executions       = failed_executions + excluded.failed_executions,
			total_execution_seconds = total_execution_seconds + excluded.total_execution_seconds`,
		delta.UserID,
		delta.Day,
		delta.TotalExecutions,
		delta.SuccessfulExecutions,
		delta.FailedExecutions,
		delta.TotalExecutionSeconds,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding session stats for %s/%s: %w", delta.UserID, delta.Day, err)
	}
	return nil
}

// GetSessionStats returns the bucket for (user, day). A user with no
// executions that day gets a zero bucket, not an error: an empty day is a
// normal state, not an absence.
func (db *DB) GetSessionStats(ctx context.Context, userID, day string) (*model.SessionStats, error) {
	stats := &model.SessionStats{UserID: userID, Day: day}
	err := db.conn.QueryRowContext(ctx, `
		SELECT total_executions, successful_executions, failed_executions,
		       total_execution_seconds
		FROM session_stats WHERE user_id = ? AND day = ?`, userID, day,
	).Scan(
		&stats.TotalExecutions,
		&stats.SuccessfulExecutions,
		&stats.FailedExecutions,
		&stats.TotalExecutionSeconds,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return stats, nil
		}
		return nil, fmt.Errorf("sqlite: getting session stats for %s/%s: %w", userID, day, err)
	}
	return stats, nil
}
