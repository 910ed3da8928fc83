// Package service contains the business logic layer of the application.
//
// ExecutionService owns the full execution pipeline:
//
//	rate limit → validate → acquire workspace → run → record → session stats
//
// A sandbox failure is never an error to the caller: every outcome, including
// rejected code, timeouts, and internal failures, lands as a terminal status
// on the returned ExecutionRecord. Callers read record.Status, not an error.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arefin/codelab/internal/apperror"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/policy"
	"github.com/arefin/codelab/internal/ratelimit"
	"github.com/arefin/codelab/internal/repository"
	"github.com/arefin/codelab/internal/runner"
	"github.com/arefin/codelab/internal/session"
	"github.com/arefin/codelab/internal/validator"
	"github.com/arefin/codelab/internal/workspace"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ExecutionService orchestrates sandboxed code execution.
type ExecutionService struct {
	policies   *policy.Store
	validator  *validator.Validator
	workspaces *workspace.Manager
	runner     runner.Runner
	limiter    *ratelimit.Limiter
	sessions   *session.Tracker
	executions repository.ExecutionRepository
	stats      repository.SessionStatsRepository
	logger     *slog.Logger
}

// NewExecutionService wires the execution pipeline. The runner is an
// interface so tests can count spawns without creating processes.
func NewExecutionService(
	policies *policy.Store,
	v *validator.Validator,
	workspaces *workspace.Manager,
	r runner.Runner,
	limiter *ratelimit.Limiter,
	executions repository.ExecutionRepository,
	stats repository.SessionStatsRepository,
	logger *slog.Logger,
) *ExecutionService {
	return &ExecutionService{
		policies:   policies,
		validator:  v,
		workspaces: workspaces,
		runner:     r,
		limiter:    limiter,
		sessions:   session.NewTracker(),
		executions: executions,
		stats:      stats,
		logger:     logger,
	}
}

// Run executes one request through the full pipeline and returns the
// terminal record. If persist is true the record is written once as pending
// before anything runs (so a crash mid-execution still leaves a trace) and
// once in its terminal state. Persistence failures are logged, never
// surfaced: the execution result stands on its own.
func (s *ExecutionService) Run(ctx context.Context, req model.ExecutionRequest, persist bool) (rec *model.ExecutionRecord) {
	rec = &model.ExecutionRecord{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Language:  req.Language,
		Code:      req.Code,
		Stdin:     req.Stdin,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	// A bug below this line must still yield a terminal record; the one
	// thing this service may never do is leave a record pending or running.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("execution pipeline panicked",
				slog.String("executionID", rec.ID),
				slog.Any("panic", r),
			)
			s.fail(ctx, rec, persist, "internal error")
		}
	}()

	if persist {
		s.save(ctx, rec)
	}

	p := s.policies.Current()

	if err := s.limiter.Allow(req.UserID, time.Now(), p.MaxExecutionsPerMinute, p.MaxExecutionsPerHour); err != nil {
		s.logger.Warn("execution rate limited", slog.String("userID", req.UserID))
		s.fail(ctx, rec, persist, errMessage(err))
		return rec
	}

	if err := s.validator.Validate(p, req.Language, req.Code); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && errors.Is(err, apperror.ErrSecurityViolation) {
			s.logger.Warn("code rejected by security policy",
				slog.String("userID", req.UserID),
				slog.String("executionID", rec.ID),
				slog.String("token", appErr.Field),
			)
		}
		// No process is ever spawned for invalid code.
		s.fail(ctx, rec, persist, errMessage(err))
		return rec
	}

	handle, err := s.workspaces.Acquire(req.Language, req.Code)
	if err != nil {
		s.logger.Error("workspace acquisition failed",
			slog.String("executionID", rec.ID),
			slog.String("error", err.Error()),
		)
		s.fail(ctx, rec, persist, "internal error: could not prepare workspace")
		return rec
	}
	// Release runs on every exit path, panic included.
	defer handle.Release()

	rec.Status = model.StatusRunning

	outcome := s.runner.Execute(ctx, handle, req.Language, runner.Options{
		Stdin:          req.Stdin,
		Timeout:        effectiveTimeout(req.TimeoutSeconds, p.MaxExecutionSeconds),
		MaxOutputBytes: p.MaxOutputBytes,
	})

	switch {
	case errors.Is(outcome.Err, apperror.ErrSpawnFailure):
		s.logger.Error("interpreter spawn failed",
			slog.String("executionID", rec.ID),
			slog.String("language", string(req.Language)),
			slog.String("error", outcome.Err.Error()),
		)
	case errors.Is(outcome.Err, apperror.ErrResourceLimit):
		s.logger.Warn("execution hit a resource limit",
			slog.String("executionID", rec.ID),
			slog.String("userID", rec.UserID),
			slog.String("error", outcome.Err.Error()),
		)
	}

	code := outcome.ReturnCode
	rec.Status = statusFromState(outcome.State)
	rec.Stdout = outcome.Stdout
	rec.Stderr = outcome.Stderr
	rec.ReturnCode = &code
	rec.ExecutionSeconds = outcome.ElapsedSeconds
	rec.MemoryBytesUsed = outcome.MemoryBytesUsed
	rec.OutputTruncated = outcome.Truncated
	now := time.Now().UTC()
	rec.CompletedAt = &now

	s.recordStats(ctx, rec)

	if persist {
		s.save(ctx, rec)
	}

	s.logger.Info("execution finished",
		slog.String("executionID", rec.ID),
		slog.String("userID", rec.UserID),
		slog.String("status", string(rec.Status)),
		slog.Float64("seconds", rec.ExecutionSeconds),
	)
	return rec
}

// GetExecution returns one of the caller's execution records.
func (s *ExecutionService) GetExecution(ctx context.Context, userID, id string) (*model.ExecutionRecord, error) {
	rec, err := s.executions.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		// Don't leak record existence across users.
		return nil, apperror.NotFound("execution", id)
	}
	return rec, nil
}

// ListExecutions returns the caller's execution history, newest first.
func (s *ExecutionService) ListExecutions(ctx context.Context, userID string, limit, offset int) ([]model.ExecutionRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	records, err := s.executions.ListExecutions(ctx, userID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list executions", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	return records, nil
}

// StatsToday returns the caller's session stats for the current UTC day.
// Reads go to storage so the numbers survive restarts.
func (s *ExecutionService) StatsToday(ctx context.Context, userID string) (*model.SessionStats, error) {
	return s.stats.GetSessionStats(ctx, userID, session.Day(time.Now()))
}

// fail marks the record terminal with status Error before any process ran.
// Pre-execution rejections carry return code 1 and the rejection message in
// stderr; they do not touch session stats.
func (s *ExecutionService) fail(ctx context.Context, rec *model.ExecutionRecord, persist bool, message string) {
	if rec.Status.Terminal() {
		return
	}
	code := runner.ExitError
	now := time.Now().UTC()
	rec.Status = model.StatusError
	rec.Stderr = message
	rec.ReturnCode = &code
	rec.CompletedAt = &now
	if persist {
		s.save(ctx, rec)
	}
}

// recordStats applies the terminal record to the in-memory tracker and folds
// a one-execution delta into storage. Storage accumulates deltas rather than
// mirroring tracker totals, so a tracker that starts empty after a restart
// adds to the persisted counters instead of clobbering them. Called exactly
// once per record that reached the runner.
func (s *ExecutionService) recordStats(ctx context.Context, rec *model.ExecutionRecord) {
	success := rec.Status == model.StatusCompleted
	s.sessions.Record(rec.UserID, *rec.CompletedAt, success, rec.ExecutionSeconds)

	delta := model.SessionStats{
		UserID:                rec.UserID,
		Day:                   session.Day(*rec.CompletedAt),
		TotalExecutions:       1,
		TotalExecutionSeconds: rec.ExecutionSeconds,
	}
	if success {
		delta.SuccessfulExecutions = 1
	} else {
		delta.FailedExecutions = 1
	}
	if err := s.stats.AddSessionStats(ctx, &delta); err != nil {
		s.logger.Error("failed to persist session stats",
			slog.String("userID", rec.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ExecutionService) save(ctx context.Context, rec *model.ExecutionRecord) {
	if err := s.executions.SaveExecution(ctx, rec); err != nil {
		s.logger.Error("failed to persist execution record",
			slog.String("executionID", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// effectiveTimeout clamps a per-request override to the policy maximum. A
// missing or non-positive override means "use the policy maximum".
func effectiveTimeout(overrideSeconds, policyMaxSeconds float64) time.Duration {
	seconds := policyMaxSeconds
	if overrideSeconds > 0 && overrideSeconds < policyMaxSeconds {
		seconds = overrideSeconds
	}
	return time.Duration(seconds * float64(time.Second))
}

func statusFromState(state runner.State) model.Status {
	switch state {
	case runner.StateCompleted:
		return model.StatusCompleted
	case runner.StateFailed:
		return model.StatusFailed
	case runner.StateTimedOut:
		return model.StatusTimedOut
	default:
		return model.StatusError
	}
}

func errMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
