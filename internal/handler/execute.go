package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/arefin/codelab/internal/auth"
	"github.com/arefin/codelab/internal/model"
)

// ExecutionService is the slice of the execution service the HTTP layer
// needs. Tests implement it directly instead of standing up the pipeline.
type ExecutionService interface {
	Run(ctx context.Context, req model.ExecutionRequest, persist bool) *model.ExecutionRecord
	GetExecution(ctx context.Context, userID, id string) (*model.ExecutionRecord, error)
	ListExecutions(ctx context.Context, userID string, limit, offset int) ([]model.ExecutionRecord, error)
	StatsToday(ctx context.Context, userID string) (*model.SessionStats, error)
}

// ExecuteHandler serves code execution and execution history.
type ExecuteHandler struct {
	executions ExecutionService
	logger     *slog.Logger
}

func NewExecuteHandler(executions ExecutionService, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		executions: executions,
		logger:     logger,
	}
}

type executeRequest struct {
	Language       string  `json:"language"`
	Code           string  `json:"code"`
	Stdin          string  `json:"stdin"`
	TimeoutSeconds float64 `json:"timeoutSeconds"`
	Persist        *bool   `json:"persist"`
}

// HandleExecute runs a code submission and returns the terminal record.
//
// HTTP: POST /api/execute
// Body: {"language":"python","code":"print(1)","stdin":"","timeoutSeconds":0}
//
// The response is always 200 with a terminal record once the body parses:
// rejections (blocked code, rate limits, runtime failures) are states on the
// record, not HTTP errors. Persistence defaults to on; pass "persist":false
// for a throwaway run.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	persist := true
	if req.Persist != nil {
		persist = *req.Persist
	}

	rec := h.executions.Run(r.Context(), model.ExecutionRequest{
		UserID:         userID,
		Language:       model.Language(req.Language),
		Code:           req.Code,
		Stdin:          req.Stdin,
		TimeoutSeconds: req.TimeoutSeconds,
	}, persist)

	writeJSON(w, http.StatusOK, rec)
}

// HandleGet returns one of the user's execution records.
//
// HTTP: GET /api/executions/{id}
func (h *ExecuteHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	rec, err := h.executions.GetExecution(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleList returns the user's execution history, newest first.
//
// HTTP: GET /api/executions?limit=20&offset=0
func (h *ExecuteHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	limit := queryInt(r, "limit")
	offset := queryInt(r, "offset")

	recs, err := h.executions.ListExecutions(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("listing executions failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []model.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// HandleStatsToday returns the user's aggregate counters for the current
// UTC day.
//
// HTTP: GET /api/stats/today
func (h *ExecuteHandler) HandleStatsToday(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	stats, err := h.executions.StatsToday(r.Context(), userID)
	if err != nil {
		h.logger.Error("stats lookup failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}
