package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/arefin/codelab/internal/auth"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/service"
)

// SnippetHandler serves CRUD for the caller's saved snippets.
type SnippetHandler struct {
	snippets *service.SnippetService
	logger   *slog.Logger
}

func NewSnippetHandler(snippets *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{
		snippets: snippets,
		logger:   logger,
	}
}

type snippetRequest struct {
	Name        string `json:"name"`
	Language    string `json:"language"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// HandleCreate saves a new snippet.
//
// HTTP: POST /api/snippets
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	var req snippetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	snippet, err := h.snippets.Create(r.Context(), userID, model.Language(req.Language), req.Name, req.Code, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippet)
}

// HandleGet returns one snippet.
//
// HTTP: GET /api/snippets/{id}
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	snippet, err := h.snippets.GetByID(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleList returns the caller's snippets.
//
// HTTP: GET /api/snippets?limit=20&offset=0
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	snippets, err := h.snippets.List(r.Context(), userID, queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		writeError(w, err)
		return
	}
	if snippets == nil {
		snippets = []model.Snippet{}
	}
	writeJSON(w, http.StatusOK, snippets)
}

// HandleUpdate modifies a snippet.
//
// HTTP: PUT /api/snippets/{id}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	var req snippetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	snippet, err := h.snippets.Update(r.Context(), userID, r.PathValue("id"), req.Name, req.Code, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete removes a snippet.
//
// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	if err := h.snippets.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
