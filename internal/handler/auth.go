package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/arefin/codelab/internal/auth"
	"github.com/arefin/codelab/internal/service"
)

var tokenCookieMaxAge = int((24 * time.Hour).Seconds())

// AuthHandler exposes registration, login, logout, and the current-user
// lookup. Sessions ride in an HttpOnly "token" cookie; API clients may use
// the token from the response body as a Bearer header instead.
type AuthHandler struct {
	authService *service.AuthService
	logger      *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	User  any    `json:"user"`
	Token string `json:"token"`
}

// HandleRegister creates an account.
//
// HTTP: POST /api/auth/register
// Body: {"username": "alice", "password": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	result, err := h.authService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	setTokenCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, authResponse{User: result.User, Token: result.Token})
}

// HandleLogin verifies credentials and issues a session.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	result, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	setTokenCookie(w, result.Token)
	writeJSON(w, http.StatusOK, authResponse{User: result.User, Token: result.Token})
}

// HandleLogout clears the session cookie. The JWT itself stays valid until
// expiry; without the cookie the browser can no longer send it.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("current-user lookup failed", slog.String("userID", userID))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   tokenCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
