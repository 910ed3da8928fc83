package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is unexported so only this package can read or write the
// userID slot in a request context.
type contextKey string

const userIDKey contextKey = "userID"

// RequireAuth enforces authentication on protected routes. It accepts the
// JWT either from the "token" HttpOnly cookie (browser clients) or from an
// Authorization: Bearer header (API clients), validates it, and stores the
// userID in the request context. Missing or invalid tokens get a 401 and
// the chain stops.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext retrieves the authenticated user's ID from the request
// context. Returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithUserID returns a context carrying the given userID. Handler tests use
// it to simulate an authenticated request without running the middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return tokens.Validate(strings.TrimPrefix(h, "Bearer "))
	}
	cookie, err := r.Cookie("token")
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
