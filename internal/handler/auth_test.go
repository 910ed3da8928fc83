package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arefin/codelab/internal/apperror"
	"github.com/arefin/codelab/internal/auth"
	"github.com/arefin/codelab/internal/handler"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/service"
)

type memUserRepo struct {
	byID       map[string]*model.User
	byUsername map[string]*model.User
	nextID     int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		byID:       make(map[string]*model.User),
		byUsername: make(map[string]*model.User),
	}
}

func (m *memUserRepo) CreateUser(_ context.Context, user *model.User) error {
	if _, taken := m.byUsername[user.Username]; taken {
		return apperror.Conflict("user", user.Username)
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	stored := *user
	m.byID[user.ID] = &stored
	m.byUsername[user.Username] = &stored
	return nil
}

func (m *memUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (m *memUserRepo) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	u, ok := m.byUsername[username]
	if !ok {
		return nil, apperror.NotFound("user", username)
	}
	result := *u
	return &result, nil
}

func newAuthHandler(t *testing.T) *handler.AuthHandler {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)
	svc := service.NewAuthService(
		newMemUserRepo(),
		tokens,
		auth.NewPasswordServiceForTest(bcrypt.MinCost),
		testLogger(),
	)
	return handler.NewAuthHandler(svc, testLogger())
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func tokenCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == "token" {
			return c
		}
	}
	return nil
}

func TestHandleRegister(t *testing.T) {
	h := newAuthHandler(t)

	rr := httptest.NewRecorder()
	h.HandleRegister(rr, postJSON("/api/auth/register", `{"username":"alice","password":"a-strong-password"}`))

	require.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		User  model.User `json:"user"`
		Token string     `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.User.Username)
	assert.NotEmpty(t, resp.Token)

	cookie := tokenCookie(t, rr)
	require.NotNil(t, cookie, "expected a session cookie")
	assert.True(t, cookie.HttpOnly)
}

func TestHandleRegisterValidation(t *testing.T) {
	h := newAuthHandler(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed JSON", `{"username":`, http.StatusBadRequest},
		{"short password", `{"username":"alice","password":"short"}`, http.StatusBadRequest},
		{"bad username", `{"username":"a b","password":"a-strong-password"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.HandleRegister(rr, postJSON("/api/auth/register", tt.body))
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestHandleRegisterDuplicate(t *testing.T) {
	h := newAuthHandler(t)

	rr := httptest.NewRecorder()
	h.HandleRegister(rr, postJSON("/api/auth/register", `{"username":"alice","password":"a-strong-password"}`))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	h.HandleRegister(rr, postJSON("/api/auth/register", `{"username":"alice","password":"another-password"}`))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandleLogin(t *testing.T) {
	h := newAuthHandler(t)

	rr := httptest.NewRecorder()
	h.HandleRegister(rr, postJSON("/api/auth/register", `{"username":"alice","password":"a-strong-password"}`))
	require.Equal(t, http.StatusCreated, rr.Code)

	t.Run("correct credentials", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, postJSON("/api/auth/login", `{"username":"alice","password":"a-strong-password"}`))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotNil(t, tokenCookie(t, rr))
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, postJSON("/api/auth/login", `{"username":"alice","password":"wrong-password"}`))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, postJSON("/api/auth/login", `{"username":"mallory","password":"whatever-here"}`))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestHandleLogout(t *testing.T) {
	h := newAuthHandler(t)

	rr := httptest.NewRecorder()
	h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	cookie := tokenCookie(t, rr)
	require.NotNil(t, cookie)
	assert.Less(t, cookie.MaxAge, 0, "logout must expire the cookie")
}

func TestHandleMe(t *testing.T) {
	h := newAuthHandler(t)

	rr := httptest.NewRecorder()
	h.HandleRegister(rr, postJSON("/api/auth/register", `{"username":"alice","password":"a-strong-password"}`))
	require.Equal(t, http.StatusCreated, rr.Code)

	var registered struct {
		User model.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&registered))

	req := authed(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), registered.User.ID)
	rr = httptest.NewRecorder()
	h.HandleMe(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var user model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
	assert.Equal(t, "alice", user.Username)
}
