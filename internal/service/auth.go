package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/arefin/codelab/internal/apperror"
	"github.com/arefin/codelab/internal/auth"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/repository"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
	MinPasswordLength = 8
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// AuthService handles registration and login. It owns the auth rules; the
// HTTP layer only parses requests and sets cookies.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates a new account and logs it in. A taken username surfaces
// as apperror.ErrConflict.
func (s *AuthService) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// Login verifies credentials and issues a token. Unknown usernames and
// wrong passwords produce the same error so usernames can't be probed.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, apperror.Unauthorized("invalid username or password")
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Warn("failed login attempt", slog.String("username", username))
		return nil, apperror.Unauthorized("invalid username or password")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the user behind an authenticated request. Used by the
// /api/auth/me handler after the middleware extracts the userID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetUserByID(ctx, id)
}

func validateUsername(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d to %d characters", MinUsernameLength, MaxUsernameLength))
	}
	if !usernamePattern.MatchString(username) {
		return apperror.ValidationFailed("username",
			"username may only contain letters, digits, underscores, and hyphens")
	}
	return nil
}
