package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/arefin/codelab/internal/apperror"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new account. The username is UNIQUE; a duplicate maps
// to apperror.ErrConflict so the handler can return 409 instead of a 500.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}
	return nil
}

// GetUserByID returns the user with the given internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `SELECT id, username, password_hash, created_at, updated_at
		FROM users WHERE id = ?`, id)
}

// GetUserByUsername returns the user with the given username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, `SELECT id, username, password_hash, created_at, updated_at
		FROM users WHERE username = ?`, username)
}

func (db *DB) getUser(ctx context.Context, query, arg string) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", arg)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", arg, err)
	}
	return &u, nil
}
