// Package sqlite implements the repository interfaces on an embedded SQLite
// database.
//
// The driver is modernc.org/sqlite, a pure-Go translation of SQLite, so the
// binary builds without CGo. The connection runs in WAL mode so reads keep
// flowing while execution records are written.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps the connection pool and implements the repository interfaces.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for an ephemeral database in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Always defer this next to New.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL REFERENCES users(id),
			language          TEXT NOT NULL,
			code              TEXT NOT NULL,
			stdin             TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL,
			stdout            TEXT NOT NULL DEFAULT '',
			stderr            TEXT NOT NULL DEFAULT '',
			return_code       INTEGER,
			execution_seconds REAL NOT NULL DEFAULT 0,
			memory_bytes_used INTEGER NOT NULL DEFAULT 0,
			output_truncated  INTEGER NOT NULL DEFAULT 0,
			created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at      DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_executions_user_created
			ON executions(user_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating executions table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS session_stats (
			user_id                 TEXT NOT NULL REFERENCES users(id),
			day                     TEXT NOT NULL,
			total_executions        INTEGER NOT NULL DEFAULT 0,
			successful_executions   INTEGER NOT NULL DEFAULT 0,
			failed_executions       INTEGER NOT NULL DEFAULT 0,
			total_execution_seconds REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, day)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating session_stats table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snippets (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES users(id),
			name        TEXT NOT NULL,
			language    TEXT NOT NULL DEFAULT 'python',
			code        TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_snippets_user_id ON snippets(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating snippets table: %w", err)
	}

	return nil
}
