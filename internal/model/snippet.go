package model

import "time"

// Snippet is a saved code template a user can load into the editor and
// submit for execution later. Snippets are never executed directly; they go
// through the same validation path as ad-hoc code when run.
type Snippet struct {
	ID          string    `json:"id"          db:"id"`
	UserID      string    `json:"userId"      db:"user_id"`
	Name        string    `json:"name"        db:"name"`
	Language    Language  `json:"language"    db:"language"`
	Code        string    `json:"code"        db:"code"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`
}
