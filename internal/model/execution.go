// Package model defines the data structures used throughout the application.
package model

import "time"

// Language identifies an interpreter the sandbox knows how to run.
type Language string

const (
	// LanguagePython is the general-purpose language.
	LanguagePython Language = "python"
	// LanguageKarel is the restricted teaching language.
	LanguageKarel Language = "karel"
)

// Ext returns the source file extension for the language, including the dot.
func (l Language) Ext() string {
	switch l {
	case LanguagePython:
		return ".py"
	case LanguageKarel:
		return ".krl"
	default:
		return ".txt"
	}
}

// Status is the lifecycle state of an execution record.
//
// Pending and Running are transient; the other four are terminal. Once a
// record reaches a terminal status it never transitions again.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed" // exit code 0
	StatusFailed    Status = "failed"    // nonzero exit code
	StatusTimedOut  Status = "timed_out" // killed by the runner, exit code 124
	StatusError     Status = "error"     // rejected or failed before/outside the child
)

// Terminal reports whether the status is one of the four terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusError:
		return true
	}
	return false
}

// ExecutionRecord is the durable result of one code-run request.
//
// The record is owned by the executing goroutine until it reaches a terminal
// status, then handed off to storage. Inputs are captured verbatim so a
// record can be replayed or audited later.
type ExecutionRecord struct {
	ID       string   `json:"id"       db:"id"` // UUID
	UserID   string   `json:"userId"   db:"user_id"`
	Language Language `json:"language" db:"language"`
	Code     string   `json:"code"     db:"code"`
	Stdin    string   `json:"stdin"    db:"stdin"`

	Status     Status `json:"status"     db:"status"`
	Stdout     string `json:"stdout"     db:"stdout"`
	Stderr     string `json:"stderr"     db:"stderr"`
	ReturnCode *int   `json:"returnCode" db:"return_code"` // nil until the child exits

	ExecutionSeconds float64 `json:"executionSeconds" db:"execution_seconds"`
	MemoryBytesUsed  int64   `json:"memoryBytesUsed"  db:"memory_bytes_used"`
	OutputTruncated  bool    `json:"outputTruncated"  db:"output_truncated"`

	CreatedAt   time.Time  `json:"createdAt"   db:"created_at"`
	CompletedAt *time.Time `json:"completedAt" db:"completed_at"`
}

// ExecutionRequest is a validated request to run one snippet.
// Immutable once constructed; the zero TimeoutSeconds means "use policy max".
type ExecutionRequest struct {
	UserID         string
	Language       Language
	Code           string
	Stdin          string
	TimeoutSeconds float64 // optional per-call override, clamped to policy
}

// SessionStats aggregates one user's executions for one calendar day.
// Mutated only after a record reaches a terminal state, exactly once per
// record. Day is the UTC date in YYYY-MM-DD form.
type SessionStats struct {
	UserID                string  `json:"userId"                db:"user_id"`
	Day                   string  `json:"day"                   db:"day"`
	TotalExecutions       int64   `json:"totalExecutions"       db:"total_executions"`
	SuccessfulExecutions  int64   `json:"successfulExecutions"  db:"successful_executions"`
	FailedExecutions      int64   `json:"failedExecutions"      db:"failed_executions"`
	TotalExecutionSeconds float64 `json:"totalExecutionSeconds" db:"total_execution_seconds"`
}
