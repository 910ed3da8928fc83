// Package session tracks per-user, per-day execution aggregates.
//
// Buckets are created lazily on a user's first execution of the day and
// mutated exactly once per terminal execution record. The tracker keeps the
// live counters in memory under a lock; the execution service forwards each
// updated bucket to storage for downstream reporting.
package session

import (
	"sync"
	"time"

	"github.com/arefin/codelab/internal/model"
)

type bucketKey struct {
	userID string
	day    string
}

// Tracker maintains the in-memory SessionStats buckets.
type Tracker struct {
	mu      sync.Mutex
	buckets map[bucketKey]*model.SessionStats
}

func NewTracker() *Tracker {
	return &Tracker{
		buckets: make(map[bucketKey]*model.SessionStats),
	}
}

// Day formats a timestamp as the UTC calendar day buckets are keyed by.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Record applies one terminal execution to the user's bucket for the day and
// returns a copy of the updated bucket. success means the record completed
// with return code zero.
func (tr *Tracker) Record(userID string, at time.Time, success bool, elapsedSeconds float64) model.SessionStats {
	key := bucketKey{userID: userID, day: Day(at)}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	stats, ok := tr.buckets[key]
	if !ok {
		stats = &model.SessionStats{UserID: userID, Day: key.day}
		tr.buckets[key] = stats
	}

	stats.TotalExecutions++
	if success {
		stats.SuccessfulExecutions++
	} else {
		stats.FailedExecutions++
	}
	stats.TotalExecutionSeconds += elapsedSeconds

	return *stats
}

// Get returns a copy of the user's bucket for the day, or a zero bucket if
// the user has not executed anything yet.
func (tr *Tracker) Get(userID string, at time.Time) model.SessionStats {
	key := bucketKey{userID: userID, day: Day(at)}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if stats, ok := tr.buckets[key]; ok {
		return *stats
	}
	return model.SessionStats{UserID: userID, Day: key.day}
}
