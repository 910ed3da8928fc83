package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var noon = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestRecordCreatesBucketLazily(t *testing.T) {
	tr := NewTracker()

	empty := tr.Get("alice", noon)
	assert.Zero(t, empty.TotalExecutions)

	got := tr.Record("alice", noon, true, 1.5)
	assert.Equal(t, int64(1), got.TotalExecutions)
	assert.Equal(t, int64(1), got.SuccessfulExecutions)
	assert.Equal(t, int64(0), got.FailedExecutions)
	assert.Equal(t, 1.5, got.TotalExecutionSeconds)
	assert.Equal(t, "2026-03-14", got.Day)
}

func TestRecordAccumulates(t *testing.T) {
	tr := NewTracker()

	tr.Record("alice", noon, true, 1.0)
	tr.Record("alice", noon, false, 2.0)
	got := tr.Record("alice", noon, false, 0.5)

	assert.Equal(t, int64(3), got.TotalExecutions)
	assert.Equal(t, int64(1), got.SuccessfulExecutions)
	assert.Equal(t, int64(2), got.FailedExecutions)
	assert.InDelta(t, 3.5, got.TotalExecutionSeconds, 1e-9)
}

func TestBucketsSplitByDay(t *testing.T) {
	tr := NewTracker()

	tr.Record("alice", noon, true, 1.0)
	tomorrow := noon.Add(24 * time.Hour)
	tr.Record("alice", tomorrow, true, 1.0)

	assert.Equal(t, int64(1), tr.Get("alice", noon).TotalExecutions)
	assert.Equal(t, int64(1), tr.Get("alice", tomorrow).TotalExecutions)
}

func TestDayIsUTC(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	est := time.FixedZone("EST", -5*3600)
	late := time.Date(2026, 3, 14, 23, 30, 0, 0, est)
	assert.Equal(t, "2026-03-15", Day(late))
}

func TestConcurrentRecordsPerUser(t *testing.T) {
	tr := NewTracker()

	const users = 10
	const perUser = 20

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		userID := fmt.Sprintf("user-%d", u)
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tr.Record(userID, noon, true, 0.1)
			}()
		}
	}
	wg.Wait()

	// No cross-user leakage: each bucket holds exactly its own executions.
	var total int64
	for u := 0; u < users; u++ {
		stats := tr.Get(fmt.Sprintf("user-%d", u), noon)
		assert.Equal(t, int64(perUser), stats.TotalExecutions)
		total += stats.TotalExecutions
	}
	assert.Equal(t, int64(users*perUser), total)
}
