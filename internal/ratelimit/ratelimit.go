// Package ratelimit provides the per-user execution rate limiter the
// execution service consults before running anything.
//
// Counters are fixed windows keyed (user, minute) and (user, hour). The
// check is an atomic increment-then-compare under the limiter's lock, so two
// racing requests can never both slip through the last slot of a window.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/arefin/codelab/internal/apperror"
)

type windowKey struct {
	userID string
	window int64 // unix minute or unix hour
}

// Limiter counts executions per user against per-minute and per-hour caps.
type Limiter struct {
	mu        sync.Mutex
	minutes   map[windowKey]int
	hours     map[windowKey]int
	lastPrune time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{
		minutes: make(map[windowKey]int),
		hours:   make(map[windowKey]int),
	}
}

// Allow records one attempted execution for the user and reports whether it
// is within both limits. Denied attempts still consume a slot; a client
// hammering the API does not get extra headroom. Returns an AppError
// wrapping apperror.ErrRateLimited on denial.
func (l *Limiter) Allow(userID string, now time.Time, perMinute, perHour int) error {
	minuteKey := windowKey{userID: userID, window: now.Unix() / 60}
	hourKey := windowKey{userID: userID, window: now.Unix() / 3600}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	l.minutes[minuteKey]++
	l.hours[hourKey]++

	if l.minutes[minuteKey] > perMinute {
		return apperror.RateLimited(
			fmt.Sprintf("rate limit exceeded: %d executions per minute", perMinute))
	}
	if l.hours[hourKey] > perHour {
		return apperror.RateLimited(
			fmt.Sprintf("rate limit exceeded: %d executions per hour", perHour))
	}
	return nil
}

// pruneLocked drops windows that can no longer affect a decision. Runs at
// most once a minute to keep Allow cheap.
func (l *Limiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < time.Minute {
		return
	}
	l.lastPrune = now

	currentMinute := now.Unix() / 60
	for k := range l.minutes {
		if k.window < currentMinute {
			delete(l.minutes, k)
		}
	}
	currentHour := now.Unix() / 3600
	for k := range l.hours {
		if k.window < currentHour {
			delete(l.hours, k)
		}
	}
}
