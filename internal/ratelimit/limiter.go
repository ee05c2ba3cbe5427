// Package ratelimit implements a per-identifier sliding-window limiter.
// State lives in memory only and resets on process restart.
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultLimit  = 60
	DefaultWindow = 60 * time.Second
)

type Limiter struct {
	mu    sync.Mutex
	calls map[string][]time.Time

	// now is swapped out in tests.
	now func() time.Time
}

func New() *Limiter {
	return &Limiter{
		calls: make(map[string][]time.Time),
		now:   time.Now,
	}
}

// Allow reports whether the identifier may make another call within the
// window, recording the call when it is admitted. limit <= 0 and
// window <= 0 fall back to the defaults.
func (l *Limiter) Allow(id string, limit int, window time.Duration) bool {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(id, now, window)
	if len(kept) >= limit {
		l.calls[id] = kept
		return false
	}
	l.calls[id] = append(kept, now)
	return true
}

// Remaining returns how many calls the identifier has left in the default
// window without recording anything.
func (l *Limiter) Remaining(id string, limit int) int {
	if limit <= 0 {
		limit = DefaultLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	used := 0
	cutoff := l.now().Add(-DefaultWindow)
	for _, ts := range l.calls[id] {
		if ts.After(cutoff) {
			used++
		}
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// RetryAfter returns how long the identifier must wait for its oldest
// in-window call to expire. Zero when a call would be admitted now.
func (l *Limiter) RetryAfter(id string, limit int, window time.Duration) time.Duration {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(id, now, window)
	l.calls[id] = kept
	if len(kept) < limit {
		return 0
	}
	return kept[0].Add(window).Sub(now)
}

// prune drops timestamps outside the window. Caller holds the lock.
func (l *Limiter) prune(id string, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	old := l.calls[id]
	kept := old[:0]
	for _, ts := range old {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 && old != nil {
		delete(l.calls, id)
		return nil
	}
	return kept
}
