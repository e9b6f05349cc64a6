package service

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window request counter keyed by caller address.
// It is process-local and approximate: state resets on restart and counts
// may race slightly under concurrency. That is acceptable for a coarse
// abuse guard; it is not a security boundary.
type RateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	quota     int
	length    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type window struct {
	start time.Time
	count int
}

// NewRateLimiter allows quota requests per window length for each key.
func NewRateLimiter(quota int, length time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		quota:   quota,
		length:  length,
		now:     time.Now,
	}
}

// WithClock replaces the limiter's clock. Tests use this to advance windows
// without wall-clock sleeps.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// Allow records one request for key and reports whether it is within quota.
func (l *RateLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.length {
		w = &window{start: now}
		l.windows[key] = w
	}

	w.count++
	l.maybeSweep(now)

	return w.count <= l.quota
}

// maybeSweep drops windows that ended long ago so the map does not grow
// without bound under churning keys. Called with the lock held.
func (l *RateLimiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < 5*l.length {
		return
	}
	l.lastSweep = now

	for key, w := range l.windows {
		if now.Sub(w.start) >= l.length {
			delete(l.windows, key)
		}
	}
}
