// Package ratelimit implements a per-key sliding-window request limiter for
// the HTTP surface.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows at most limit hits per key within a sliding window. The
// window slides continuously; a burst that fills it blocks further hits until
// the oldest ones age out.
type Limiter struct {
	limit  int
	window time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// Option adjusts limiter construction.
type Option func(*Limiter)

// WithNow replaces the clock. Intended for tests.
func WithNow(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a limiter admitting limit hits per window per key.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records a hit for key and reports whether it fits in the window.
// Rejected hits are not recorded, so a hammering client does not extend its
// own lockout. An empty key is bucketed as "unknown".
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.limit {
		l.hits[key] = recent
		return false
	}
	l.hits[key] = append(recent, now)
	return true
}

// Reset drops all recorded hits.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits = make(map[string][]time.Time)
}
