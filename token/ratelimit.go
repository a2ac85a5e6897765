package token

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds request volume per identifier (typically a client IP).
// Allow is the gate and the recorder in one call: an allowed request counts
// against the identifier's budget, a rejected one does not, so an attacker
// cannot extend their own lockout window by hammering the gate.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
	// Prune drops identifiers with no activity inside the window.
	Prune(ctx context.Context, now time.Time) error
}

// slidingWindow is the in-process RateLimiter: per-identifier request
// timestamps pruned to a sliding window.
type slidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	now    func() time.Time
	seen   map[string][]time.Time
}

// NewSlidingWindowLimiter returns a process-local [RateLimiter] allowing up
// to max requests per identifier inside the trailing window. Non-positive
// arguments fall back to 60 requests per 60 seconds.
func NewSlidingWindowLimiter(max int, window time.Duration) RateLimiter {
	return newSlidingWindowLimiter(max, window, time.Now)
}

func newSlidingWindowLimiter(max int, window time.Duration, now func() time.Time) *slidingWindow {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &slidingWindow{
		max:    max,
		window: window,
		now:    now,
		seen:   make(map[string][]time.Time),
	}
}

func (l *slidingWindow) Allow(_ context.Context, identifier string) (bool, error) {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := l.seen[identifier]
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= l.max {
		l.seen[identifier] = live
		return false, nil
	}

	l.seen[identifier] = append(live, now)
	return true, nil
}

func (l *slidingWindow) Prune(_ context.Context, now time.Time) error {
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, stamps := range l.seen {
		live := stamps[:0]
		for _, ts := range stamps {
			if ts.After(cutoff) {
				live = append(live, ts)
			}
		}
		if len(live) == 0 {
			delete(l.seen, id)
			continue
		}
		l.seen[id] = live
	}
	return nil
}
