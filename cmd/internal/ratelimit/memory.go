package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps a sliding window of event times per key.
// It is process-local; use RedisLimiter when several instances share traffic.
type MemoryLimiter struct {
	cfg Config

	mu      sync.Mutex
	windows map[string][]time.Time
	sweeps  int
}

// NewMemoryLimiter constructs a MemoryLimiter, replacing invalid settings with defaults.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg.normalized(),
		windows: make(map[string][]time.Time),
	}
}

// Allow records an event for key when the window has room.
func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cut := now.Add(-l.cfg.Window)
	events := prune(l.windows[key], cut)

	if len(events) >= l.cfg.Events {
		l.windows[key] = events
		return Decision{Allowed: false, RetryAfter: events[0].Sub(cut)}, nil
	}

	l.windows[key] = append(events, now)

	// Drop idle keys now and then so the map does not grow without bound.
	l.sweeps++
	if l.sweeps >= 1024 {
		l.sweeps = 0
		for k, ev := range l.windows {
			if len(prune(ev, cut)) == 0 {
				delete(l.windows, k)
			}
		}
	}

	return Decision{Allowed: true}, nil
}

func prune(events []time.Time, cut time.Time) []time.Time {
	dst := events[:0]
	for _, t := range events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	return dst
}
