// Package ratelimit bounds how many requests a caller may make per window.
package ratelimit

import (
	"context"
	"math"
	"time"
)

const (
	defaultEvents = 120
	defaultWindow = 10 * time.Second
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up for the Retry-After header (minimum 1).
func (d Decision) RetryAfterSeconds() int {
	s := int(math.Ceil(d.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Limiter admits or rejects one event for key at now.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}

// Config is the per-key budget: Events per Window.
type Config struct {
	Events int
	Window time.Duration
}

func (c Config) normalized() Config {
	if c.Events <= 0 {
		c.Events = defaultEvents
	}
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	return c
}
