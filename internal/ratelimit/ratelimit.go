// Package ratelimit bounds request throughput per caller. Every caller is
// checked against two windows: a short burst window and a longer sustained
// window; a request must pass both to be admitted.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of an admission check. RetryAfter is a retry hint
// and is only set when the request was rejected.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Window is one counting window: at most Limit admissions per Duration.
type Window struct {
	Limit    int
	Duration time.Duration
}

// RateLimiter admits or rejects a request for the given caller key.
// Rejection is a normal client-visible outcome, not an application error.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Close() error
}

// NoopLimiter admits every request (rate limiting disabled).
type NoopLimiter struct{}

func (NoopLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

func (NoopLimiter) Close() error { return nil }
