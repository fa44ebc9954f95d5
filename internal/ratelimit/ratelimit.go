// Package ratelimit throttles tool calls per caller.
//
// The only shipped backend is an in-memory token bucket (MemoryLimiter);
// a shared backend for multi-instance deployments can satisfy the same
// Limiter interface.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// RetryAfter is how long until the next token is available. Zero when
	// the request was allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow consumes one unit for key. The key is opaque; callers build it
	// (e.g. "sub:<subject>" or "ip:<addr>"). Returning an error signals a
	// limiter malfunction, which callers treat as fail-open.
	Allow(ctx context.Context, key string) (Decision, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always permits.
func (NoopLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
