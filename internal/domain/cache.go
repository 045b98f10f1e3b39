package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market metadata lookups.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id int64) (Market, error)
	Invalidate(ctx context.Context, id int64) error
}

// RateLimiter admits one request per Acquire call, blocking until the
// request fits inside the limiter's window or ctx is done.
type RateLimiter interface {
	Acquire(ctx context.Context) error
}

// WindowLimiter is a keyed, shared sliding-window limiter.
type WindowLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

// RunLock guards a job against concurrent runs across processes.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
