package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RateLimiter implements domain.WindowLimiter using a sliding-window approach
// backed by Redis sorted sets and an atomic Lua script. It lets several
// processes share one upstream quota.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:           c.rdb,
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Allow records a request for key if fewer than limit were admitted in the
// trailing window. When it refuses, it also returns how long until the
// oldest admission leaves the window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := time.Now().UnixMicro()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rateLimitKey(key)},
		now,
		window.Microseconds(),
		limit,
		member,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, 0, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}

	if result[0] == 1 {
		return true, 0, nil
	}
	return false, time.Duration(result[1]) * time.Microsecond, nil
}

// Gate binds a key and quota into a domain.RateLimiter.
func (rl *RateLimiter) Gate(key string, limit int, window time.Duration) *Gate {
	return NewGate(rl, key, limit, window)
}

// Gate blocks callers until the shared window for its key admits them.
type Gate struct {
	limiter domain.WindowLimiter
	key     string
	limit   int
	window  time.Duration
}

// NewGate wraps any WindowLimiter.
func NewGate(l domain.WindowLimiter, key string, limit int, window time.Duration) *Gate {
	return &Gate{limiter: l, key: key, limit: limit, window: window}
}

// Acquire waits for admission, sleeping for the retry hint between tries.
func (g *Gate) Acquire(ctx context.Context) error {
	for {
		ok, retry, err := g.limiter.Allow(ctx, g.key, g.limit, g.window)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if retry <= 0 {
			retry = 10 * time.Millisecond
		}

		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", g.key, ctx.Err())
		case <-timer.C:
		}
	}
}

// Compile-time interface checks.
var (
	_ domain.WindowLimiter = (*RateLimiter)(nil)
	_ domain.RateLimiter   = (*Gate)(nil)
)
