// Package ratelimit provides an in-process sliding-window request limiter
// for upstream APIs that enforce "N requests per window" quotas.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// Polymarket's documented public quota is 100 requests per 10 seconds; we
// stay a little under it.
const (
	DefaultMaxRequests = 95
	DefaultWindow      = 10 * time.Second
)

// SlidingWindow admits at most max requests in any window-long interval.
// Safe for concurrent use; waiters are admitted in no particular order.
type SlidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time // admission times, oldest first

	now    func() time.Time
	onWait func(time.Duration)
}

// Option configures a SlidingWindow.
type Option func(*SlidingWindow)

// WithWaitObserver registers fn to be called with every suspension length.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(l *SlidingWindow) { l.onWait = fn }
}

// NewSlidingWindow creates a limiter for maxRequests per window. Non-positive
// arguments fall back to the package defaults.
func NewSlidingWindow(maxRequests int, window time.Duration, opts ...Option) *SlidingWindow {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &SlidingWindow{
		max:    maxRequests,
		window: window,
		stamps: make([]time.Time, 0, maxRequests),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until one more request fits in the window, then records it.
func (l *SlidingWindow) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		if l.onWait != nil {
			l.onWait(wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ratelimit: acquire: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// tryAcquire records a request if there is room, otherwise it returns how
// long until the oldest admission leaves the window.
func (l *SlidingWindow) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if len(l.stamps) < l.max {
		l.stamps = append(l.stamps, now)
		return 0, true
	}

	wait := l.stamps[0].Add(l.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// evict drops admissions that are at least one window old.
func (l *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	n := 0
	for n < len(l.stamps) && !l.stamps[n].After(cutoff) {
		n++
	}
	if n > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[n:]...)
	}
}

// InFlight reports how many admissions are currently inside the window.
func (l *SlidingWindow) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.stamps)
}

// Compile-time interface check.
var _ domain.RateLimiter = (*SlidingWindow)(nil)
