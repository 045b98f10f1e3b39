// Package volatility scores how much a market's price moves, falling back
// from realized price history to published price changes to a heuristic
// proxy when better data is missing.
package volatility

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketgraph/internal/domain"
	"github.com/alanyoungcy/marketgraph/internal/metrics"
)

// HistoryProvider fetches a market's price series between start and end,
// sampled every fidelity.
type HistoryProvider interface {
	PriceHistory(ctx context.Context, token string, start, end time.Time, fidelity time.Duration) ([]domain.PricePoint, error)
}

// Config tunes the historical-series method.
type Config struct {
	Lookback     time.Duration
	Fidelity     time.Duration
	RetryBackoff time.Duration
	UseHistory   bool
}

// DefaultConfig returns hourly samples over the trailing 24 hours with a 5s
// retry backoff.
func DefaultConfig() Config {
	return Config{
		Lookback:     24 * time.Hour,
		Fidelity:     time.Hour,
		RetryBackoff: 5 * time.Second,
		UseHistory:   true,
	}
}

// Method is one link of the fallback chain. A result with OK=false means
// "try the next method".
type Method func(ctx context.Context, m domain.Market) domain.VolatilityResult

// Estimator runs the volatility fallback chain.
type Estimator struct {
	history HistoryProvider
	limiter domain.RateLimiter
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewEstimator creates an Estimator. history and limiter may be nil, in
// which case the historical-series method is skipped.
func NewEstimator(history HistoryProvider, limiter domain.RateLimiter, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Estimator {
	def := DefaultConfig()
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.Fidelity <= 0 {
		cfg.Fidelity = def.Fidelity
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	return &Estimator{
		history: history,
		limiter: limiter,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(slog.String("component", "volatility_estimator")),
		now:     time.Now,
	}
}

// Chain returns the methods Best tries, in order.
func (e *Estimator) Chain() []Method {
	chain := make([]Method, 0, 3)
	if e.cfg.UseHistory && e.history != nil {
		chain = append(chain, e.FromHistory)
	}
	return append(chain, e.fromPriceChanges, e.proxy)
}

// Best returns the first successful result of the chain. It never fails:
// the proxy method always produces a score.
func (e *Estimator) Best(ctx context.Context, m domain.Market) domain.VolatilityResult {
	for _, method := range e.Chain() {
		res := method(ctx, m)
		res.MarketID = m.ID
		if res.OK {
			e.metrics.RecordVolatility(string(res.Method))
			return res
		}
		e.logger.Debug("volatility method declined",
			slog.Int64("market_id", m.ID),
			slog.String("reason", string(res.Method)),
		)
	}

	res := e.proxy(ctx, m)
	res.MarketID = m.ID
	e.metrics.RecordVolatility(string(res.Method))
	return res
}

// FromHistory computes realized volatility from the trailing price history.
func (e *Estimator) FromHistory(ctx context.Context, m domain.Market) domain.VolatilityResult {
	if e.history == nil {
		return tryNext(domain.MethodError)
	}
	token := m.HistoryToken()
	if token == "" {
		return tryNext(domain.MethodNotFound)
	}

	points, err := e.fetchHistory(ctx, token)
	if err != nil {
		reason := classify(err)
		e.metrics.RecordHistoryRequest(string(reason))
		if reason == domain.MethodError || reason == domain.MethodHTTPError {
			e.logger.Warn("price history fetch failed",
				slog.Int64("market_id", m.ID),
				slog.String("token", token),
				slog.String("error", err.Error()),
			)
		}
		return tryNext(reason)
	}
	e.metrics.RecordHistoryRequest("ok")

	res := FromPriceSeries(points)
	res.MarketID = m.ID
	return res
}

// fetchHistory issues the rate-limited request, retrying once after
// RetryBackoff when the failure is transient.
func (e *Estimator) fetchHistory(ctx context.Context, token string) ([]domain.PricePoint, error) {
	points, err := e.fetchOnce(ctx, token)
	if err == nil || !transient(err) || ctx.Err() != nil {
		return points, err
	}

	e.logger.Debug("retrying price history fetch",
		slog.String("token", token),
		slog.Duration("backoff", e.cfg.RetryBackoff),
		slog.String("error", err.Error()),
	)
	timer := time.NewTimer(e.cfg.RetryBackoff)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	case <-timer.C:
	}
	return e.fetchOnce(ctx, token)
}

func (e *Estimator) fetchOnce(ctx context.Context, token string) ([]domain.PricePoint, error) {
	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}
	end := e.now()
	return e.history.PriceHistory(ctx, token, end.Add(-e.cfg.Lookback), end, e.cfg.Fidelity)
}

func (e *Estimator) fromPriceChanges(_ context.Context, m domain.Market) domain.VolatilityResult {
	return FromPriceChanges(m)
}

func (e *Estimator) proxy(_ context.Context, m domain.Market) domain.VolatilityResult {
	return Proxy(m, e.now())
}

func transient(err error) bool {
	return errors.Is(err, domain.ErrUpstreamTimeout) ||
		errors.Is(err, domain.ErrUpstreamUnavailable) ||
		errors.Is(err, domain.ErrRateLimited)
}

func classify(err error) domain.VolatilityMethod {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.MethodNotFound
	case errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrUpstreamUnavailable),
		errors.Is(err, domain.ErrUpstreamStatus):
		return domain.MethodHTTPError
	default:
		return domain.MethodError
	}
}
