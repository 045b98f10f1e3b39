package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/marketgraph/internal/domain"
	"github.com/alanyoungcy/marketgraph/internal/metrics"
	"github.com/alanyoungcy/marketgraph/internal/platform/polymarket"
)

// MarketSyncer persists a batch of markets to the store.
type MarketSyncer interface {
	SyncMarkets(ctx context.Context, markets []domain.Market) ([]int64, error)
}

// EventFetcher retrieves events from the Gamma API.
type EventFetcher interface {
	GetEvents(ctx context.Context, limit, offset int) ([]polymarket.APIEvent, error)
}

// RelationRetirer drops the relations of markets that are no longer active.
type RelationRetirer interface {
	DeleteAllFor(ctx context.Context, marketID int64) (int64, error)
}

// ScraperConfig controls pagination and backoff.
type ScraperConfig struct {
	PageSize         int
	BatchSize        int
	PageDelay        time.Duration
	TimeoutBackoff   time.Duration
	RateLimitBackoff time.Duration
	// MaxRateLimitWaits bounds consecutive 429 responses on one page.
	MaxRateLimitWaits int
	// MaxPages stops pagination early; zero means no limit.
	MaxPages int
}

// DefaultScraperConfig mirrors Gamma's published pacing guidance.
func DefaultScraperConfig() ScraperConfig {
	return ScraperConfig{
		PageSize:          100,
		BatchSize:         50,
		PageDelay:         500 * time.Millisecond,
		TimeoutBackoff:    5 * time.Second,
		RateLimitBackoff:  10 * time.Second,
		MaxRateLimitWaits: 6,
	}
}

// ScrapeResult summarises one scrape run.
type ScrapeResult struct {
	Pages    int
	Events   int
	Markets  int
	Skipped  int
	Synced   int
	Failed   int
	Retired  int64
	Duration time.Duration
	// StopReason is set when pagination ended on an error instead of an
	// empty or short page.
	StopReason string
}

// MarketScraper paginates Gamma events and syncs their markets to the store.
type MarketScraper struct {
	syncer  MarketSyncer
	fetcher EventFetcher
	retirer RelationRetirer
	pace    *rate.Limiter
	cfg     ScraperConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewMarketScraper creates a new MarketScraper. retirer and m may be nil.
func NewMarketScraper(
	syncer MarketSyncer,
	fetcher EventFetcher,
	retirer RelationRetirer,
	cfg ScraperConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *MarketScraper {
	def := DefaultScraperConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	limit := rate.Inf
	if cfg.PageDelay > 0 {
		limit = rate.Every(cfg.PageDelay)
	}
	return &MarketScraper{
		syncer:  syncer,
		fetcher: fetcher,
		retirer: retirer,
		pace:    rate.NewLimiter(limit, 1),
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(slog.String("component", "market_scraper")),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fetchPage applies the page retry policy: a timeout is retried once after
// TimeoutBackoff, a 429 waits RateLimitBackoff and tries the page again.
func (s *MarketScraper) fetchPage(ctx context.Context, offset int) ([]polymarket.APIEvent, error) {
	timeoutRetried := false
	rateLimited := 0
	for {
		if err := s.pace.Wait(ctx); err != nil {
			return nil, err
		}
		events, err := s.fetcher.GetEvents(ctx, s.cfg.PageSize, offset)
		switch {
		case err == nil:
			return events, nil
		case errors.Is(err, domain.ErrUpstreamTimeout) && !timeoutRetried:
			timeoutRetried = true
			s.logger.WarnContext(ctx, "events page timed out, retrying",
				slog.Int("offset", offset),
				slog.Duration("backoff", s.cfg.TimeoutBackoff),
			)
			if err := s.sleep(ctx, s.cfg.TimeoutBackoff); err != nil {
				return nil, err
			}
		case errors.Is(err, domain.ErrRateLimited) && rateLimited < s.cfg.MaxRateLimitWaits:
			rateLimited++
			s.logger.WarnContext(ctx, "events page rate limited, waiting",
				slog.Int("offset", offset),
				slog.Duration("backoff", s.cfg.RateLimitBackoff),
			)
			if err := s.sleep(ctx, s.cfg.RateLimitBackoff); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
}

// Run executes one scrape: it paginates until an empty or short page, or
// until a page cannot be fetched. Markets fetched before a failure are kept.
func (s *MarketScraper) Run(ctx context.Context) (ScrapeResult, error) {
	start := time.Now()
	var res ScrapeResult
	seen := make(map[string]struct{})
	var pending []domain.Market

	flush := func() {
		for len(pending) > 0 {
			n := min(s.cfg.BatchSize, len(pending))
			s.syncBatch(ctx, pending[:n], &res)
			pending = pending[n:]
		}
	}

	for offset := 0; ; offset += s.cfg.PageSize {
		if err := ctx.Err(); err != nil {
			flush()
			res.Duration = time.Since(start)
			return res, fmt.Errorf("market scraper: %w", err)
		}
		if s.cfg.MaxPages > 0 && res.Pages >= s.cfg.MaxPages {
			break
		}

		events, err := s.fetchPage(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				flush()
				res.Duration = time.Since(start)
				return res, fmt.Errorf("market scraper: %w", ctx.Err())
			}
			res.StopReason = err.Error()
			s.logger.ErrorContext(ctx, "stopping pagination",
				slog.Int("offset", offset),
				slog.String("error", err.Error()),
			)
			break
		}
		if len(events) == 0 {
			break
		}
		res.Pages++
		res.Events += len(events)

		markets, skipped := polymarket.FlattenEvents(events)
		res.Skipped += skipped
		for _, m := range markets {
			if _, dup := seen[m.ExternalID]; dup {
				continue
			}
			seen[m.ExternalID] = struct{}{}
			pending = append(pending, m)
			res.Markets++
		}
		for len(pending) >= s.cfg.BatchSize {
			s.syncBatch(ctx, pending[:s.cfg.BatchSize], &res)
			pending = pending[s.cfg.BatchSize:]
		}

		if len(events) < s.cfg.PageSize {
			break
		}
	}
	flush()

	res.Duration = time.Since(start)
	s.metrics.RecordScraped(res.Synced)
	s.metrics.RecordBatch("scrape", res.Duration)
	s.logger.InfoContext(ctx, "market scrape complete",
		slog.Int("pages", res.Pages),
		slog.String("events", humanize.Comma(int64(res.Events))),
		slog.String("synced", humanize.Comma(int64(res.Synced))),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
		slog.Int64("relations_retired", res.Retired),
		slog.Duration("took", res.Duration),
	)
	return res, nil
}

func (s *MarketScraper) syncBatch(ctx context.Context, batch []domain.Market, res *ScrapeResult) {
	ids, err := s.syncer.SyncMarkets(ctx, batch)
	if err != nil {
		res.Failed += len(batch)
		s.logger.ErrorContext(ctx, "market batch sync failed",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()),
		)
		return
	}
	res.Synced += len(ids)

	if s.retirer == nil {
		return
	}
	for i, id := range ids {
		if i >= len(batch) || batch[i].IsActive {
			continue
		}
		n, err := s.retirer.DeleteAllFor(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "retiring relations failed",
				slog.Int64("market_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Retired += n
	}
}

// RunLoop runs the market scraper on a repeating interval until the context is
// cancelled.
func (s *MarketScraper) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if _, err := s.Run(ctx); err != nil {
		s.logger.Error("market scrape failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("market scraper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.Error("market scrape failed", slog.String("error", err.Error()))
			}
		}
	}
}
