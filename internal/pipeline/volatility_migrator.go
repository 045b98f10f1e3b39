package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// MarketLister pages through active markets.
type MarketLister interface {
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
}

// VolatilityEstimator returns the best available volatility for a market.
type VolatilityEstimator interface {
	Best(ctx context.Context, m domain.Market) domain.VolatilityResult
}

// ReportSink archives run reports and snapshots.
type ReportSink interface {
	WriteReport(ctx context.Context, kind, runID string, at time.Time, report any) (string, error)
	WriteVolatilitySnapshot(ctx context.Context, runID string, at time.Time, records []domain.VolatilityRecord) (string, error)
}

// MigratorConfig controls batching and parallelism of a volatility run.
type MigratorConfig struct {
	BatchSize   int
	Concurrency int
	// Limit caps the number of markets processed; zero means all.
	Limit int
}

// MigrationStats summarises a volatility run.
type MigrationStats struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration_ns"`
	Batches   int            `json:"batches"`
	Processed int            `json:"processed"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	ByMethod  map[string]int `json:"by_method"`
	Snapshot  string         `json:"snapshot,omitempty"`
}

// VolatilityMigrator computes and stores volatility for every active market.
type VolatilityMigrator struct {
	markets   MarketLister
	estimator VolatilityEstimator
	store     domain.VolatilityStore
	sink      ReportSink
	cfg       MigratorConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewVolatilityMigrator creates a VolatilityMigrator. sink may be nil.
func NewVolatilityMigrator(
	markets MarketLister,
	estimator VolatilityEstimator,
	store domain.VolatilityStore,
	sink ReportSink,
	cfg MigratorConfig,
	logger *slog.Logger,
) *VolatilityMigrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &VolatilityMigrator{
		markets:   markets,
		estimator: estimator,
		store:     store,
		sink:      sink,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "volatility_migrator")),
		now:       time.Now,
	}
}

// RecordFor converts an estimator result into the persisted snapshot.
// Proxy scores go to ProxyVolatility, every other method to RealVolatility.
func RecordFor(m domain.Market, res domain.VolatilityResult, at time.Time) domain.VolatilityRecord {
	rec := domain.VolatilityRecord{
		MarketID:     m.ID,
		ExternalID:   m.ExternalID,
		Method:       res.Method,
		CalculatedAt: at.UTC(),
		PriceRange:   map[string]float64{},
	}
	score := res.Score
	if res.Method == domain.MethodProxy {
		rec.ProxyVolatility = &score
	} else {
		rec.RealVolatility = &score
	}
	if n, ok := res.Metadata["data_points"].(int); ok {
		rec.DataPoints = n
	}
	if pr, ok := res.Metadata["price_range"].(map[string]float64); ok {
		rec.PriceRange = pr
	}
	return rec
}

// Run processes active markets batch by batch. Markets inside a batch run
// concurrently up to Concurrency; cancellation is honoured between batches.
func (v *VolatilityMigrator) Run(ctx context.Context) (MigrationStats, error) {
	stats := MigrationStats{
		RunID:     uuid.NewString(),
		StartedAt: v.now().UTC(),
		ByMethod:  make(map[string]int),
	}
	var (
		mu       sync.Mutex
		snapshot []domain.VolatilityRecord
	)

	for offset := 0; ; offset += v.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			stats.Duration = v.now().Sub(stats.StartedAt)
			return stats, fmt.Errorf("volatility migrator: %w", err)
		}
		size := v.cfg.BatchSize
		if v.cfg.Limit > 0 {
			size = min(size, v.cfg.Limit-offset)
			if size <= 0 {
				break
			}
		}

		batch, err := v.markets.ListActive(ctx, domain.ListOpts{Limit: size, Offset: offset})
		if err != nil {
			stats.Duration = v.now().Sub(stats.StartedAt)
			return stats, fmt.Errorf("volatility migrator: list active at %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}
		stats.Batches++

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(v.cfg.Concurrency)
		for _, m := range batch {
			g.Go(func() error {
				res := v.estimator.Best(gctx, m)
				rec := RecordFor(m, res, v.now())
				err := v.store.Upsert(gctx, rec)

				mu.Lock()
				defer mu.Unlock()
				stats.Processed++
				if err != nil {
					stats.Failed++
					v.logger.ErrorContext(ctx, "volatility upsert failed",
						slog.Int64("market_id", m.ID),
						slog.String("error", err.Error()),
					)
					return nil
				}
				stats.Succeeded++
				stats.ByMethod[string(res.Method)]++
				snapshot = append(snapshot, rec)
				return nil
			})
		}
		_ = g.Wait()

		v.logger.InfoContext(ctx, "volatility batch complete",
			slog.Int("batch", stats.Batches),
			slog.Int("markets", len(batch)),
			slog.Int("processed", stats.Processed),
			slog.Int("failed", stats.Failed),
		)
		if len(batch) < size {
			break
		}
	}

	stats.Duration = v.now().Sub(stats.StartedAt)
	v.archive(ctx, &stats, snapshot)

	v.logger.InfoContext(ctx, "volatility migration complete",
		slog.String("run_id", stats.RunID),
		slog.String("succeeded", humanize.Comma(int64(stats.Succeeded))),
		slog.Int("failed", stats.Failed),
		slog.Int("price_history", stats.ByMethod[string(domain.MethodPriceHistory)]),
		slog.Int("price_change_24h", stats.ByMethod[string(domain.MethodPriceChange24h)]),
		slog.Int("price_change_7d", stats.ByMethod[string(domain.MethodPriceChange7d)]),
		slog.Int("price_change_30d", stats.ByMethod[string(domain.MethodPriceChange30d)]),
		slog.Int("proxy", stats.ByMethod[string(domain.MethodProxy)]),
		slog.Duration("took", stats.Duration),
	)
	return stats, nil
}

// archive uploads the snapshot and run report. Failures are logged only.
func (v *VolatilityMigrator) archive(ctx context.Context, stats *MigrationStats, snapshot []domain.VolatilityRecord) {
	if v.sink == nil {
		return
	}
	path, err := v.sink.WriteVolatilitySnapshot(ctx, stats.RunID, stats.StartedAt, snapshot)
	if err != nil {
		v.logger.WarnContext(ctx, "volatility snapshot upload failed", slog.String("error", err.Error()))
	} else {
		stats.Snapshot = path
	}
	if _, err := v.sink.WriteReport(ctx, "volatility", stats.RunID, stats.StartedAt, stats); err != nil {
		v.logger.WarnContext(ctx, "volatility report upload failed", slog.String("error", err.Error()))
	}
}
