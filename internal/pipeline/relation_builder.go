package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/alanyoungcy/marketgraph/internal/domain"
	"github.com/alanyoungcy/marketgraph/internal/service"
)

// relationsLockKey serialises relation runs across processes.
const relationsLockKey = "relations"

// EmbeddedLister lists markets that have an embedding.
type EmbeddedLister interface {
	ListEmbeddedMarketIDs(ctx context.Context, limit int) ([]int64, error)
}

// RelationCounter reports the stored relation count.
type RelationCounter interface {
	Count(ctx context.Context, marketID *int64) (int64, error)
}

// BuilderConfig controls a relations run.
type BuilderConfig struct {
	// MarketLimit caps how many embedded markets are considered; zero means all.
	MarketLimit int
	// SampleSize for the estimate; zero applies service.SampleSizeFor.
	SampleSize   int
	EstimateOnly bool
	LockTTL      time.Duration
}

// RelationReport is the archived record of a relations run.
type RelationReport struct {
	RunID                string                  `json:"run_id"`
	StartedAt            time.Time               `json:"started_at"`
	Duration             time.Duration           `json:"duration_ns"`
	SimilarityThreshold  float64                 `json:"similarity_threshold"`
	CorrelationThreshold float64                 `json:"correlation_threshold"`
	Markets              int                     `json:"markets"`
	Estimate             service.Estimate        `json:"estimate"`
	EstimateOnly         bool                    `json:"estimate_only"`
	Created              int                     `json:"created"`
	Skipped              int                     `json:"skipped"`
	Failed               int                     `json:"failed"`
	MarketErrors         int                     `json:"market_errors"`
	Batches              []service.BatchProgress `json:"batches,omitempty"`
	StoredRelations      int64                   `json:"stored_relations"`
	Cancelled            bool                    `json:"cancelled"`
}

// RelationBuilder estimates and then runs relation discovery over every
// embedded market.
type RelationBuilder struct {
	lister    EmbeddedLister
	discovery *service.Discovery
	counter   RelationCounter
	lock      domain.RunLock
	sink      ReportSink
	cfg       BuilderConfig
	logger    *slog.Logger
}

// NewRelationBuilder creates a RelationBuilder. lock, counter and sink may be nil.
func NewRelationBuilder(
	lister EmbeddedLister,
	discovery *service.Discovery,
	counter RelationCounter,
	lock domain.RunLock,
	sink ReportSink,
	cfg BuilderConfig,
	logger *slog.Logger,
) *RelationBuilder {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Hour
	}
	return &RelationBuilder{
		lister:    lister,
		discovery: discovery,
		counter:   counter,
		lock:      lock,
		sink:      sink,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "relation_builder")),
	}
}

// Run acquires the run lock, estimates the relation volume and, unless
// EstimateOnly is set, creates relations for all embedded markets.
func (b *RelationBuilder) Run(ctx context.Context) (RelationReport, error) {
	dcfg := b.discovery.Config()
	report := RelationReport{
		RunID:                uuid.NewString(),
		StartedAt:            time.Now().UTC(),
		SimilarityThreshold:  dcfg.SimilarityThreshold,
		CorrelationThreshold: dcfg.CorrelationThreshold,
		EstimateOnly:         b.cfg.EstimateOnly,
	}

	if b.lock != nil {
		release, err := b.lock.Acquire(ctx, relationsLockKey, b.cfg.LockTTL)
		if err != nil {
			return report, fmt.Errorf("relation builder: %w", err)
		}
		defer release()
	}

	ids, err := b.lister.ListEmbeddedMarketIDs(ctx, b.cfg.MarketLimit)
	if err != nil {
		return report, fmt.Errorf("relation builder: list embedded markets: %w", err)
	}
	report.Markets = len(ids)
	if len(ids) == 0 {
		b.logger.WarnContext(ctx, "no embedded markets, nothing to do")
		return report, nil
	}

	est, err := b.discovery.EstimateRelations(ctx, ids, b.cfg.SampleSize, nil)
	if err != nil {
		return report, fmt.Errorf("relation builder: estimate: %w", err)
	}
	report.Estimate = est
	b.logger.InfoContext(ctx, "relation estimate",
		slog.String("markets", humanize.Comma(int64(est.TotalMarkets))),
		slog.Int("sampled", est.SampledMarkets),
		slog.Bool("is_sampled", est.IsSampled),
		slog.Float64("per_market", est.RelationsPerMarket),
		slog.String("estimated_total", humanize.Comma(est.EstimatedTotal)),
	)

	if !b.cfg.EstimateOnly {
		totals, err := b.discovery.DiscoverAll(ctx, ids, func(p service.BatchProgress) {
			b.logger.InfoContext(ctx, "relation batch complete",
				slog.String("batch", fmt.Sprintf("%d/%d", p.Batch, p.Batches)),
				slog.Int("created", p.Result.Created),
				slog.Int("skipped", p.Result.Skipped),
				slog.Int("failed", p.Result.Failed),
				slog.String("total_created", humanize.Comma(int64(p.Totals.Created))),
				slog.Duration("took", p.Duration),
			)
		})
		report.Created = totals.Created
		report.Skipped = totals.Skipped
		report.Failed = totals.Failed
		report.MarketErrors = totals.MarketErrors
		report.Batches = totals.Batches
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return report, fmt.Errorf("relation builder: %w", err)
			}
			report.Cancelled = true
		}
	}

	if b.counter != nil && !report.Cancelled {
		if n, err := b.counter.Count(ctx, nil); err == nil {
			report.StoredRelations = n
		}
	}
	report.Duration = time.Since(report.StartedAt)

	b.logger.InfoContext(ctx, "relations run complete",
		slog.String("run_id", report.RunID),
		slog.String("created", humanize.Comma(int64(report.Created))),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("market_errors", report.MarketErrors),
		slog.Bool("cancelled", report.Cancelled),
		slog.Duration("took", report.Duration),
	)

	if b.sink != nil {
		// Upload even after cancellation so partial runs are on record.
		uploadCtx := context.WithoutCancel(ctx)
		if path, err := b.sink.WriteReport(uploadCtx, "relations", report.RunID, report.StartedAt, report); err != nil {
			b.logger.WarnContext(ctx, "relations report upload failed", slog.String("error", err.Error()))
		} else {
			b.logger.InfoContext(ctx, "relations report archived", slog.String("path", path))
		}
	}

	if report.Cancelled {
		return report, fmt.Errorf("relation builder: %w", context.Cause(ctx))
	}
	return report, nil
}
