package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// FullReport collects the results of a full pipeline pass.
type FullReport struct {
	Scrape     ScrapeResult
	Volatility MigrationStats
	Relations  RelationReport
	Duration   time.Duration
}

// Orchestrator runs scrape, volatility and relations stages in order.
type Orchestrator struct {
	scraper  *MarketScraper
	migrator *VolatilityMigrator
	builder  *RelationBuilder
	logger   *slog.Logger
}

// NewOrchestrator creates a new Orchestrator over the three stages.
func NewOrchestrator(
	scraper *MarketScraper,
	migrator *VolatilityMigrator,
	builder *RelationBuilder,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		scraper:  scraper,
		migrator: migrator,
		builder:  builder,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// RunFull executes scrape → volatility → relations. A stage error stops the
// pass; results of completed stages are still returned.
func (o *Orchestrator) RunFull(ctx context.Context) (FullReport, error) {
	start := time.Now()
	var rep FullReport
	o.logger.InfoContext(ctx, "full pipeline starting")

	scrape, err := o.scraper.Run(ctx)
	rep.Scrape = scrape
	if err != nil {
		rep.Duration = time.Since(start)
		return rep, fmt.Errorf("scrape stage: %w", err)
	}

	vol, err := o.migrator.Run(ctx)
	rep.Volatility = vol
	if err != nil {
		rep.Duration = time.Since(start)
		return rep, fmt.Errorf("volatility stage: %w", err)
	}

	rel, err := o.builder.Run(ctx)
	rep.Relations = rel
	rep.Duration = time.Since(start)
	if err != nil {
		return rep, fmt.Errorf("relations stage: %w", err)
	}

	o.logger.InfoContext(ctx, "full pipeline complete",
		slog.Int("markets_synced", scrape.Synced),
		slog.Int("volatility_processed", vol.Processed),
		slog.Int("relations_created", rel.Created),
		slog.Duration("took", rep.Duration),
	)
	return rep, nil
}

// RunScheduled repeats RunFull on cronExpr until ctx is cancelled. onRun, if
// set, receives every pass's report and error.
func (o *Orchestrator) RunScheduled(ctx context.Context, cronExpr string, onRun func(context.Context, FullReport, error)) error {
	return RunCron(ctx, cronExpr, o.logger, func(ctx context.Context) error {
		rep, err := o.RunFull(ctx)
		if onRun != nil {
			onRun(ctx, rep, err)
		}
		return err
	})
}
