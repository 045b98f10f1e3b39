package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/marketgraph/internal/notify"
	"github.com/alanyoungcy/marketgraph/internal/pipeline"
	"github.com/alanyoungcy/marketgraph/internal/platform/gemini"
	"github.com/alanyoungcy/marketgraph/internal/service"
	"github.com/alanyoungcy/marketgraph/internal/volatility"
)

// pipelineSet holds the services and pipeline stages built from Dependencies.
type pipelineSet struct {
	markets      *service.MarketService
	relations    *service.RelationService
	discovery    *service.Discovery
	scraper      *pipeline.MarketScraper
	migrator     *pipeline.VolatilityMigrator
	builder      *pipeline.RelationBuilder
	orchestrator *pipeline.Orchestrator
	notifier     *notify.Notifier
}

// buildPipeline constructs services and stages from config. Optional
// dependencies are passed as untyped nil so nil checks downstream hold.
func (a *App) buildPipeline(deps *Dependencies) *pipelineSet {
	cfg := a.cfg
	p := &pipelineSet{notifier: deps.Notifier}

	p.markets = service.NewMarketService(deps.MarketStore, deps.MarketCache, a.logger)
	p.relations = service.NewRelationService(deps.RelationStore, a.logger)
	p.discovery = service.NewDiscovery(
		p.markets,
		deps.EmbeddingStore,
		p.relations,
		service.DiscoveryConfig{
			SimilarityThreshold:  cfg.Relations.SimilarityThreshold,
			CorrelationThreshold: cfg.Relations.CorrelationThreshold,
			CandidateLimit:       cfg.Relations.CandidateLimit,
			BatchSize:            cfg.Relations.BatchSize,
		},
		deps.Metrics,
		a.logger,
	)

	scfg := pipeline.DefaultScraperConfig()
	scfg.PageSize = cfg.Polymarket.PageSize
	scfg.PageDelay = cfg.Polymarket.PageDelay.Duration
	scfg.TimeoutBackoff = cfg.Polymarket.RetryBackoff.Duration
	scfg.RateLimitBackoff = cfg.Polymarket.RateLimitBackoff.Duration
	scfg.MaxPages = cfg.Polymarket.MaxPages
	p.scraper = pipeline.NewMarketScraper(p.markets, deps.Gamma, p.relations, scfg, deps.Metrics, a.logger)

	estimator := volatility.NewEstimator(
		deps.Clob,
		deps.HistoryLimiter,
		volatility.Config{
			Lookback:     cfg.Volatility.Lookback.Duration,
			Fidelity:     cfg.Volatility.Fidelity.Duration,
			RetryBackoff: cfg.Polymarket.RetryBackoff.Duration,
			UseHistory:   cfg.Volatility.UseHistory,
		},
		deps.Metrics,
		a.logger,
	)
	p.migrator = pipeline.NewVolatilityMigrator(
		p.markets,
		estimator,
		deps.VolatilityStore,
		deps.Reports,
		pipeline.MigratorConfig{
			BatchSize:   cfg.Volatility.BatchSize,
			Concurrency: cfg.Volatility.Concurrency,
			Limit:       cfg.Volatility.Limit,
		},
		a.logger,
	)

	p.builder = pipeline.NewRelationBuilder(
		deps.EmbeddingStore,
		p.discovery,
		p.relations,
		deps.RunLock,
		deps.Reports,
		pipeline.BuilderConfig{
			MarketLimit:  cfg.Relations.MarketLimit,
			SampleSize:   cfg.Relations.SampleSize,
			EstimateOnly: cfg.Relations.EstimateOnly,
			LockTTL:      cfg.Relations.LockTTL.Duration,
		},
		a.logger,
	)

	p.orchestrator = pipeline.NewOrchestrator(p.scraper, p.migrator, p.builder, a.logger)
	return p
}

// ScrapeMode ingests markets once, or on schedule.scrape_interval when set.
func (a *App) ScrapeMode(ctx context.Context, p *pipelineSet) error {
	a.logger.InfoContext(ctx, "starting scrape mode")

	if interval := a.cfg.Schedule.ScrapeInterval.Duration; interval > 0 {
		return ignoreCancel(p.scraper.RunLoop(ctx, interval))
	}
	res, err := p.scraper.Run(ctx)
	if err != nil {
		return fmt.Errorf("scrape mode: %w", err)
	}
	a.notify(ctx, p, notify.EventScrapeComplete, "Market scrape complete", scrapeSummary(res))
	return nil
}

// VolatilityMode recomputes volatility for every active market.
func (a *App) VolatilityMode(ctx context.Context, p *pipelineSet) error {
	a.logger.InfoContext(ctx, "starting volatility mode")

	stats, err := p.migrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("volatility mode: %w", err)
	}
	a.notify(ctx, p, notify.EventVolatilityComplete, "Volatility migration complete", volatilitySummary(stats))
	return nil
}

// RelationsMode estimates and, unless relations.estimate_only is set, builds
// relations for every embedded market.
func (a *App) RelationsMode(ctx context.Context, p *pipelineSet) error {
	a.logger.InfoContext(ctx, "starting relations mode",
		slog.Bool("estimate_only", a.cfg.Relations.EstimateOnly),
	)

	rep, err := p.builder.Run(ctx)
	if err != nil {
		return fmt.Errorf("relations mode: %w", err)
	}
	a.notify(ctx, p, notify.EventRelationsComplete, "Relations run complete", relationsSummary(rep))
	return nil
}

// AnalyzeMode asks the assessor about one market pair and logs the EV
// breakdown.
func (a *App) AnalyzeMode(ctx context.Context, p *pipelineSet) error {
	a.logger.InfoContext(ctx, "starting analyze mode")

	assessor, err := gemini.New(ctx, a.cfg.Assessor.APIKey, a.cfg.Assessor.Model, a.logger)
	if err != nil {
		return fmt.Errorf("analyze mode: %w", err)
	}
	svc := service.NewCorrelationService(p.markets, assessor, a.logger)

	res, err := svc.AnalyzePair(ctx, a.cfg.Analyze.MarketA, a.cfg.Analyze.MarketB)
	if err != nil {
		return fmt.Errorf("analyze mode: %w", err)
	}

	a.logger.InfoContext(ctx, "pair analysis",
		slog.String("model", assessor.Model()),
		slog.String("market_a", res.MarketA.Question),
		slog.String("market_b", res.MarketB.Question),
		slog.Float64("correlation", res.Assessment.CorrelationScore),
		slog.String("explanation", res.Assessment.Explanation),
		slog.Float64("investment_score", res.Assessment.InvestmentScore),
		slog.String("investment_rationale", res.Assessment.InvestmentRationale),
		slog.String("risk", string(res.Assessment.RiskLevel)),
		slog.Any("expected_values", res.ExpectedValues()),
		slog.String("best_strategy", res.BestStrategy),
		slog.String("insight", res.Insight),
	)
	a.notify(ctx, p, notify.EventPairAnalysed, "Pair analysis", analysisSummary(res))
	return nil
}

// FullMode runs scrape, volatility and relations once, or on schedule.cron
// when set.
func (a *App) FullMode(ctx context.Context, p *pipelineSet) error {
	a.logger.InfoContext(ctx, "starting full mode")

	if expr := a.cfg.Schedule.Cron; expr != "" {
		return ignoreCancel(p.orchestrator.RunScheduled(ctx, expr, func(ctx context.Context, rep pipeline.FullReport, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			if err != nil {
				a.notify(ctx, p, notify.EventRunFailed, "Scheduled run failed", err.Error())
				return
			}
			a.notifyFull(ctx, p, rep)
		}))
	}
	rep, err := p.orchestrator.RunFull(ctx)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.notifyFull(ctx, p, rep)
	return nil
}

func (a *App) notifyFull(ctx context.Context, p *pipelineSet, rep pipeline.FullReport) {
	a.notify(ctx, p, notify.EventScrapeComplete, "Market scrape complete", scrapeSummary(rep.Scrape))
	a.notify(ctx, p, notify.EventVolatilityComplete, "Volatility migration complete", volatilitySummary(rep.Volatility))
	a.notify(ctx, p, notify.EventRelationsComplete, "Relations run complete", relationsSummary(rep.Relations))
}

// notify delivers a message; delivery failures are logged by the notifier.
func (a *App) notify(ctx context.Context, p *pipelineSet, event, title, message string) {
	_ = p.notifier.Notify(ctx, event, title, message)
}

// ignoreCancel treats cancellation as a clean stop for long-running loops.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
