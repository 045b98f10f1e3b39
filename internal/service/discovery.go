package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/alanyoungcy/marketgraph/internal/analysis"
	"github.com/alanyoungcy/marketgraph/internal/domain"
	"github.com/alanyoungcy/marketgraph/internal/metrics"
)

// DiscoveryConfig holds the thresholds applied to similarity candidates.
type DiscoveryConfig struct {
	SimilarityThreshold  float64
	CorrelationThreshold float64
	CandidateLimit       int
	BatchSize            int
}

// DefaultDiscoveryConfig returns the thresholds used by the relations job.
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		SimilarityThreshold:  0.7,
		CorrelationThreshold: 0.0,
		CandidateLimit:       100,
		BatchSize:            50,
	}
}

// DiscoveryResult counts the outcome of discovering relations for markets.
// Skipped covers existing relations and candidates under the correlation
// threshold; Failed covers relations whose upsert failed.
type DiscoveryResult struct {
	Created int
	Skipped int
	Failed  int
}

func (r *DiscoveryResult) add(o DiscoveryResult) {
	r.Created += o.Created
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// BatchProgress is reported after each batch of a DiscoverAll run.
type BatchProgress struct {
	Batch    int
	Batches  int
	Markets  int
	Result   DiscoveryResult
	Totals   DiscoveryResult
	Duration time.Duration
}

// RunTotals summarises a DiscoverAll run.
type RunTotals struct {
	DiscoveryResult
	Markets      int
	MarketErrors int
	Batches      []BatchProgress
}

// Estimate is the projected outcome of a full discovery run.
type Estimate struct {
	EstimatedTotal     int64
	SampledMarkets     int
	TotalMarkets       int
	RelationsPerMarket float64
	SampleRelations    int
	IsSampled          bool
}

// marketGetter is satisfied by MarketService.
type marketGetter interface {
	GetMarket(ctx context.Context, id int64) (domain.Market, error)
}

// Discovery turns similarity candidates into persisted relations.
type Discovery struct {
	markets   marketGetter
	similar   domain.SimilarityIndex
	relations *RelationService
	cfg       DiscoveryConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewDiscovery creates a Discovery. m may be nil.
func NewDiscovery(
	markets marketGetter,
	similar domain.SimilarityIndex,
	relations *RelationService,
	cfg DiscoveryConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Discovery {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultDiscoveryConfig().BatchSize
	}
	return &Discovery{
		markets:   markets,
		similar:   similar,
		relations: relations,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With(slog.String("component", "relation_discovery")),
	}
}

// Config returns the thresholds in use.
func (d *Discovery) Config() DiscoveryConfig { return d.cfg }

// plan computes the relations marketID would gain. Pairs already stored or
// present in pending are skipped. A missing market plans nothing.
func (d *Discovery) plan(ctx context.Context, marketID int64, pending map[domain.PairKey]struct{}) ([]domain.MarketRelation, int, error) {
	market, err := d.markets.GetMarket(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("discovery: load market %d: %w", marketID, err)
	}

	candidates, err := d.similar.FindSimilar(ctx, marketID, d.cfg.CandidateLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("discovery: similar to %d: %w", marketID, err)
	}
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	existing, err := d.relations.GetRelated(ctx, marketID, 0, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("discovery: existing relations for %d: %w", marketID, err)
	}
	known := make(map[int64]struct{}, len(existing))
	for _, r := range existing {
		known[r.MarketID] = struct{}{}
	}

	var (
		planned []domain.MarketRelation
		skipped int
	)
	for _, c := range candidates {
		if c.Similarity < d.cfg.SimilarityThreshold || c.MarketID == marketID {
			continue
		}
		if _, ok := known[c.MarketID]; ok {
			skipped++
			continue
		}
		if _, ok := pending[domain.CanonicalPair(marketID, c.MarketID)]; ok {
			skipped++
			continue
		}

		other, err := d.markets.GetMarket(ctx, c.MarketID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, 0, fmt.Errorf("discovery: load candidate %d: %w", c.MarketID, err)
		}

		corr := analysis.Correlation(market, other)
		if corr < d.cfg.CorrelationThreshold {
			skipped++
			continue
		}
		pressure := analysis.Pressure(c.Similarity, corr, market.Volume, other.Volume)
		planned = append(planned, domain.NewMarketRelation(marketID, c.MarketID, c.Similarity, corr, pressure))
	}
	return planned, skipped, nil
}

// DiscoverForMarket creates the missing relations for one market. Existing
// relations are never recomputed.
func (d *Discovery) DiscoverForMarket(ctx context.Context, marketID int64) (DiscoveryResult, error) {
	planned, skipped, err := d.plan(ctx, marketID, nil)
	if err != nil {
		return DiscoveryResult{}, err
	}
	res := DiscoveryResult{Skipped: skipped}
	if len(planned) > 0 {
		br := d.relations.CreateBatch(ctx, planned)
		res.Created = br.Created
		res.Failed = br.Failed
	}
	d.metrics.RecordDiscovery(res.Created, res.Skipped, res.Failed)
	return res, nil
}

// DiscoverAll runs DiscoverForMarket over ids in batches. Cancellation is
// honoured between batches; the totals so far are returned with ctx's error.
// A market whose discovery errors is logged and counted, never fatal.
func (d *Discovery) DiscoverAll(ctx context.Context, ids []int64, progress func(BatchProgress)) (RunTotals, error) {
	var totals RunTotals
	size := d.cfg.BatchSize
	batches := (len(ids) + size - 1) / size

	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return totals, err
		}
		start := time.Now()
		chunk := ids[b*size : min((b+1)*size, len(ids))]

		var batchRes DiscoveryResult
		for _, id := range chunk {
			res, err := d.DiscoverForMarket(ctx, id)
			if err != nil {
				totals.MarketErrors++
				d.logger.WarnContext(ctx, "market discovery failed",
					slog.Int64("market_id", id),
					slog.String("error", err.Error()),
				)
				continue
			}
			batchRes.add(res)
		}
		totals.add(batchRes)
		totals.Markets += len(chunk)

		p := BatchProgress{
			Batch:    b + 1,
			Batches:  batches,
			Markets:  len(chunk),
			Result:   batchRes,
			Totals:   totals.DiscoveryResult,
			Duration: time.Since(start),
		}
		totals.Batches = append(totals.Batches, p)
		d.metrics.RecordBatch("relations", p.Duration)
		if progress != nil {
			progress(p)
		}
	}
	return totals, nil
}

// SampleSizeFor returns the default estimation sample for n markets:
// a tenth of them, kept between 10 and 100.
func SampleSizeFor(n int) int {
	return min(100, max(10, n/10))
}

// EstimateRelations projects how many relations a full run over ids would
// create without persisting anything. Markets are sampled uniformly without
// replacement when sampleSize < len(ids); a non-positive sampleSize applies
// SampleSizeFor. rng may be nil.
func (d *Discovery) EstimateRelations(ctx context.Context, ids []int64, sampleSize int, rng *rand.Rand) (Estimate, error) {
	total := len(ids)
	if sampleSize <= 0 {
		sampleSize = SampleSizeFor(total)
	}

	est := Estimate{TotalMarkets: total}
	sample := ids
	if sampleSize < total {
		est.IsSampled = true
		perm := rand.Perm(total)
		if rng != nil {
			perm = rng.Perm(total)
		}
		sample = make([]int64, sampleSize)
		for i := range sample {
			sample[i] = ids[perm[i]]
		}
	}

	// Pairs planned earlier in this pass count as existing, matching what a
	// sequential full run would see.
	pending := make(map[domain.PairKey]struct{})
	for _, id := range sample {
		if err := ctx.Err(); err != nil {
			return Estimate{}, err
		}
		planned, _, err := d.plan(ctx, id, pending)
		if err != nil {
			d.logger.DebugContext(ctx, "estimate skipped market",
				slog.Int64("market_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, r := range planned {
			pending[r.Key()] = struct{}{}
		}
		est.SampleRelations += len(planned)
		est.SampledMarkets++
	}

	if est.SampledMarkets > 0 {
		est.RelationsPerMarket = float64(est.SampleRelations) / float64(est.SampledMarkets)
		if est.IsSampled {
			est.EstimatedTotal = int64(est.SampleRelations) * int64(total) / int64(est.SampledMarkets)
		} else {
			est.EstimatedTotal = int64(est.SampleRelations)
		}
	}
	return est, nil
}
