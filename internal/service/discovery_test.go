package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

func mk(id int64, price, volume float64) domain.Market {
	return domain.Market{
		ID:            id,
		Question:      "market",
		OutcomePrices: []float64{price, 1 - price},
		Volume:        volume,
		IsActive:      true,
	}
}

func newTestDiscovery(markets *fakeMarketStore, idx *fakeIndex, rels *fakeRelationStore, cfg DiscoveryConfig) *Discovery {
	logger := slog.New(slog.DiscardHandler)
	return NewDiscovery(
		NewMarketService(markets, nil, logger),
		idx,
		NewRelationService(rels, logger),
		cfg,
		nil,
		logger,
	)
}

func discoveryFixture() (*fakeMarketStore, *fakeIndex) {
	markets := newFakeMarketStore(mk(1, 0.6, 1000), mk(2, 0.55, 5000), mk(3, 0.1, 10), mk(4, 0.62, 0))
	idx := &fakeIndex{neighbours: map[int64][]domain.SimilarMarket{
		1: {
			{MarketID: 1, Similarity: 1.0},
			{MarketID: 2, Similarity: 0.9},
			{MarketID: 99, Similarity: 0.85},
			{MarketID: 3, Similarity: 0.8},
			{MarketID: 4, Similarity: 0.65},
		},
	}}
	return markets, idx
}

func TestDiscoverForMarket(t *testing.T) {
	markets, idx := discoveryFixture()
	rels := newFakeRelationStore()
	cfg := DiscoveryConfig{SimilarityThreshold: 0.7, CorrelationThreshold: 0.6, CandidateLimit: 100}
	d := newTestDiscovery(markets, idx, rels, cfg)

	res, err := d.DiscoverForMarket(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, DiscoveryResult{Created: 1, Skipped: 1}, res)

	rel, ok := rels.rows[domain.CanonicalPair(1, 2)]
	require.True(t, ok)
	assert.InDelta(t, 0.9, rel.Similarity, 1e-12)
	assert.InDelta(t, 0.95, rel.Correlation, 1e-9)
	assert.Greater(t, rel.Pressure, 0.0)
	assert.LessOrEqual(t, rel.Pressure, 1.0)

	// Existing relations are skipped, never recomputed.
	upserts := rels.upserts
	res, err = d.DiscoverForMarket(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, DiscoveryResult{Skipped: 2}, res)
	assert.Equal(t, upserts, rels.upserts)
}

func TestDiscoverForMissingMarket(t *testing.T) {
	markets, idx := discoveryFixture()
	d := newTestDiscovery(markets, idx, newFakeRelationStore(), DefaultDiscoveryConfig())

	res, err := d.DiscoverForMarket(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, DiscoveryResult{}, res)
}

func TestDiscoverCountsFailedUpserts(t *testing.T) {
	markets, idx := discoveryFixture()
	rels := newFakeRelationStore()
	rels.failFor[domain.CanonicalPair(1, 2)] = true
	cfg := DiscoveryConfig{SimilarityThreshold: 0.7, CorrelationThreshold: 0.0, CandidateLimit: 100}
	d := newTestDiscovery(markets, idx, rels, cfg)

	res, err := d.DiscoverForMarket(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, DiscoveryResult{Created: 1, Failed: 1}, res)
	assert.Contains(t, rels.rows, domain.CanonicalPair(1, 3))
}

func TestDiscoverPropagatesIndexErrors(t *testing.T) {
	markets, idx := discoveryFixture()
	idx.err = errStoreDown
	d := newTestDiscovery(markets, idx, newFakeRelationStore(), DefaultDiscoveryConfig())

	_, err := d.DiscoverForMarket(context.Background(), 1)
	assert.ErrorIs(t, err, errStoreDown)
}

func symmetricFixture() (*fakeMarketStore, *fakeIndex) {
	markets := newFakeMarketStore(mk(1, 0.6, 100), mk(2, 0.55, 100), mk(3, 0.3, 100), mk(4, 0.62, 100))
	idx := &fakeIndex{neighbours: map[int64][]domain.SimilarMarket{
		1: {{MarketID: 2, Similarity: 0.9}},
		2: {{MarketID: 1, Similarity: 0.9}, {MarketID: 4, Similarity: 0.8}},
		3: {},
		4: {{MarketID: 2, Similarity: 0.8}},
	}}
	return markets, idx
}

func TestEstimateMatchesFullRunWhenNotSampled(t *testing.T) {
	markets, idx := symmetricFixture()
	rels := newFakeRelationStore()
	cfg := DefaultDiscoveryConfig()
	cfg.BatchSize = 2
	d := newTestDiscovery(markets, idx, rels, cfg)
	ids := []int64{1, 2, 3, 4}

	est, err := d.EstimateRelations(context.Background(), ids, len(ids), nil)
	require.NoError(t, err)
	assert.False(t, est.IsSampled)
	assert.Equal(t, 4, est.SampledMarkets)
	assert.Equal(t, 4, est.TotalMarkets)
	assert.Empty(t, rels.rows, "estimation must not persist")

	totals, err := d.DiscoverAll(context.Background(), ids, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Created)
	assert.Equal(t, int64(totals.Created), est.EstimatedTotal)
	assert.Len(t, rels.rows, 2)
}

func TestEstimateSamplesWithoutReplacement(t *testing.T) {
	var all []domain.Market
	idx := &fakeIndex{neighbours: map[int64][]domain.SimilarMarket{}}
	var ids []int64
	for i := int64(1); i <= 30; i++ {
		all = append(all, mk(i, 0.5, 10), mk(100+i, 0.5, 10))
		idx.neighbours[i] = []domain.SimilarMarket{{MarketID: 100 + i, Similarity: 0.95}}
		ids = append(ids, i)
	}
	d := newTestDiscovery(newFakeMarketStore(all...), idx, newFakeRelationStore(), DefaultDiscoveryConfig())

	est, err := d.EstimateRelations(context.Background(), ids, 0, rand.New(rand.NewPCG(7, 11)))
	require.NoError(t, err)
	assert.True(t, est.IsSampled)
	assert.Equal(t, 10, est.SampledMarkets)
	// Each distinct sampled market contributes one relation.
	assert.Equal(t, 10, est.SampleRelations)
	assert.InDelta(t, 1.0, est.RelationsPerMarket, 1e-12)
	assert.Equal(t, int64(30), est.EstimatedTotal)
}

func TestSampleSizeFor(t *testing.T) {
	assert.Equal(t, 10, SampleSizeFor(0))
	assert.Equal(t, 10, SampleSizeFor(50))
	assert.Equal(t, 10, SampleSizeFor(100))
	assert.Equal(t, 50, SampleSizeFor(500))
	assert.Equal(t, 100, SampleSizeFor(5000))
}

func TestDiscoverAllBatchesAndProgress(t *testing.T) {
	markets, idx := symmetricFixture()
	cfg := DefaultDiscoveryConfig()
	cfg.BatchSize = 2
	d := newTestDiscovery(markets, idx, newFakeRelationStore(), cfg)

	var seen []BatchProgress
	totals, err := d.DiscoverAll(context.Background(), []int64{1, 2, 3, 4, 5}, func(p BatchProgress) {
		seen = append(seen, p)
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)
	assert.Equal(t, 3, seen[2].Batches)
	assert.Equal(t, 1, seen[2].Markets)
	assert.Equal(t, 5, totals.Markets)
	assert.Equal(t, 2, totals.Created)
	assert.Equal(t, totals.DiscoveryResult, seen[2].Totals)
}

func TestDiscoverAllStopsBetweenBatches(t *testing.T) {
	markets, idx := symmetricFixture()
	cfg := DefaultDiscoveryConfig()
	cfg.BatchSize = 2
	d := newTestDiscovery(markets, idx, newFakeRelationStore(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	totals, err := d.DiscoverAll(ctx, []int64{1, 2, 3, 4}, func(BatchProgress) { cancel() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, totals.Markets)
	assert.Len(t, totals.Batches, 1)
}
