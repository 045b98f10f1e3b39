package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketgraph/internal/domain"
	"github.com/alanyoungcy/marketgraph/internal/service"
)

type mapMarkets map[int64]domain.Market

func (m mapMarkets) GetMarket(_ context.Context, id int64) (domain.Market, error) {
	mk, ok := m[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return mk, nil
}

type staticIndex map[int64][]domain.SimilarMarket

func (s staticIndex) FindSimilar(_ context.Context, id int64, _ int) ([]domain.SimilarMarket, error) {
	return s[id], nil
}

func (s staticIndex) ListEmbeddedMarketIDs(_ context.Context, _ int) ([]int64, error) {
	return []int64{1, 2, 3}, nil
}

type memRelations struct {
	mu   sync.Mutex
	rows map[domain.PairKey]domain.MarketRelation
}

func (m *memRelations) Upsert(_ context.Context, r domain.MarketRelation) (domain.MarketRelation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.Key()] = r
	return r, nil
}

func (m *memRelations) Get(_ context.Context, k domain.PairKey) (domain.MarketRelation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[k]
	if !ok {
		return domain.MarketRelation{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memRelations) ListFor(_ context.Context, id int64, minSim float64, _ int) ([]domain.MarketRelation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MarketRelation
	for k, r := range m.rows {
		if (k.Low == id || k.High == id) && r.Similarity >= minSim {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRelations) Delete(_ context.Context, k domain.PairKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[k]
	delete(m.rows, k)
	return ok, nil
}

func (m *memRelations) DeleteAllFor(context.Context, int64) (int64, error) { return 0, nil }

func (m *memRelations) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

func (m *memRelations) CountFor(context.Context, int64) (int64, error) { return 0, nil }

type fakeLock struct {
	held     bool
	released int
}

func (l *fakeLock) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.held = true
	return func() { l.held = false; l.released++ }, nil
}

func binary(id int64, p float64) domain.Market {
	return domain.Market{ID: id, Question: "q", OutcomePrices: []float64{p, 1 - p}, Volume: 100, IsActive: true}
}

func newTestBuilder(cfg BuilderConfig, lock domain.RunLock, sink ReportSink) (*RelationBuilder, *memRelations) {
	logger := slog.New(slog.DiscardHandler)
	rels := &memRelations{rows: make(map[domain.PairKey]domain.MarketRelation)}
	relSvc := service.NewRelationService(rels, logger)
	idx := staticIndex{
		1: {{MarketID: 2, Similarity: 0.9}},
		2: {{MarketID: 1, Similarity: 0.9}, {MarketID: 3, Similarity: 0.8}},
		3: {{MarketID: 2, Similarity: 0.8}},
	}
	markets := mapMarkets{1: binary(1, 0.5), 2: binary(2, 0.55), 3: binary(3, 0.6)}
	d := service.NewDiscovery(markets, idx, relSvc, service.DefaultDiscoveryConfig(), nil, logger)
	return NewRelationBuilder(idx, d, relSvc, lock, sink, cfg, logger), rels
}

func TestRelationBuilderRun(t *testing.T) {
	lock := &fakeLock{}
	sink := newMemSink()
	b, rels := newTestBuilder(BuilderConfig{SampleSize: 10}, lock, sink)

	rep, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Markets)
	assert.False(t, rep.Estimate.IsSampled)
	assert.Equal(t, int64(2), rep.Estimate.EstimatedTotal)
	assert.Equal(t, 2, rep.Created)
	assert.Equal(t, int64(2), rep.StoredRelations)
	assert.Len(t, rels.rows, 2)
	assert.Equal(t, 1, lock.released)
	assert.Contains(t, sink.reports, "relations")
	assert.InDelta(t, 0.7, rep.SimilarityThreshold, 1e-12)
}

func TestRelationBuilderEstimateOnly(t *testing.T) {
	b, rels := newTestBuilder(BuilderConfig{EstimateOnly: true, SampleSize: 10}, nil, nil)

	rep, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.EstimateOnly)
	assert.Equal(t, int64(2), rep.Estimate.EstimatedTotal)
	assert.Zero(t, rep.Created)
	assert.Empty(t, rels.rows)
}

func TestRelationBuilderRespectsLock(t *testing.T) {
	lock := &fakeLock{held: true}
	b, _ := newTestBuilder(BuilderConfig{}, lock, nil)

	_, err := b.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}
