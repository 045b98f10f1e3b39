package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

type sliceLister struct{ markets []domain.Market }

func (s *sliceLister) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	if opts.Offset >= len(s.markets) {
		return nil, nil
	}
	end := len(s.markets)
	if opts.Limit > 0 {
		end = min(end, opts.Offset+opts.Limit)
	}
	return s.markets[opts.Offset:end], nil
}

// methodEstimator picks a method by market id parity.
type methodEstimator struct{}

func (methodEstimator) Best(_ context.Context, m domain.Market) domain.VolatilityResult {
	if m.ID%2 == 0 {
		return domain.VolatilityResult{
			MarketID: m.ID, OK: true, Score: 0.4, Method: domain.MethodPriceHistory,
			Metadata: map[string]any{
				"data_points": 24,
				"price_range": map[string]float64{"min": 0.1, "max": 0.3},
			},
		}
	}
	return domain.VolatilityResult{MarketID: m.ID, OK: true, Score: 0.2, Method: domain.MethodProxy}
}

type memVolatilityStore struct {
	mu      sync.Mutex
	records map[int64]domain.VolatilityRecord
	failID  int64
}

func (s *memVolatilityStore) Upsert(_ context.Context, rec domain.VolatilityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.MarketID == s.failID {
		return errors.New("constraint violation")
	}
	s.records[rec.MarketID] = rec
	return nil
}

func (s *memVolatilityStore) Get(_ context.Context, id int64) (domain.VolatilityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.VolatilityRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

type memSink struct {
	mu        sync.Mutex
	reports   map[string]any
	snapshots [][]domain.VolatilityRecord
}

func newMemSink() *memSink { return &memSink{reports: make(map[string]any)} }

func (s *memSink) WriteReport(_ context.Context, kind, runID string, _ time.Time, report any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[kind] = report
	return "reports/" + kind + "/" + runID + ".json", nil
}

func (s *memSink) WriteVolatilitySnapshot(_ context.Context, runID string, _ time.Time, records []domain.VolatilityRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, records)
	return "snapshots/volatility/" + runID + ".jsonl", nil
}

func marketsN(n int) []domain.Market {
	out := make([]domain.Market, n)
	for i := range out {
		out[i] = domain.Market{ID: int64(i + 1), ExternalID: "ext", IsActive: true}
	}
	return out
}

func TestVolatilityMigratorRun(t *testing.T) {
	store := &memVolatilityStore{records: make(map[int64]domain.VolatilityRecord), failID: 5}
	sink := newMemSink()
	m := NewVolatilityMigrator(&sliceLister{markets: marketsN(7)}, methodEstimator{}, store, sink,
		MigratorConfig{BatchSize: 3, Concurrency: 2}, slog.New(slog.DiscardHandler))

	stats, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 7, stats.Processed)
	assert.Equal(t, 6, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 3, stats.ByMethod[string(domain.MethodPriceHistory)])
	assert.Equal(t, 3, stats.ByMethod[string(domain.MethodProxy)])
	assert.NotEmpty(t, stats.RunID)
	assert.NotEmpty(t, stats.Snapshot)

	rec := store.records[2]
	require.NotNil(t, rec.RealVolatility)
	assert.Nil(t, rec.ProxyVolatility)
	assert.Equal(t, 24, rec.DataPoints)
	assert.Equal(t, 0.3, rec.PriceRange["max"])

	rec = store.records[1]
	assert.Nil(t, rec.RealVolatility)
	require.NotNil(t, rec.ProxyVolatility)
	assert.InDelta(t, 0.2, *rec.ProxyVolatility, 1e-12)

	require.Len(t, sink.snapshots, 1)
	assert.Len(t, sink.snapshots[0], 6)
	assert.Contains(t, sink.reports, "volatility")
}

func TestVolatilityMigratorLimit(t *testing.T) {
	store := &memVolatilityStore{records: make(map[int64]domain.VolatilityRecord)}
	m := NewVolatilityMigrator(&sliceLister{markets: marketsN(10)}, methodEstimator{}, store, nil,
		MigratorConfig{BatchSize: 3, Concurrency: 4, Limit: 4}, slog.New(slog.DiscardHandler))

	stats, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Processed)
	assert.Len(t, store.records, 4)
}

func TestVolatilityMigratorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &memVolatilityStore{records: make(map[int64]domain.VolatilityRecord)}
	m := NewVolatilityMigrator(&sliceLister{markets: marketsN(3)}, methodEstimator{}, store, nil,
		MigratorConfig{}, slog.New(slog.DiscardHandler))

	_, err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.records)
}
