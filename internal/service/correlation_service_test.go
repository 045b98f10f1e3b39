package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketgraph/internal/analysis"
	"github.com/alanyoungcy/marketgraph/internal/domain"
)

type stubAssessor struct {
	out   domain.CorrelationAssessment
	err   error
	calls int
}

func (s *stubAssessor) Assess(context.Context, domain.Market, domain.Market) (domain.CorrelationAssessment, error) {
	s.calls++
	return s.out, s.err
}

func TestAnalyzePairAttachesEV(t *testing.T) {
	store := newFakeMarketStore(mk(1, 0.9, 100), mk(2, 0.1, 100))
	assessor := &stubAssessor{out: domain.CorrelationAssessment{
		CorrelationScore: 0.95,
		RiskLevel:        domain.RiskHigh,
	}}
	logger := slog.New(slog.DiscardHandler)
	svc := NewCorrelationService(NewMarketService(store, nil, logger), assessor, logger)

	out, err := svc.AnalyzePair(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, analysis.StrategyArbitrage, out.EV.Best)
	assert.InDelta(t, 0.8, out.EV.BestEV, 1e-9)
	assert.Contains(t, out.Insight, "strong arbitrage potential")
	assert.Contains(t, out.BestStrategy, string(analysis.StrategyArbitrage))
	assert.Equal(t, 0.8, out.ExpectedValues()["ev_arbitrage"])
	assert.Equal(t, 0.95, out.ExpectedValues()["correlation_used"])
}

func TestAnalyzePairErrors(t *testing.T) {
	store := newFakeMarketStore(mk(1, 0.5, 1))
	logger := slog.New(slog.DiscardHandler)

	assessor := &stubAssessor{}
	svc := NewCorrelationService(NewMarketService(store, nil, logger), assessor, logger)
	_, err := svc.AnalyzePair(context.Background(), 1, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, assessor.calls)

	store.markets[2] = mk(2, 0.5, 1)
	boom := errors.New("model overloaded")
	svc = NewCorrelationService(NewMarketService(store, nil, logger), &stubAssessor{err: boom}, logger)
	_, err = svc.AnalyzePair(context.Background(), 1, 2)
	assert.ErrorIs(t, err, boom)
}
