package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/marketgraph/internal/analysis"
	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// PairAnalysis joins the assessor's qualitative view of a pair with the
// deterministic expected-value breakdown computed from its correlation.
type PairAnalysis struct {
	MarketA      domain.Market
	MarketB      domain.Market
	Assessment   domain.CorrelationAssessment
	EV           analysis.EVAnalysis
	BestStrategy string
	Insight      string
}

// ExpectedValues returns the EV figures rounded for presentation.
func (p PairAnalysis) ExpectedValues() map[string]float64 {
	return p.EV.Rounded()
}

// CorrelationService analyses a market pair on demand.
type CorrelationService struct {
	markets  marketGetter
	assessor domain.CorrelationAssessor
	logger   *slog.Logger
}

// NewCorrelationService creates a CorrelationService.
func NewCorrelationService(markets marketGetter, assessor domain.CorrelationAssessor, logger *slog.Logger) *CorrelationService {
	return &CorrelationService{
		markets:  markets,
		assessor: assessor,
		logger:   logger.With(slog.String("component", "correlation_service")),
	}
}

// AnalyzePair loads both markets, asks the assessor for a correlation
// estimate and attaches the EV analysis for that estimate.
func (s *CorrelationService) AnalyzePair(ctx context.Context, idA, idB int64) (PairAnalysis, error) {
	a, err := s.markets.GetMarket(ctx, idA)
	if err != nil {
		return PairAnalysis{}, fmt.Errorf("correlation_service: market %d: %w", idA, err)
	}
	b, err := s.markets.GetMarket(ctx, idB)
	if err != nil {
		return PairAnalysis{}, fmt.Errorf("correlation_service: market %d: %w", idB, err)
	}

	assessment, err := s.assessor.Assess(ctx, a, b)
	if err != nil {
		return PairAnalysis{}, fmt.Errorf("correlation_service: assess %d-%d: %w", idA, idB, err)
	}

	ev := analysis.AnalyzePair(a, b, assessment.CorrelationScore)
	out := PairAnalysis{
		MarketA:      a,
		MarketB:      b,
		Assessment:   assessment,
		EV:           ev,
		BestStrategy: ev.Summary(),
		Insight:      ev.CorrelationInsight(),
	}

	s.logger.InfoContext(ctx, "pair analysed",
		slog.Int64("market_a", idA),
		slog.Int64("market_b", idB),
		slog.Float64("correlation", assessment.CorrelationScore),
		slog.String("risk", string(assessment.RiskLevel)),
		slog.String("best", string(ev.Best)),
		slog.Float64("best_ev", ev.BestEV),
	)
	return out, nil
}
