// Package analysis holds the pure scoring functions for market pairs:
// heuristic correlation, relation pressure and the expected-value engine.
package analysis

import (
	"math"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

const pressureVolumeCeiling = 1_000_000

// Correlation is a sentiment-similarity heuristic, not a statistical
// coefficient: 1 − |p1 − p2| over the markets' first outcome prices. Markets
// with fewer than two prices get 0.
func Correlation(a, b domain.Market) float64 {
	if len(a.OutcomePrices) < 2 || len(b.OutcomePrices) < 2 {
		return 0
	}
	p1, p2 := a.OutcomePrices[0], b.OutcomePrices[0]
	if !finite(p1) || !finite(p2) {
		return 0
	}
	return clamp01(1 - math.Min(math.Abs(p1-p2), 1))
}

// Pressure combines similarity, correlation and average volume into a
// relation strength in [0,1]. The volume factor never drops below 0.1.
func Pressure(similarity, correlation, volumeA, volumeB float64) float64 {
	return clamp01(clamp01(similarity) * clamp01(correlation) * pressureVolumeFactor(volumeA, volumeB))
}

func pressureVolumeFactor(volumeA, volumeB float64) float64 {
	avg := (volumeA + volumeB) / 2
	if math.IsNaN(avg) || avg <= 0 {
		return 0.1
	}
	f := math.Log1p(avg) / math.Log1p(pressureVolumeCeiling)
	return math.Max(0.1, math.Min(1, f))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
