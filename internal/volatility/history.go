package volatility

import (
	"math"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// dailyCeiling is the daily log-return volatility mapped to a score of 1.0.
const dailyCeiling = 0.3

// FromPriceSeries computes realized volatility over a price series: the
// population standard deviation of log returns between consecutive positive
// prices, scaled by dailyCeiling and capped at 1.
func FromPriceSeries(points []domain.PricePoint) domain.VolatilityResult {
	if len(points) < 2 {
		return tryNext(domain.MethodInsufficientData)
	}

	prices := make([]float64, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			continue
		}
		prices = append(prices, p.Price)
	}
	if len(prices) < 2 {
		return tryNext(domain.MethodInsufficientData)
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			returns = append(returns, math.Log(prices[i]/prices[i-1]))
		}
	}
	if len(returns) == 0 {
		return tryNext(domain.MethodNoValidReturns)
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	raw := math.Sqrt(variance)

	lo, hi, total := prices[0], prices[0], 0.0
	for _, p := range prices {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
		total += p
	}

	return domain.VolatilityResult{
		OK:     true,
		Score:  normalize(raw),
		Method: domain.MethodPriceHistory,
		Metadata: map[string]any{
			"data_points": len(prices),
			"price_range": map[string]float64{
				"min":   lo,
				"max":   hi,
				"avg":   total / float64(len(prices)),
				"range": hi - lo,
			},
			"raw_volatility": round(raw, 6),
			"mean_return":    round(mean, 6),
		},
	}
}

// normalize maps a daily volatility onto [0,1].
func normalize(raw float64) float64 {
	return round(clamp01(raw/dailyCeiling), 4)
}

func tryNext(reason domain.VolatilityMethod) domain.VolatilityResult {
	return domain.VolatilityResult{Method: reason, Metadata: map[string]any{}}
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

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
