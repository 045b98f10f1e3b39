package volatility

import (
	"math"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// FromPriceChanges derives a 24h-equivalent volatility from the market's
// published price changes, preferring 1d, then 7d and 30d scaled by the
// square root of their length in days.
func FromPriceChanges(m domain.Market) domain.VolatilityResult {
	windows := []struct {
		change *float64
		days   float64
		period string
		field  string
		method domain.VolatilityMethod
	}{
		{m.OneDayPriceChange, 1, "24h", "one_day_change", domain.MethodPriceChange24h},
		{m.OneWeekPriceChange, 7, "7d", "one_week_change", domain.MethodPriceChange7d},
		{m.OneMonthPriceChange, 30, "30d", "one_month_change", domain.MethodPriceChange30d},
	}

	for _, w := range windows {
		if w.change == nil || math.IsNaN(*w.change) || math.IsInf(*w.change, 0) {
			continue
		}
		abs := math.Abs(*w.change)
		meta := map[string]any{
			"source_period":  w.period,
			w.field:          *w.change,
			"raw_volatility": abs,
		}
		scaled := abs
		if w.days > 1 {
			scaled = abs / math.Sqrt(w.days)
			meta["scaled_24h_volatility"] = scaled
		}
		return domain.VolatilityResult{
			OK:       true,
			Score:    normalize(scaled),
			Method:   w.method,
			Metadata: meta,
		}
	}
	return tryNext(domain.MethodNoPriceChanges)
}
