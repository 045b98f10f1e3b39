package volatility

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

const (
	uncertaintyWeight = 0.5
	volumeWeight      = 0.3
	timeWeight        = 0.2

	volumeCeiling     = 10_000_000
	entropyEpsilon    = 1e-10
	defaultTimeFactor = 0.5
)

// Proxy scores a market from its price, volume and time to close. It always
// returns a result in [0,1], whatever fields are missing.
func Proxy(m domain.Market, now time.Time) domain.VolatilityResult {
	uncertainty := priceUncertainty(m.OutcomePrices)
	volume := volumeFactor(m.Volume)
	timeF := timeFactor(m.EndDate, now)

	score := uncertainty*uncertaintyWeight + volume*volumeWeight + timeF*timeWeight
	return domain.VolatilityResult{
		OK:     true,
		Score:  round(clamp01(score), 4),
		Method: domain.MethodProxy,
		Metadata: map[string]any{
			"price_uncertainty": round(uncertainty, 4),
			"volume_factor":     round(volume, 4),
			"time_factor":       round(timeF, 4),
		},
	}
}

// priceUncertainty is 2·min(p, 1−p) for binary markets and the normalized
// Shannon entropy of the price distribution otherwise.
func priceUncertainty(prices []float64) float64 {
	clean := make([]float64, 0, len(prices))
	for _, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			p = 0
		}
		clean = append(clean, p)
	}

	switch {
	case len(clean) == 0:
		return 0
	case len(clean) == 2:
		p := clean[0]
		return clamp01(2 * math.Min(p, 1-p))
	}

	var sum float64
	for _, p := range clean {
		if p > 0 {
			sum += p
		}
	}
	if sum <= 0 {
		return 0
	}
	maxEntropy := math.Log(float64(len(clean)))
	if maxEntropy <= 0 {
		return 0
	}

	var entropy float64
	for _, p := range clean {
		if p <= 0 {
			continue
		}
		q := p / sum
		entropy -= q * math.Log(q+entropyEpsilon)
	}
	return clamp01(entropy / maxEntropy)
}

func volumeFactor(volume float64) float64 {
	if math.IsNaN(volume) || volume <= 0 {
		return 0
	}
	return math.Min(math.Log10(volume+1)/math.Log10(volumeCeiling), 1)
}

func timeFactor(endDate string, now time.Time) float64 {
	end, ok := ParseEndDate(endDate)
	if !ok {
		return defaultTimeFactor
	}
	days := end.Sub(now).Hours() / 24
	switch {
	case days < 1:
		return 0.9
	case days < 7:
		return 0.7
	case days < 30:
		return 0.5
	default:
		return 0.3
	}
}

var endDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseEndDate accepts ISO-8601 timestamps and millisecond epochs.
func ParseEndDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	for _, layout := range endDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
