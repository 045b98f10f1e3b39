package volatility

import (
	"math"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

var proxyNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestProxyBinaryMarket(t *testing.T) {
	m := domain.Market{
		OutcomePrices: []float64{0.5, 0.5},
		Volume:        9_999_999,
		EndDate:       proxyNow.Add(12 * time.Hour).Format(time.RFC3339),
	}
	res := Proxy(m, proxyNow)
	require.True(t, res.OK)
	assert.Equal(t, domain.MethodProxy, res.Method)
	assert.Equal(t, 1.0, res.Metadata["price_uncertainty"])
	assert.Equal(t, 0.9, res.Metadata["time_factor"])
	assert.InDelta(t, 0.5+0.3+0.18, res.Score, 1e-4)
}

func TestProxyMissingEverythingStillScores(t *testing.T) {
	res := Proxy(domain.Market{}, proxyNow)
	require.True(t, res.OK)
	assert.Equal(t, 0.1, res.Score) // default time factor only
	assert.Equal(t, 0.0, res.Metadata["price_uncertainty"])
	assert.Equal(t, 0.0, res.Metadata["volume_factor"])
}

func TestProxyMultiOutcomeEntropy(t *testing.T) {
	uniform := priceUncertainty([]float64{0.25, 0.25, 0.25, 0.25})
	assert.InDelta(t, 1.0, uniform, 1e-6)

	skewed := priceUncertainty([]float64{0.97, 0.01, 0.01, 0.01})
	assert.Less(t, skewed, 0.3)

	// Unnormalized prices are normalized by their sum first.
	assert.InDelta(t, uniform, priceUncertainty([]float64{2, 2, 2, 2}), 1e-6)
	assert.Equal(t, 0.0, priceUncertainty([]float64{0, 0, 0}))
}

func TestTimeFactorSteps(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want float64
	}{
		{-48 * time.Hour, 0.9},
		{6 * time.Hour, 0.9},
		{3 * 24 * time.Hour, 0.7},
		{10 * 24 * time.Hour, 0.5},
		{90 * 24 * time.Hour, 0.3},
	}
	for _, tc := range cases {
		end := proxyNow.Add(tc.in)
		assert.Equal(t, tc.want, timeFactor(end.Format(time.RFC3339), proxyNow), tc.in.String())
		assert.Equal(t, tc.want, timeFactor(strconv.FormatInt(end.UnixMilli(), 10), proxyNow), tc.in.String())
	}
	assert.Equal(t, defaultTimeFactor, timeFactor("", proxyNow))
	assert.Equal(t, defaultTimeFactor, timeFactor("next tuesday", proxyNow))
}

func TestParseEndDate(t *testing.T) {
	want := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{
		"2025-12-31T00:00:00Z",
		"2025-12-31T00:00:00.000Z",
		"2025-12-31T00:00:00+00:00",
		"2025-12-31",
		strconv.FormatInt(want.UnixMilli(), 10),
	} {
		got, ok := ParseEndDate(raw)
		require.True(t, ok, raw)
		assert.True(t, want.Equal(got), raw)
	}
	_, ok := ParseEndDate("soon")
	assert.False(t, ok)
}

func TestProxyIsTotal(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	specials := []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1, 0, 2}
	for i := 0; i < 1000; i++ {
		n := rng.IntN(6)
		prices := make([]float64, n)
		for j := range prices {
			if rng.IntN(10) == 0 {
				prices[j] = specials[rng.IntN(len(specials))]
			} else {
				prices[j] = rng.Float64()
			}
		}
		volume := rng.Float64() * 1e9
		if rng.IntN(10) == 0 {
			volume = specials[rng.IntN(len(specials))]
		}
		m := domain.Market{
			OutcomePrices: prices,
			Volume:        volume,
			EndDate:       proxyNow.Add(time.Duration(rng.IntN(2000)-1000) * time.Hour).Format(time.RFC3339),
		}
		res := Proxy(m, proxyNow)
		require.True(t, res.OK)
		assert.False(t, math.IsNaN(res.Score))
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 1.0)
	}
}
