package volatility

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

func series(prices ...float64) []domain.PricePoint {
	t0 := time.Unix(1_700_000_000, 0)
	out := make([]domain.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = domain.PricePoint{Timestamp: t0.Add(time.Duration(i) * time.Hour), Price: p}
	}
	return out
}

func TestFromPriceSeriesInsufficientData(t *testing.T) {
	res := FromPriceSeries(series(0.5))
	assert.False(t, res.OK)
	assert.Equal(t, domain.MethodInsufficientData, res.Method)

	res = FromPriceSeries(nil)
	assert.False(t, res.OK)
	assert.Equal(t, domain.MethodInsufficientData, res.Method)
}

func TestFromPriceSeriesNoValidReturns(t *testing.T) {
	res := FromPriceSeries(series(0, 0, -0.1, 0))
	assert.False(t, res.OK)
	assert.Equal(t, domain.MethodNoValidReturns, res.Method)
}

func TestFromPriceSeriesFlatPricesScoreZero(t *testing.T) {
	res := FromPriceSeries(series(0.4, 0.4, 0.4, 0.4))
	require.True(t, res.OK)
	assert.Equal(t, domain.MethodPriceHistory, res.Method)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, 4, res.Metadata["data_points"])
}

func TestFromPriceSeriesKnownValue(t *testing.T) {
	// Returns are +ln2 and -ln2: mean 0, population stddev ln2 ≈ 0.693,
	// which is above the ceiling and so caps at 1.
	res := FromPriceSeries(series(0.2, 0.4, 0.2))
	require.True(t, res.OK)
	assert.Equal(t, 1.0, res.Score)

	// Returns ln(1.1) and ln(1): stddev = ln(1.1)/2.
	res = FromPriceSeries(series(0.5, 0.55, 0.55))
	require.True(t, res.OK)
	want := round(math.Log(1.1)/2/dailyCeiling, 4)
	assert.InDelta(t, want, res.Score, 1e-9)

	pr, ok := res.Metadata["price_range"].(map[string]float64)
	require.True(t, ok)
	assert.Equal(t, 0.5, pr["min"])
	assert.Equal(t, 0.55, pr["max"])
	assert.InDelta(t, 0.05, pr["range"], 1e-12)
}

func TestFromPriceSeriesScoreAlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		n := rng.IntN(40)
		prices := make([]float64, n)
		for j := range prices {
			prices[j] = rng.Float64()*1.2 - 0.1
		}
		res := FromPriceSeries(series(prices...))
		if !res.OK {
			continue
		}
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 1.0)
	}
}
