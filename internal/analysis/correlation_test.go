package analysis

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

func market(prices ...float64) domain.Market {
	return domain.Market{OutcomePrices: prices}
}

func TestCorrelation(t *testing.T) {
	assert.InDelta(t, 0.9, Correlation(market(0.6, 0.4), market(0.5, 0.5)), 1e-12)
	assert.Equal(t, 1.0, Correlation(market(0.3, 0.7), market(0.3, 0.7)))
	assert.Equal(t, 0.0, Correlation(market(0.0, 1.0), market(1.0, 0.0)))
}

func TestCorrelationNeedsTwoPrices(t *testing.T) {
	assert.Equal(t, 0.0, Correlation(market(0.5), market(0.5, 0.5)))
	assert.Equal(t, 0.0, Correlation(market(0.5, 0.5), market()))
}

func TestCorrelationIsSymmetric(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	for i := 0; i < 1000; i++ {
		a := market(rng.Float64()*1.4-0.2, rng.Float64())
		b := market(rng.Float64()*1.4-0.2, rng.Float64())
		if rng.IntN(8) == 0 {
			b.OutcomePrices = b.OutcomePrices[:1]
		}
		ab, ba := Correlation(a, b), Correlation(b, a)
		assert.Equal(t, ab, ba)
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.LessOrEqual(t, ab, 1.0)
	}
}

func TestPressureVolumeFloor(t *testing.T) {
	assert.InDelta(t, 0.1, Pressure(1, 1, 0, 0), 1e-12)
	assert.InDelta(t, 0.1, Pressure(1, 1, -5, 2), 1e-12)
	assert.InDelta(t, 1.0, Pressure(1, 1, 1_000_000, 1_000_000), 1e-12)
	assert.InDelta(t, 1.0, Pressure(1, 1, 5e9, 5e9), 1e-12)
	assert.Equal(t, 0.0, Pressure(0, 1, 1e6, 1e6))
}

func TestPressureIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	for i := 0; i < 1000; i++ {
		sim, corr := rng.Float64(), rng.Float64()
		va, vb := rng.Float64()*2e6, rng.Float64()*2e6
		base := Pressure(sim, corr, va, vb)

		d := rng.Float64() * 0.5
		assert.GreaterOrEqual(t, Pressure(min(sim+d, 1), corr, va, vb), base)
		assert.GreaterOrEqual(t, Pressure(sim, min(corr+d, 1), va, vb), base)

		dv := rng.Float64() * 1e6
		assert.GreaterOrEqual(t, Pressure(sim, corr, va+dv, vb+dv), base)

		assert.GreaterOrEqual(t, base, 0.0)
		assert.LessOrEqual(t, base, 1.0)
	}
}
