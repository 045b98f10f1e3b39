package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// Strategy is one of the five bets the EV engine ranks.
type Strategy string

const (
	StrategyYesA      Strategy = "Bet YES on Event 1"
	StrategyYesB      Strategy = "Bet YES on Event 2"
	StrategyNoA       Strategy = "Bet NO on Event 1"
	StrategyNoB       Strategy = "Bet NO on Event 2"
	StrategyArbitrage Strategy = "Arbitrage (opposite sides)"
)

// Strategies lists the strategies in tie-break order: when two EVs are
// equal the one listed first wins.
var Strategies = [...]Strategy{StrategyYesA, StrategyYesB, StrategyNoA, StrategyNoB, StrategyArbitrage}

// Edge is the qualitative band of the best EV.
type Edge string

const (
	EdgeStrong   Edge = "strong"
	EdgeModerate Edge = "moderate"
	EdgeSlight   Edge = "slight"
	EdgeNone     Edge = "none"
)

const (
	defaultPrice          = 0.5
	strongDependence      = 0.8
	arbitrageCorrelation  = 0.7
	arbitragePriceGap     = 0.15
	normalizeTolerance    = 1e-9
	strongEdgeThreshold   = 0.05
	moderateEdgeThreshold = 0.01
)

// Scenarios are the four mutually exclusive joint outcomes of a pair.
type Scenarios struct {
	Both    float64
	AOnly   float64
	BOnly   float64
	Neither float64
}

// Sum returns the total probability mass.
func (s Scenarios) Sum() float64 {
	return s.Both + s.AOnly + s.BOnly + s.Neither
}

// StrategyEV is a strategy and its expected profit per unit staked.
type StrategyEV struct {
	Strategy Strategy
	EV       float64
}

// EVAnalysis is the deterministic strategy ranking for one market pair.
type EVAnalysis struct {
	PriceA       float64
	PriceB       float64
	Correlation  float64
	Scenarios    Scenarios
	EVs          [len(Strategies)]StrategyEV
	Best         Strategy
	BestEV       float64
	Edge         Edge
	Insufficient bool
}

// EV returns the expected value computed for s.
func (a EVAnalysis) EV(s Strategy) float64 {
	for _, e := range a.EVs {
		if e.Strategy == s {
			return e.EV
		}
	}
	return 0
}

// AnalyzePair runs ExpectedValue on the markets' first outcome prices,
// defaulting a missing price to 0.5.
func AnalyzePair(a, b domain.Market, correlation float64) EVAnalysis {
	pa, ok := a.FirstPrice()
	if !ok {
		pa = defaultPrice
	}
	pb, ok := b.FirstPrice()
	if !ok {
		pb = defaultPrice
	}
	return ExpectedValue(pa, pb, correlation)
}

// ExpectedValue ranks the five strategies for prices priceA, priceB and an
// externally supplied correlation. Non-finite inputs yield an analysis with
// Insufficient set and no strategy.
func ExpectedValue(priceA, priceB, correlation float64) EVAnalysis {
	out := EVAnalysis{PriceA: priceA, PriceB: priceB, Correlation: correlation}
	if !finite(priceA) || !finite(priceB) || !finite(correlation) {
		out.Insufficient = true
		out.Edge = EdgeNone
		return out
	}

	sc := scenarios(priceA, priceB, correlation)
	out.Scenarios = sc

	trueA := sc.Both + sc.AOnly
	trueB := sc.Both + sc.BOnly

	var yesA, yesB, noA, noB, arb float64
	if priceA > 0 {
		yesA = trueA - priceA
	}
	if priceB > 0 {
		yesB = trueB - priceB
	}
	if priceA < 1 {
		noA = (sc.BOnly + sc.Neither) - (1 - priceA)
	}
	if priceB < 1 {
		noB = (sc.AOnly + sc.Neither) - (1 - priceB)
	}
	if correlation > arbitrageCorrelation && math.Abs(priceA-priceB) > arbitragePriceGap {
		if priceA > priceB {
			arb = 1 - ((1 - priceA) + priceB)
		} else {
			arb = 1 - (priceA + (1 - priceB))
		}
	}

	out.EVs = [len(Strategies)]StrategyEV{
		{StrategyYesA, yesA},
		{StrategyYesB, yesB},
		{StrategyNoA, noA},
		{StrategyNoB, noB},
		{StrategyArbitrage, arb},
	}

	best := out.EVs[0]
	for _, e := range out.EVs[1:] {
		if e.EV > best.EV {
			best = e
		}
	}
	out.Best = best.Strategy
	out.BestEV = best.EV
	out.Edge = edgeFor(best.EV)
	return out
}

// scenarios builds the correlation-adjusted joint distribution.
func scenarios(priceA, priceB, correlation float64) Scenarios {
	var both float64
	switch {
	case correlation > strongDependence && priceA+priceB > 1:
		both = math.Min(priceA, priceB) * (1 - correlation)
	case correlation > strongDependence:
		both = priceA * priceB * (1 + correlation)
	default:
		both = priceA * priceB * (1 + correlation*0.5)
	}
	both = math.Max(0, math.Min(both, math.Min(priceA, priceB)))

	aOnly := priceA - both
	bOnly := priceB - both
	sc := Scenarios{
		Both:    both,
		AOnly:   math.Max(0, aOnly),
		BOnly:   math.Max(0, bOnly),
		Neither: math.Max(0, 1-both-aOnly-bOnly),
	}

	total := sc.Sum()
	if total > 0 && math.Abs(total-1) > normalizeTolerance {
		sc.Both /= total
		sc.AOnly /= total
		sc.BOnly /= total
		sc.Neither /= total
	}
	return sc
}

func edgeFor(ev float64) Edge {
	switch {
	case ev > strongEdgeThreshold:
		return EdgeStrong
	case ev > moderateEdgeThreshold:
		return EdgeModerate
	case ev > 0:
		return EdgeSlight
	default:
		return EdgeNone
	}
}

// Summary renders the recommendation as a single line.
func (a EVAnalysis) Summary() string {
	if a.Insufficient {
		return "Insufficient data for strategy recommendation"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (EV: %+.4f or %+.2f%%)", a.Best, a.BestEV, a.BestEV*100)
	switch a.Edge {
	case EdgeStrong:
		fmt.Fprintf(&b, " - Strong positive edge! Expected to profit $%.2f per $1 wagered", a.BestEV)
	case EdgeModerate:
		fmt.Fprintf(&b, " - Moderate positive edge, expected to profit $%.2f per $1", a.BestEV)
	case EdgeSlight:
		b.WriteString(" - Slight positive edge")
	default:
		b.WriteString(" - No positive EV strategies found (market is efficient or overpriced)")
	}
	if insight := a.CorrelationInsight(); insight != "" {
		b.WriteString(" | ")
		b.WriteString(insight)
	}
	return b.String()
}

// CorrelationInsight describes what a high correlation implies for the
// price gap, or returns "" when the correlation is not high.
func (a EVAnalysis) CorrelationInsight() string {
	if a.Correlation <= strongDependence {
		return ""
	}
	gap := math.Abs(a.PriceA - a.PriceB)
	if gap > arbitragePriceGap {
		return fmt.Sprintf("High correlation (%.2f) + price gap (%.2f) = strong arbitrage potential", a.Correlation, gap)
	}
	return fmt.Sprintf("High correlation (%.2f) but similar prices - limited arbitrage", a.Correlation)
}

// Rounded returns the EVs keyed by a stable report name, rounded to four
// decimals.
func (a EVAnalysis) Rounded() map[string]float64 {
	if a.Insufficient {
		return map[string]float64{}
	}
	r := func(v float64) float64 { return math.Round(v*1e4) / 1e4 }
	return map[string]float64{
		"best_ev":          r(a.BestEV),
		"ev_yes_event1":    r(a.EV(StrategyYesA)),
		"ev_yes_event2":    r(a.EV(StrategyYesB)),
		"ev_no_event1":     r(a.EV(StrategyNoA)),
		"ev_no_event2":     r(a.EV(StrategyNoB)),
		"ev_arbitrage":     r(a.EV(StrategyArbitrage)),
		"market1_price":    r(a.PriceA),
		"market2_price":    r(a.PriceB),
		"correlation_used": r(a.Correlation),
	}
}
