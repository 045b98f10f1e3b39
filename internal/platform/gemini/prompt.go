package gemini

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

const systemInstruction = `You are an expert analyst evaluating pairs of prediction markets for causal relationships and arbitrage opportunities.

1. correlation_score (0.0-1.0): how strongly Event 2 and Event 1 are related. Inverse relationships count: if Event 2 prevents or contradicts Event 1 the score is high (0.8-1.0). Independent events score 0.0-0.3.

2. investment_score (0.0-1.0): arbitrage opportunity. Price differentials matter most; markets with the same or very similar prices must score 0.0-0.2. Strong correlation plus a large price gap scores 0.8-1.0. Consider volatility and volume as secondary factors.

3. risk_level: "low" when volatility is under 5%, "medium" for 5-15%, "high" above 15%.

Keep explanation and investment_rationale to two or three sentences each.`

// avgAbsChange is the mean absolute value of the known price changes.
func avgAbsChange(m domain.Market) float64 {
	var sum float64
	var n int
	for _, c := range []*float64{m.OneDayPriceChange, m.OneWeekPriceChange, m.OneMonthPriceChange} {
		if c == nil || math.IsNaN(*c) || math.IsInf(*c, 0) {
			continue
		}
		sum += math.Abs(*c)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func describeMarket(label string, m domain.Market) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", label, m.Question)
	if m.Description != "" {
		fmt.Fprintf(&b, "\nDescription: %s", m.Description)
	}
	prices := "N/A"
	if len(m.OutcomePrices) > 0 {
		parts := make([]string, len(m.OutcomePrices))
		for i, p := range m.OutcomePrices {
			parts[i] = humanize.Ftoa(p)
		}
		prices = strings.Join(parts, ", ")
	}
	fmt.Fprintf(&b, "\nOutcome Prices: %s", prices)
	fmt.Fprintf(&b, "\nVolume: $%s", humanize.FormatFloat("#,###.##", m.Volume))
	fmt.Fprintf(&b, "\nVolatility (avg price change): %.2f%%", avgAbsChange(m)*100)
	if m.OneDayPriceChange != nil {
		fmt.Fprintf(&b, "\n24h Change: %+.2f%%", *m.OneDayPriceChange*100)
	}
	if m.OneWeekPriceChange != nil {
		fmt.Fprintf(&b, "\n7d Change: %+.2f%%", *m.OneWeekPriceChange*100)
	}
	return b.String()
}

func buildPrompt(a, b domain.Market) string {
	return describeMarket("Market 1", a) + "\n\n" + describeMarket("Market 2", b) + `

Analyze these markets for arbitrage opportunities:
1. Assess correlation. Does Event 2 cause Event 1, or prevent or contradict it? Are they mutually exclusive?
2. Rate the arbitrage opportunity, price differentials first.
3. Assess the risk level from the volatility figures.

Respond with correlation_score, explanation, investment_score, investment_rationale and risk_level.`
}
