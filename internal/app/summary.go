package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/alanyoungcy/marketgraph/internal/domain"
	"github.com/alanyoungcy/marketgraph/internal/pipeline"
	"github.com/alanyoungcy/marketgraph/internal/service"
)

func took(d time.Duration) string {
	return d.Round(time.Second).String()
}

func scrapeSummary(r pipeline.ScrapeResult) string {
	msg := fmt.Sprintf("%s markets synced from %s events (%d pages), %d skipped, %d failed, %s relations retired in %s",
		humanize.Comma(int64(r.Synced)), humanize.Comma(int64(r.Events)), r.Pages,
		r.Skipped, r.Failed, humanize.Comma(r.Retired), took(r.Duration))
	if r.StopReason != "" {
		msg += "\nstopped early: " + r.StopReason
	}
	return msg
}

func volatilitySummary(s pipeline.MigrationStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s of %s markets scored, %d failed in %s",
		humanize.Comma(int64(s.Succeeded)), humanize.Comma(int64(s.Processed)), s.Failed, took(s.Duration))
	for _, m := range []domain.VolatilityMethod{
		domain.MethodPriceHistory,
		domain.MethodPriceChange24h,
		domain.MethodPriceChange7d,
		domain.MethodPriceChange30d,
		domain.MethodProxy,
	} {
		if n := s.ByMethod[string(m)]; n > 0 {
			fmt.Fprintf(&b, "\n%s: %s", m, humanize.Comma(int64(n)))
		}
	}
	return b.String()
}

func relationsSummary(r pipeline.RelationReport) string {
	est := fmt.Sprintf("estimated %s relations over %s markets (%.2f per market",
		humanize.Comma(r.Estimate.EstimatedTotal), humanize.Comma(int64(r.Estimate.TotalMarkets)),
		r.Estimate.RelationsPerMarket)
	if r.Estimate.IsSampled {
		est += fmt.Sprintf(", sampled %d", r.Estimate.SampledMarkets)
	}
	est += ")"
	if r.EstimateOnly {
		return est
	}
	return fmt.Sprintf("%s\n%s created, %s skipped, %d failed, %d market errors, %s stored in %s",
		est, humanize.Comma(int64(r.Created)), humanize.Comma(int64(r.Skipped)), r.Failed,
		r.MarketErrors, humanize.Comma(r.StoredRelations), took(r.Duration))
}

func analysisSummary(p service.PairAnalysis) string {
	return fmt.Sprintf("%s\nvs\n%s\ncorrelation %.2f, risk %s\n%s\n%s",
		p.MarketA.Question, p.MarketB.Question,
		p.Assessment.CorrelationScore, p.Assessment.RiskLevel,
		p.BestStrategy, p.Insight)
}
