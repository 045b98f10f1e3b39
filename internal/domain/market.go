package domain

import "time"

// Market is a prediction market as mirrored from Polymarket's Gamma API.
//
// OutcomePrices is index-aligned with Outcomes; the first entry is the YES
// probability for binary markets. EndDate keeps the upstream representation
// (ISO-8601 text or a millisecond epoch) and is parsed on demand.
type Market struct {
	ID                  int64
	ExternalID          string // Polymarket market id
	Question            string
	Description         string
	Outcomes            []string
	OutcomePrices       []float64
	ClobTokenIDs        []string
	Volume              float64
	OneDayPriceChange   *float64
	OneWeekPriceChange  *float64
	OneMonthPriceChange *float64
	EndDate             string
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// FirstPrice returns the first outcome price, if any.
func (m Market) FirstPrice() (float64, bool) {
	if len(m.OutcomePrices) == 0 {
		return 0, false
	}
	return m.OutcomePrices[0], true
}

// HistoryToken returns the identifier used for price-history lookups: the
// first CLOB token when known, otherwise the external market id.
func (m Market) HistoryToken() string {
	for _, tok := range m.ClobTokenIDs {
		if tok != "" {
			return tok
		}
	}
	return m.ExternalID
}

// PricePoint is one sample of a market's price series.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}
