package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat accepts a JSON number, a numeric string, or null. Valid is false
// when the field was absent, null, or unparseable.
type flexFloat struct {
	Value float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	*f = flexFloat{}
	if string(data) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat{Value: n, Valid: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		*f = flexFloat{Value: v, Valid: true}
	}
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// flexStrings decodes list fields that Gamma sends either as a JSON array or
// as a string holding a JSON-encoded array, e.g. "[\"Yes\",\"No\"]". A plain
// string that is not an encoded array becomes a single-element list.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	*f = nil
	if string(data) == "null" {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err == nil {
		*f = rawToStrings(raw)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &raw); err == nil {
		*f = rawToStrings(raw)
		return nil
	}
	*f = flexStrings{s}
	return nil
}

func rawToStrings(raw []json.RawMessage) flexStrings {
	out := make(flexStrings, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, strings.TrimSpace(string(r)))
	}
	return out
}

// floats parses each entry; entries that are not numbers are dropped.
func (f flexStrings) floats() []float64 {
	out := make([]float64, 0, len(f))
	for _, s := range f {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEvent represents an event as returned by the Polymarket Gamma API.
// An event groups one or more related markets.
type APIEvent struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Slug    string      `json:"slug"`
	Active  flexBool    `json:"active"`
	Closed  bool        `json:"closed"`
	Markets []APIMarket `json:"markets"`
}

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID                  string      `json:"id"`
	ConditionID         string      `json:"conditionId"`
	Question            string      `json:"question"`
	Description         string      `json:"description"`
	Outcomes            flexStrings `json:"outcomes"`
	OutcomePrices       flexStrings `json:"outcomePrices"`
	ClobTokenIDs        flexStrings `json:"clobTokenIds"`
	Volume              flexFloat   `json:"volume"`
	OneDayPriceChange   flexFloat   `json:"oneDayPriceChange"`
	OneWeekPriceChange  flexFloat   `json:"oneWeekPriceChange"`
	OneMonthPriceChange flexFloat   `json:"oneMonthPriceChange"`
	EndDate             string      `json:"endDate"`
	Active              *flexBool   `json:"active"`
	Closed              bool        `json:"closed"`
	UpdatedAt           string      `json:"updatedAt"`
}

// ToDomainMarket converts a Gamma APIMarket to a domain.Market. The second
// return is false when the market has no question and should be skipped.
func (m *APIMarket) ToDomainMarket() (domain.Market, bool) {
	question := strings.TrimSpace(m.Question)
	if question == "" {
		return domain.Market{}, false
	}

	externalID := m.ID
	if externalID == "" {
		externalID = m.ConditionID
	}
	if externalID == "" {
		return domain.Market{}, false
	}

	dm := domain.Market{
		ExternalID:          externalID,
		Question:            question,
		Description:         m.Description,
		Outcomes:            []string(m.Outcomes),
		OutcomePrices:       m.OutcomePrices.floats(),
		ClobTokenIDs:        []string(m.ClobTokenIDs),
		Volume:              m.Volume.Value,
		OneDayPriceChange:   m.OneDayPriceChange.ptr(),
		OneWeekPriceChange:  m.OneWeekPriceChange.ptr(),
		OneMonthPriceChange: m.OneMonthPriceChange.ptr(),
		EndDate:             m.EndDate,
		IsActive:            !m.Closed,
	}
	// Missing "active" defaults to true.
	if m.Active != nil && !bool(*m.Active) {
		dm.IsActive = false
	}
	if dm.Outcomes == nil {
		dm.Outcomes = []string{}
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		dm.UpdatedAt = t
	}
	return dm, true
}

// FlattenEvents converts the markets of every event into domain markets,
// dropping duplicates by external id. skipped counts markets without a
// question or id.
func FlattenEvents(events []APIEvent) (markets []domain.Market, skipped int) {
	seen := make(map[string]struct{})
	for i := range events {
		for j := range events[i].Markets {
			dm, ok := events[i].Markets[j].ToDomainMarket()
			if !ok {
				skipped++
				continue
			}
			if _, dup := seen[dm.ExternalID]; dup {
				continue
			}
			seen[dm.ExternalID] = struct{}{}
			markets = append(markets, dm)
		}
	}
	return markets, skipped
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIPricePoint is one sample of the CLOB price-history endpoint.
type APIPricePoint struct {
	T int64   `json:"t"`
	P float64 `json:"p"`
}

// APIPriceHistory is the response body of GET /prices-history.
type APIPriceHistory struct {
	History []APIPricePoint `json:"history"`
}

// ToDomain converts the history into domain price points, oldest first as
// returned by the API.
func (h APIPriceHistory) ToDomain() []domain.PricePoint {
	out := make([]domain.PricePoint, 0, len(h.History))
	for _, p := range h.History {
		out = append(out, domain.PricePoint{
			Timestamp: time.Unix(p.T, 0).UTC(),
			Price:     p.P,
		})
	}
	return out
}
