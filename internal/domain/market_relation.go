package domain

import "time"

// MarketRelation is an undirected edge between two markets. MarketID1 is
// always the smaller id; use NewMarketRelation to build one.
type MarketRelation struct {
	MarketID1   int64
	MarketID2   int64
	Similarity  float64 // semantic similarity, 0.0–1.0
	Correlation float64 // price correlation, 0.0–1.0
	Pressure    float64 // combined strength, 0.0–1.0
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PairKey identifies an unordered market pair.
type PairKey struct {
	Low  int64
	High int64
}

// CanonicalPair orders a and b so that Low <= High.
func CanonicalPair(a, b int64) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// NewMarketRelation builds a relation with its endpoints in canonical order.
func NewMarketRelation(a, b int64, similarity, correlation, pressure float64) MarketRelation {
	k := CanonicalPair(a, b)
	return MarketRelation{
		MarketID1:   k.Low,
		MarketID2:   k.High,
		Similarity:  similarity,
		Correlation: correlation,
		Pressure:    pressure,
	}
}

// Key returns the canonical pair of the relation.
func (r MarketRelation) Key() PairKey {
	return CanonicalPair(r.MarketID1, r.MarketID2)
}

// Other returns the endpoint that is not id.
func (r MarketRelation) Other(id int64) int64 {
	if r.MarketID1 == id {
		return r.MarketID2
	}
	return r.MarketID1
}

// RelatedMarket is a relation seen from one of its endpoints.
type RelatedMarket struct {
	MarketID    int64
	Similarity  float64
	Correlation float64
	Pressure    float64
	CreatedAt   time.Time
}

// SimilarMarket is a candidate returned by a similarity index.
type SimilarMarket struct {
	MarketID   int64
	Similarity float64
}
