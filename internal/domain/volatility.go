package domain

import "time"

// VolatilityMethod names the estimator (or failure reason) behind a result.
type VolatilityMethod string

const (
	MethodPriceHistory     VolatilityMethod = "price_history"
	MethodPriceChange24h   VolatilityMethod = "price_change_24h"
	MethodPriceChange7d    VolatilityMethod = "price_change_7d_scaled"
	MethodPriceChange30d   VolatilityMethod = "price_change_30d_scaled"
	MethodProxy            VolatilityMethod = "proxy"
	MethodInsufficientData VolatilityMethod = "insufficient_data"
	MethodNoValidReturns   VolatilityMethod = "no_valid_returns"
	MethodNoPriceChanges   VolatilityMethod = "no_price_changes"
	MethodNotFound         VolatilityMethod = "not_found"
	MethodHTTPError        VolatilityMethod = "http_error"
	MethodError            VolatilityMethod = "error"
)

// VolatilityResult is the outcome of one estimator. When OK is false the
// estimator declined and the next one in the chain should be tried; Method
// then carries the reason.
type VolatilityResult struct {
	MarketID int64
	OK       bool
	Score    float64 // 0.0–1.0, only meaningful when OK
	Method   VolatilityMethod
	Metadata map[string]any
}

// VolatilityRecord is the persisted per-market volatility snapshot.
type VolatilityRecord struct {
	MarketID        int64              `json:"market_id"`
	ExternalID      string             `json:"polymarket_id"`
	RealVolatility  *float64           `json:"real_volatility_24h"`
	ProxyVolatility *float64           `json:"proxy_volatility_24h"`
	Method          VolatilityMethod   `json:"calculation_method"`
	DataPoints      int                `json:"data_points"`
	PriceRange      map[string]float64 `json:"price_range_24h"`
	CalculatedAt    time.Time          `json:"calculated_at"`
}
