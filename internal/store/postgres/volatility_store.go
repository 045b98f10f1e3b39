package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// VolatilityStore implements domain.VolatilityStore using PostgreSQL.
type VolatilityStore struct {
	pool *pgxpool.Pool
}

// NewVolatilityStore creates a new VolatilityStore.
func NewVolatilityStore(pool *pgxpool.Pool) *VolatilityStore {
	return &VolatilityStore{pool: pool}
}

// Upsert writes the snapshot, replacing any previous one for the market.
func (s *VolatilityStore) Upsert(ctx context.Context, rec domain.VolatilityRecord) error {
	rangeJSON, err := json.Marshal(rec.PriceRange)
	if err != nil {
		return fmt.Errorf("postgres: marshal price range %d: %w", rec.MarketID, err)
	}
	if rec.PriceRange == nil {
		rangeJSON = []byte("{}")
	}

	const query = `
		INSERT INTO market_volatility (
			market_id, polymarket_id, real_volatility_24h, proxy_volatility_24h,
			calculation_method, data_points, price_range_24h, calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (market_id) DO UPDATE SET
			polymarket_id        = EXCLUDED.polymarket_id,
			real_volatility_24h  = EXCLUDED.real_volatility_24h,
			proxy_volatility_24h = EXCLUDED.proxy_volatility_24h,
			calculation_method   = EXCLUDED.calculation_method,
			data_points          = EXCLUDED.data_points,
			price_range_24h      = EXCLUDED.price_range_24h,
			calculated_at        = EXCLUDED.calculated_at`

	_, err = s.pool.Exec(ctx, query,
		rec.MarketID, rec.ExternalID, rec.RealVolatility, rec.ProxyVolatility,
		string(rec.Method), rec.DataPoints, rangeJSON, rec.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market_volatility %d: %w", rec.MarketID, err)
	}
	return nil
}

// Get returns the latest snapshot for a market.
func (s *VolatilityStore) Get(ctx context.Context, marketID int64) (domain.VolatilityRecord, error) {
	const query = `
		SELECT market_id, polymarket_id, real_volatility_24h, proxy_volatility_24h,
			calculation_method, data_points, price_range_24h, calculated_at
		FROM market_volatility WHERE market_id = $1`

	var (
		rec       domain.VolatilityRecord
		method    string
		rangeJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, marketID).Scan(
		&rec.MarketID, &rec.ExternalID, &rec.RealVolatility, &rec.ProxyVolatility,
		&method, &rec.DataPoints, &rangeJSON, &rec.CalculatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VolatilityRecord{}, domain.ErrNotFound
		}
		return domain.VolatilityRecord{}, fmt.Errorf("postgres: get market_volatility %d: %w", marketID, err)
	}
	rec.Method = domain.VolatilityMethod(method)
	if len(rangeJSON) > 0 {
		_ = json.Unmarshal(rangeJSON, &rec.PriceRange)
	}
	return rec, nil
}

// Compile-time interface check.
var _ domain.VolatilityStore = (*VolatilityStore)(nil)
