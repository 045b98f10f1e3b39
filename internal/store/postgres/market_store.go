package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const upsertMarketSQL = `
	INSERT INTO markets (
		polymarket_id, question, description,
		outcomes, outcome_prices, clob_token_ids,
		volume, one_day_price_change, one_week_price_change, one_month_price_change,
		end_date, is_active, updated_at
	) VALUES (
		$1, $2, $3,
		$4, $5, $6,
		$7, $8, $9, $10,
		$11, $12, NOW()
	)
	ON CONFLICT (polymarket_id) DO UPDATE SET
		question               = EXCLUDED.question,
		description            = EXCLUDED.description,
		outcomes               = EXCLUDED.outcomes,
		outcome_prices         = EXCLUDED.outcome_prices,
		clob_token_ids         = EXCLUDED.clob_token_ids,
		volume                 = EXCLUDED.volume,
		one_day_price_change   = EXCLUDED.one_day_price_change,
		one_week_price_change  = EXCLUDED.one_week_price_change,
		one_month_price_change = EXCLUDED.one_month_price_change,
		end_date               = EXCLUDED.end_date,
		is_active              = EXCLUDED.is_active,
		updated_at             = NOW()
	RETURNING id`

func upsertArgs(m domain.Market) []any {
	return []any{
		m.ExternalID, m.Question, m.Description,
		nonNil(m.Outcomes), nonNilFloats(m.OutcomePrices), nonNil(m.ClobTokenIDs),
		m.Volume, m.OneDayPriceChange, m.OneWeekPriceChange, m.OneMonthPriceChange,
		m.EndDate, m.IsActive,
	}
}

// Upsert inserts or updates a market keyed by its Polymarket id and returns
// the local id.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, upsertMarketSQL, upsertArgs(m)...).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: upsert market %s: %w", m.ExternalID, err)
	}
	return id, nil
}

// UpsertBatch inserts or updates multiple markets in a single batch operation
// and returns their local ids in input order.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) ([]int64, error) {
	if len(markets) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(upsertMarketSQL, upsertArgs(m)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	ids := make([]int64, len(markets))
	for i := range markets {
		if err := br.QueryRow().Scan(&ids[i]); err != nil {
			return nil, fmt.Errorf("postgres: upsert market batch item %d (%s): %w", i, markets[i].ExternalID, err)
		}
	}
	return ids, nil
}

const marketCols = `id, polymarket_id, question, description,
	outcomes, outcome_prices, clob_token_ids,
	volume, one_day_price_change, one_week_price_change, one_month_price_change,
	end_date, is_active, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	err := row.Scan(
		&m.ID, &m.ExternalID, &m.Question, &m.Description,
		&m.Outcomes, &m.OutcomePrices, &m.ClobTokenIDs,
		&m.Volume, &m.OneDayPriceChange, &m.OneWeekPriceChange, &m.OneMonthPriceChange,
		&m.EndDate, &m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

// GetByID retrieves a market by its local id.
func (s *MarketStore) GetByID(ctx context.Context, id int64) (domain.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// GetByExternalID retrieves a market by its Polymarket id.
func (s *MarketStore) GetByExternalID(ctx context.Context, externalID string) (domain.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE polymarket_id = $1`, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by polymarket id %s: %w", externalID, err)
	}
	return m, nil
}

// ListActive returns active markets ordered by id.
func (s *MarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE is_active ORDER BY id`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

// pgx encodes a nil slice as NULL, which the NOT NULL array columns reject.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilFloats(s []float64) []float64 {
	if s == nil {
		return []float64{}
	}
	return s
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
