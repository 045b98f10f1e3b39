package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// MarketRelationStore implements domain.MarketRelationStore using PostgreSQL.
// Rows are keyed by (market_id_1, market_id_2) with market_id_1 < market_id_2.
type MarketRelationStore struct {
	pool *pgxpool.Pool
}

// NewMarketRelationStore creates a new MarketRelationStore.
func NewMarketRelationStore(pool *pgxpool.Pool) *MarketRelationStore {
	return &MarketRelationStore{pool: pool}
}

const relationCols = `market_id_1, market_id_2, similarity, correlation, pressure, created_at, updated_at`

// Upsert inserts the relation or replaces the scores of the existing row for
// the same pair. Endpoints are canonicalized before writing.
func (s *MarketRelationStore) Upsert(ctx context.Context, r domain.MarketRelation) (domain.MarketRelation, error) {
	key := r.Key()
	const query = `
		INSERT INTO market_relations (market_id_1, market_id_2, similarity, correlation, pressure)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market_id_1, market_id_2) DO UPDATE SET
			similarity  = EXCLUDED.similarity,
			correlation = EXCLUDED.correlation,
			pressure    = EXCLUDED.pressure,
			updated_at  = NOW()
		RETURNING ` + relationCols

	out, err := scanRelation(s.pool.QueryRow(ctx, query,
		key.Low, key.High, r.Similarity, r.Correlation, r.Pressure,
	))
	if err != nil {
		return domain.MarketRelation{}, fmt.Errorf("postgres: upsert market_relation %d-%d: %w", key.Low, key.High, err)
	}
	return out, nil
}

// Get returns the relation for the pair.
func (s *MarketRelationStore) Get(ctx context.Context, key domain.PairKey) (domain.MarketRelation, error) {
	key = domain.CanonicalPair(key.Low, key.High)
	r, err := scanRelation(s.pool.QueryRow(ctx,
		`SELECT `+relationCols+` FROM market_relations WHERE market_id_1 = $1 AND market_id_2 = $2`,
		key.Low, key.High,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketRelation{}, domain.ErrNotFound
		}
		return domain.MarketRelation{}, fmt.Errorf("postgres: get market_relation %d-%d: %w", key.Low, key.High, err)
	}
	return r, nil
}

// ListFor returns relations touching marketID, strongest similarity first.
func (s *MarketRelationStore) ListFor(ctx context.Context, marketID int64, minSimilarity float64, limit int) ([]domain.MarketRelation, error) {
	query := `SELECT ` + relationCols + ` FROM market_relations
		WHERE (market_id_1 = $1 OR market_id_2 = $1) AND similarity >= $2
		ORDER BY similarity DESC, market_id_1, market_id_2`
	args := []any{marketID, minSimilarity}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market_relations for %d: %w", marketID, err)
	}
	defer rows.Close()

	var list []domain.MarketRelation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market_relation: %w", err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// Delete removes the relation for the pair and reports whether a row existed.
func (s *MarketRelationStore) Delete(ctx context.Context, key domain.PairKey) (bool, error) {
	key = domain.CanonicalPair(key.Low, key.High)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM market_relations WHERE market_id_1 = $1 AND market_id_2 = $2`,
		key.Low, key.High,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: delete market_relation %d-%d: %w", key.Low, key.High, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAllFor removes every relation touching marketID.
func (s *MarketRelationStore) DeleteAllFor(ctx context.Context, marketID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM market_relations WHERE market_id_1 = $1 OR market_id_2 = $1`, marketID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete market_relations for %d: %w", marketID, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of relations.
func (s *MarketRelationStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM market_relations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count market_relations: %w", err)
	}
	return n, nil
}

// CountFor returns the number of relations touching marketID.
func (s *MarketRelationStore) CountFor(ctx context.Context, marketID int64) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM market_relations WHERE market_id_1 = $1 OR market_id_2 = $1`, marketID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count market_relations for %d: %w", marketID, err)
	}
	return n, nil
}

func scanRelation(row pgx.Row) (domain.MarketRelation, error) {
	var r domain.MarketRelation
	err := row.Scan(&r.MarketID1, &r.MarketID2, &r.Similarity, &r.Correlation, &r.Pressure, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// Compile-time interface check.
var _ domain.MarketRelationStore = (*MarketRelationStore)(nil)
