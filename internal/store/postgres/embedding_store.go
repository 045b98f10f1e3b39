package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// EmbeddingStore answers nearest-neighbour queries over market_embeddings
// with pgvector's cosine distance. Embeddings are written by an external
// producer; this store only reads them.
type EmbeddingStore struct {
	pool *pgxpool.Pool
}

// NewEmbeddingStore creates a new EmbeddingStore.
func NewEmbeddingStore(pool *pgxpool.Pool) *EmbeddingStore {
	return &EmbeddingStore{pool: pool}
}

// Embedding returns the stored vector for a market.
func (s *EmbeddingStore) Embedding(ctx context.Context, marketID int64) (pgvector.Vector, error) {
	var v pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT embedding::text FROM market_embeddings WHERE market_id = $1`, marketID,
	).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pgvector.Vector{}, domain.ErrNotFound
		}
		return pgvector.Vector{}, fmt.Errorf("postgres: get embedding %d: %w", marketID, err)
	}
	return v, nil
}

// FindSimilar returns up to limit markets closest to marketID, most similar
// first, excluding marketID itself. A market without an embedding has no
// neighbours.
func (s *EmbeddingStore) FindSimilar(ctx context.Context, marketID int64, limit int) ([]domain.SimilarMarket, error) {
	v, err := s.Embedding(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.FindSimilarToVector(ctx, v, marketID, limit)
}

// FindSimilarToVector returns up to limit markets closest to v, skipping
// exclude. Cosine similarity is clamped into [0,1].
func (s *EmbeddingStore) FindSimilarToVector(ctx context.Context, v pgvector.Vector, exclude int64, limit int) ([]domain.SimilarMarket, error) {
	if limit <= 0 {
		return nil, nil
	}
	const query = `
		SELECT market_id, 1 - (embedding <=> $1::vector) AS similarity
		FROM market_embeddings
		WHERE market_id <> $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, v, exclude, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: find similar to %d: %w", exclude, err)
	}
	defer rows.Close()

	var out []domain.SimilarMarket
	for rows.Next() {
		var sm domain.SimilarMarket
		if err := rows.Scan(&sm.MarketID, &sm.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: scan similar market: %w", err)
		}
		sm.Similarity = max(0, min(1, sm.Similarity))
		out = append(out, sm)
	}
	return out, rows.Err()
}

// ListEmbeddedMarketIDs returns ids of active markets that have an
// embedding, in id order. A non-positive limit means no limit.
func (s *EmbeddingStore) ListEmbeddedMarketIDs(ctx context.Context, limit int) ([]int64, error) {
	query := `SELECT e.market_id FROM market_embeddings e
		JOIN markets m ON m.id = e.market_id
		WHERE m.is_active
		ORDER BY e.market_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list embedded markets: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("postgres: list embedded markets: %w", err)
	}
	return ids, nil
}

// Compile-time interface check.
var _ domain.SimilarityIndex = (*EmbeddingStore)(nil)
