package domain

import "context"

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists market metadata. Upserts are keyed by ExternalID.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) (int64, error)
	UpsertBatch(ctx context.Context, markets []Market) ([]int64, error)
	GetByID(ctx context.Context, id int64) (Market, error)
	GetByExternalID(ctx context.Context, externalID string) (Market, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// MarketRelationStore persists relations keyed by their canonical pair.
type MarketRelationStore interface {
	Upsert(ctx context.Context, rel MarketRelation) (MarketRelation, error)
	Get(ctx context.Context, key PairKey) (MarketRelation, error)
	// ListFor returns relations touching marketID with similarity >= minSimilarity,
	// ordered by similarity descending. A non-positive limit means no limit.
	ListFor(ctx context.Context, marketID int64, minSimilarity float64, limit int) ([]MarketRelation, error)
	Delete(ctx context.Context, key PairKey) (bool, error)
	DeleteAllFor(ctx context.Context, marketID int64) (int64, error)
	Count(ctx context.Context) (int64, error)
	CountFor(ctx context.Context, marketID int64) (int64, error)
}

// SimilarityIndex answers nearest-neighbour queries over market embeddings.
type SimilarityIndex interface {
	FindSimilar(ctx context.Context, marketID int64, limit int) ([]SimilarMarket, error)
	ListEmbeddedMarketIDs(ctx context.Context, limit int) ([]int64, error)
}

// VolatilityStore persists per-market volatility snapshots.
type VolatilityStore interface {
	Upsert(ctx context.Context, rec VolatilityRecord) error
	Get(ctx context.Context, marketID int64) (VolatilityRecord, error)
}
