package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// BatchResult tallies a multi-relation upsert.
type BatchResult struct {
	Created int
	Failed  int
}

// RelationService is the repository facade over persisted market relations.
// Every write goes through the canonical pair so (a,b) and (b,a) address the
// same row.
type RelationService struct {
	relations domain.MarketRelationStore
	logger    *slog.Logger
}

// NewRelationService creates a RelationService.
func NewRelationService(relations domain.MarketRelationStore, logger *slog.Logger) *RelationService {
	return &RelationService{
		relations: relations,
		logger:    logger.With(slog.String("component", "relation_service")),
	}
}

func validRelation(r domain.MarketRelation) error {
	if r.MarketID1 == r.MarketID2 {
		return fmt.Errorf("%w: self pair %d", domain.ErrInvalidRelation, r.MarketID1)
	}
	for name, v := range map[string]float64{
		"similarity":  r.Similarity,
		"correlation": r.Correlation,
		"pressure":    r.Pressure,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s %v out of [0,1]", domain.ErrInvalidRelation, name, v)
		}
	}
	return nil
}

// Create upserts the relation between a and b.
func (s *RelationService) Create(ctx context.Context, a, b int64, similarity, correlation, pressure float64) (domain.MarketRelation, error) {
	rel := domain.NewMarketRelation(a, b, similarity, correlation, pressure)
	if err := validRelation(rel); err != nil {
		return domain.MarketRelation{}, err
	}
	saved, err := s.relations.Upsert(ctx, rel)
	if err != nil {
		return domain.MarketRelation{}, fmt.Errorf("relation_service: upsert %d-%d: %w", rel.MarketID1, rel.MarketID2, err)
	}
	return saved, nil
}

// CreateBatch upserts each relation independently. A failed item is logged
// and counted; it never aborts the rest of the batch.
func (s *RelationService) CreateBatch(ctx context.Context, rels []domain.MarketRelation) BatchResult {
	var res BatchResult
	for _, r := range rels {
		if _, err := s.Create(ctx, r.MarketID1, r.MarketID2, r.Similarity, r.Correlation, r.Pressure); err != nil {
			res.Failed++
			s.logger.WarnContext(ctx, "relation upsert failed",
				slog.Int64("market_id_1", r.MarketID1),
				slog.Int64("market_id_2", r.MarketID2),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Created++
	}
	return res
}

// GetRelated returns the markets related to marketID with similarity at
// least minSimilarity, most similar first. A non-positive limit returns all.
func (s *RelationService) GetRelated(ctx context.Context, marketID int64, limit int, minSimilarity float64) ([]domain.RelatedMarket, error) {
	rels, err := s.relations.ListFor(ctx, marketID, minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("relation_service: list for %d: %w", marketID, err)
	}
	out := make([]domain.RelatedMarket, 0, len(rels))
	for _, r := range rels {
		out = append(out, domain.RelatedMarket{
			MarketID:    r.Other(marketID),
			Similarity:  r.Similarity,
			Correlation: r.Correlation,
			Pressure:    r.Pressure,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

// Between returns the relation joining a and b, or domain.ErrNotFound.
func (s *RelationService) Between(ctx context.Context, a, b int64) (domain.MarketRelation, error) {
	rel, err := s.relations.Get(ctx, domain.CanonicalPair(a, b))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.MarketRelation{}, err
		}
		return domain.MarketRelation{}, fmt.Errorf("relation_service: get %d-%d: %w", a, b, err)
	}
	return rel, nil
}

// Delete removes the relation between a and b, reporting whether one existed.
func (s *RelationService) Delete(ctx context.Context, a, b int64) (bool, error) {
	ok, err := s.relations.Delete(ctx, domain.CanonicalPair(a, b))
	if err != nil {
		return false, fmt.Errorf("relation_service: delete %d-%d: %w", a, b, err)
	}
	return ok, nil
}

// DeleteAllFor removes every relation touching marketID.
func (s *RelationService) DeleteAllFor(ctx context.Context, marketID int64) (int64, error) {
	n, err := s.relations.DeleteAllFor(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("relation_service: delete all for %d: %w", marketID, err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "relations deleted",
			slog.Int64("market_id", marketID),
			slog.Int64("count", n),
		)
	}
	return n, nil
}

// Count returns the number of relations, or only those touching *marketID
// when it is non-nil.
func (s *RelationService) Count(ctx context.Context, marketID *int64) (int64, error) {
	var (
		n   int64
		err error
	)
	if marketID == nil {
		n, err = s.relations.Count(ctx)
	} else {
		n, err = s.relations.CountFor(ctx, *marketID)
	}
	if err != nil {
		return 0, fmt.Errorf("relation_service: count: %w", err)
	}
	return n, nil
}
