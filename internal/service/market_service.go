package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// MarketService reads and syncs market metadata, fronting the store with a
// cache when one is configured.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// SyncMarkets upserts a batch of markets into the persistent store and
// invalidates cached entries so subsequent reads pick up fresh data. The
// local ids are returned in input order.
func (s *MarketService) SyncMarkets(ctx context.Context, markets []domain.Market) ([]int64, error) {
	if len(markets) == 0 {
		return nil, nil
	}

	ids, err := s.markets.UpsertBatch(ctx, markets)
	if err != nil {
		return nil, fmt.Errorf("market_service: upsert batch: %w", err)
	}

	if s.cache != nil {
		for _, id := range ids {
			if err := s.cache.Invalidate(ctx, id); err != nil {
				// Non-fatal: the entry expires on its own.
				s.logger.WarnContext(ctx, "cache invalidate failed",
					slog.Int64("market_id", id),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	s.logger.DebugContext(ctx, "synced markets", slog.Int("count", len(ids)))
	return ids, nil
}

// GetMarket retrieves a market by id, checking the cache first and falling
// back to the persistent store on a miss. A missing market returns
// domain.ErrNotFound.
func (s *MarketService) GetMarket(ctx context.Context, id int64) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Market{}, err
		}
		return domain.Market{}, fmt.Errorf("market_service: get by id %d: %w", id, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.Int64("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return m, nil
}

// ListActive returns active markets directly from the persistent store.
func (s *MarketService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the persistent store.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}
