package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

type fakeMarketStore struct {
	mu      sync.Mutex
	markets map[int64]domain.Market
	nextID  int64
	gets    int
	getErr  error
}

func newFakeMarketStore(markets ...domain.Market) *fakeMarketStore {
	s := &fakeMarketStore{markets: make(map[int64]domain.Market)}
	for _, m := range markets {
		s.markets[m.ID] = m
		s.nextID = max(s.nextID, m.ID)
	}
	return s
}

func (s *fakeMarketStore) Upsert(_ context.Context, m domain.Market) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.markets {
		if existing.ExternalID == m.ExternalID {
			m.ID = id
			s.markets[id] = m
			return id, nil
		}
	}
	s.nextID++
	m.ID = s.nextID
	s.markets[m.ID] = m
	return m.ID, nil
}

func (s *fakeMarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) ([]int64, error) {
	ids := make([]int64, 0, len(markets))
	for _, m := range markets {
		id, err := s.Upsert(ctx, m)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeMarketStore) GetByID(_ context.Context, id int64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return domain.Market{}, s.getErr
	}
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *fakeMarketStore) GetByExternalID(_ context.Context, ext string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markets {
		if m.ExternalID == ext {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *fakeMarketStore) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.IsActive {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *fakeMarketStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

type fakeCache struct {
	entries     map[int64]domain.Market
	invalidated []int64
}

func newFakeCache() *fakeCache { return &fakeCache{entries: make(map[int64]domain.Market)} }

func (c *fakeCache) Set(_ context.Context, m domain.Market) error {
	c.entries[m.ID] = m
	return nil
}

func (c *fakeCache) Get(_ context.Context, id int64) (domain.Market, error) {
	m, ok := c.entries[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *fakeCache) Invalidate(_ context.Context, id int64) error {
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

// fakeRelationStore keys rows by canonical pair the way the SQL table does.
type fakeRelationStore struct {
	mu      sync.Mutex
	rows    map[domain.PairKey]domain.MarketRelation
	failFor map[domain.PairKey]bool
	upserts int
}

func newFakeRelationStore(rels ...domain.MarketRelation) *fakeRelationStore {
	s := &fakeRelationStore{rows: make(map[domain.PairKey]domain.MarketRelation), failFor: make(map[domain.PairKey]bool)}
	for _, r := range rels {
		s.rows[r.Key()] = r
	}
	return s
}

var errStoreDown = errors.New("store down")

func (s *fakeRelationStore) Upsert(_ context.Context, r domain.MarketRelation) (domain.MarketRelation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	k := r.Key()
	if s.failFor[k] {
		return domain.MarketRelation{}, errStoreDown
	}
	now := time.Unix(1_700_000_000, 0)
	if prev, ok := s.rows[k]; ok {
		r.CreatedAt = prev.CreatedAt
	} else {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.MarketID1, r.MarketID2 = k.Low, k.High
	s.rows[k] = r
	return r, nil
}

func (s *fakeRelationStore) Get(_ context.Context, k domain.PairKey) (domain.MarketRelation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[k]
	if !ok {
		return domain.MarketRelation{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *fakeRelationStore) ListFor(_ context.Context, id int64, minSim float64, limit int) ([]domain.MarketRelation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MarketRelation
	for k, r := range s.rows {
		if (k.Low == id || k.High == id) && r.Similarity >= minSim {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeRelationStore) Delete(_ context.Context, k domain.PairKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[k]
	delete(s.rows, k)
	return ok, nil
}

func (s *fakeRelationStore) DeleteAllFor(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.rows {
		if k.Low == id || k.High == id {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

func (s *fakeRelationStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

func (s *fakeRelationStore) CountFor(ctx context.Context, id int64) (int64, error) {
	rels, _ := s.ListFor(ctx, id, 0, 0)
	return int64(len(rels)), nil
}

// fakeIndex returns a fixed neighbour list per market.
type fakeIndex struct {
	neighbours map[int64][]domain.SimilarMarket
	err        error
}

func (f *fakeIndex) FindSimilar(_ context.Context, id int64, limit int) ([]domain.SimilarMarket, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.neighbours[id]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeIndex) ListEmbeddedMarketIDs(_ context.Context, limit int) ([]int64, error) {
	ids := make([]int64, 0, len(f.neighbours))
	for id := range f.neighbours {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids, nil
}
