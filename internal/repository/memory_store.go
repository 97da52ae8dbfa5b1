package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"PriceFeatures/internal/domain/models"
	domrepo "PriceFeatures/internal/domain/repository"
)

// MemoryPriceStore keeps the price history in process. Used when ClickHouse
// is disabled and in tests.
type MemoryPriceStore struct {
	mu     sync.RWMutex
	points map[int64]models.PricePoint
}

func NewMemoryPriceStore() *MemoryPriceStore {
	return &MemoryPriceStore{points: make(map[int64]models.PricePoint)}
}

func (s *MemoryPriceStore) Init(context.Context) error { return nil }

// Store upserts p; the latest write for a timestamp wins, like a
// ReplacingMergeTree after merge.
func (s *MemoryPriceStore) Store(_ context.Context, p models.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[p.Timestamp.UnixNano()] = p
	return nil
}

func (s *MemoryPriceStore) StoreBatch(ctx context.Context, points []models.PricePoint) error {
	for _, p := range points {
		_ = s.Store(ctx, p)
	}
	return nil
}

func (s *MemoryPriceStore) Query(_ context.Context, from, to time.Time, limit int) ([]models.PricePoint, error) {
	out := s.sorted(func(p models.PricePoint) bool { return inRange(p.Timestamp, from, to) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryPriceStore) LatestBefore(_ context.Context, ts time.Time, n int) ([]models.PricePoint, error) {
	out := s.sorted(func(p models.PricePoint) bool { return p.Timestamp.Before(ts) })
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (s *MemoryPriceStore) sorted(keep func(models.PricePoint) bool) []models.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PricePoint, 0, len(s.points))
	for _, p := range s.points {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *MemoryPriceStore) Health(context.Context) error { return nil }

func (s *MemoryPriceStore) Close() error { return nil }

// MemoryFeatureStore is an append-only in-process FeatureStore.
type MemoryFeatureStore struct {
	mu      sync.RWMutex
	schema  *models.FeatureSchema
	records map[int64]models.FeatureRecord
}

func NewMemoryFeatureStore(schema *models.FeatureSchema) *MemoryFeatureStore {
	return &MemoryFeatureStore{schema: schema, records: make(map[int64]models.FeatureRecord)}
}

func (s *MemoryFeatureStore) Init(context.Context) error { return nil }

// StoreBatch inserts records whose timestamp is not stored yet and returns
// how many were inserted.
func (s *MemoryFeatureStore) StoreBatch(_ context.Context, records []models.FeatureRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range records {
		key := r.Timestamp.UnixNano()
		if _, exists := s.records[key]; exists {
			continue
		}
		r.Values = r.Vector()
		s.records[key] = r
		n++
	}
	return n, nil
}

func (s *MemoryFeatureStore) Query(_ context.Context, from, to time.Time, limit int) ([]models.FeatureRecord, error) {
	out := s.sorted(func(r models.FeatureRecord) bool { return inRange(r.Timestamp, from, to) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryFeatureStore) Latest(context.Context) (models.FeatureRecord, error) {
	out := s.sorted(func(models.FeatureRecord) bool { return true })
	if len(out) == 0 {
		return models.FeatureRecord{}, domrepo.ErrNotFound
	}
	return out[len(out)-1], nil
}

func (s *MemoryFeatureStore) Stats(context.Context) (models.EnrichmentStats, error) {
	out := s.sorted(func(models.FeatureRecord) bool { return true })
	st := models.EnrichmentStats{
		TotalRecords:  int64(len(out)),
		FeatureCount:  s.schema.Len(),
		SchemaVersion: s.schema.Version,
	}
	if len(out) > 0 {
		oldest, newest := out[0].Timestamp, out[len(out)-1].Timestamp
		st.Oldest, st.Newest = &oldest, &newest
	}
	return st, nil
}

func (s *MemoryFeatureStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, r := range s.records {
		if r.Timestamp.Before(cutoff) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryFeatureStore) sorted(keep func(models.FeatureRecord) bool) []models.FeatureRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FeatureRecord, 0, len(s.records))
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *MemoryFeatureStore) Health(context.Context) error { return nil }

func (s *MemoryFeatureStore) Close() error { return nil }

// inRange treats zero bounds as open.
func inRange(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && ts.After(to) {
		return false
	}
	return true
}
