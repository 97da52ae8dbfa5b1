package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceFeatures/internal/domain/models"
	domrepo "PriceFeatures/internal/domain/repository"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func minute(i int) time.Time { return t0.Add(time.Duration(i) * time.Minute) }

func fp(v float64) *float64 { return &v }

func TestMemoryPriceStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPriceStore()

	// stored out of order on purpose
	for _, i := range []int{3, 0, 2, 1, 4} {
		require.NoError(t, s.Store(ctx, models.PricePoint{Timestamp: minute(i), Price: 100 + float64(i)}))
	}
	require.NoError(t, s.Store(ctx, models.PricePoint{Timestamp: minute(2), Price: 999}))

	all, err := s.Query(ctx, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, p := range all {
		assert.True(t, p.Timestamp.Equal(minute(i)))
	}
	assert.Equal(t, 999.0, all[2].Price)

	ranged, _ := s.Query(ctx, minute(1), minute(3), 2)
	require.Len(t, ranged, 2)
	assert.True(t, ranged[0].Timestamp.Equal(minute(1)))

	before, _ := s.LatestBefore(ctx, minute(4), 2)
	require.Len(t, before, 2)
	assert.True(t, before[0].Timestamp.Equal(minute(2)))
	assert.True(t, before[1].Timestamp.Equal(minute(3)))
}

func TestMemoryFeatureStore(t *testing.T) {
	ctx := context.Background()
	schema := models.NewFeatureSchema("v1-x", []string{"a", "b"})
	s := NewMemoryFeatureStore(schema)

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, domrepo.ErrNotFound)

	rec := func(i int) models.FeatureRecord {
		return models.FeatureRecord{
			PricePoint: models.PricePoint{Timestamp: minute(i), Price: float64(i)},
			Schema:     schema,
			Values:     []*float64{fp(float64(i)), nil},
		}
	}

	n, err := s.StoreBatch(ctx, []models.FeatureRecord{rec(0), rec(1), rec(2)})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// existing timestamps are kept, not overwritten
	dup := rec(1)
	dup.Price = 12345
	n, _ = s.StoreBatch(ctx, []models.FeatureRecord{dup, rec(3)})
	assert.Equal(t, 1, n)

	got, _ := s.Query(ctx, minute(1), minute(1), 10)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Price)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, latest.Timestamp.Equal(minute(3)))

	st, _ := s.Stats(ctx)
	assert.Equal(t, int64(4), st.TotalRecords)
	assert.Equal(t, 2, st.FeatureCount)
	assert.Equal(t, "v1-x", st.SchemaVersion)
	assert.True(t, st.Oldest.Equal(minute(0)))
	assert.True(t, st.Newest.Equal(minute(3)))

	deleted, _ := s.DeleteBefore(ctx, minute(2))
	assert.Equal(t, int64(2), deleted)
	st, _ = s.Stats(ctx)
	assert.Equal(t, int64(2), st.TotalRecords)
}

func TestMemoryFeatureStore_EmptyStats(t *testing.T) {
	s := NewMemoryFeatureStore(models.NewFeatureSchema("v", []string{"a"}))
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.TotalRecords)
	assert.Nil(t, st.Oldest)
}
