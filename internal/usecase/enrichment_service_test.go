package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceFeatures/internal/domain/models"
	drepo "PriceFeatures/internal/domain/repository"
	"PriceFeatures/internal/repository"
	"PriceFeatures/internal/service/cache"
	"PriceFeatures/internal/services/enrichment"
	"PriceFeatures/internal/services/features"
	pkgcache "PriceFeatures/pkg/cache"
	"PriceFeatures/pkg/metrics"
)

var t0 = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func minute(i int) time.Time { return t0.Add(time.Duration(i) * time.Minute) }

func series(n int) []models.PricePoint {
	out := make([]models.PricePoint, n)
	for i := range out {
		x := float64(i)
		out[i] = models.PricePoint{
			Timestamp: minute(i),
			Price:     67000 + 90*math.Sin(x/7) + 25*math.Cos(x/3.1) + 0.5*x,
			Source:    "binance",
		}
	}
	return out
}

type recordingPublisher struct {
	single  []models.FeatureRecord
	batches [][]models.FeatureRecord
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, rec models.FeatureRecord) error {
	p.single = append(p.single, rec)
	return p.err
}

func (p *recordingPublisher) PublishBatch(_ context.Context, recs []models.FeatureRecord) error {
	p.batches = append(p.batches, recs)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	svc    *EnrichmentService
	prices *repository.MemoryPriceStore
	store  *repository.MemoryFeatureStore
	pub    *recordingPublisher
	latest *cache.LatestFeatures
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	engine := features.NewDefault()
	coord, err := enrichment.New(engine)
	require.NoError(t, err)

	mem := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })

	f := &fixture{
		prices: repository.NewMemoryPriceStore(),
		store:  repository.NewMemoryFeatureStore(engine.Schema()),
		pub:    &recordingPublisher{},
		latest: cache.NewLatestFeatures(mem, engine.Schema(), time.Minute),
	}
	opts = append([]ServiceOption{WithPublisher(f.pub), WithLatestCache(f.latest)}, opts...)
	f.svc = NewEnrichmentService(coord, f.prices, f.store, metrics.New(prometheus.NewRegistry()), opts...)
	return f
}

func TestBackfill_ChunksAndIdempotency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithBatchSize(50))
	require.NoError(t, f.prices.StoreBatch(ctx, series(180)))

	res, err := f.svc.Backfill(ctx, BackfillOptions{})
	require.NoError(t, err)
	assert.Equal(t, 180, res.Read)
	assert.Equal(t, 180, res.Enriched)
	assert.Equal(t, 180, res.Stored)
	assert.Equal(t, 4, res.Chunks)
	require.Len(t, f.pub.batches, 4)
	assert.Len(t, f.pub.batches[3], 30)

	latest, ok, err := f.latest.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, latest.Timestamp.Equal(minute(179)))

	again, err := f.svc.Backfill(ctx, BackfillOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Stored, "existing rows are never rewritten")

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(180), stats.TotalRecords)
	assert.Equal(t, f.svc.Schema().Len(), stats.FeatureCount)
}

func TestBackfill_RangeAndLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.prices.StoreBatch(ctx, series(100)))

	res, err := f.svc.Backfill(ctx, BackfillOptions{From: minute(10), To: minute(59), Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Read)

	recs, err := f.svc.Query(ctx, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, recs, 20)
	assert.True(t, recs[0].Timestamp.Equal(minute(40)))
	assert.True(t, recs[19].Timestamp.Equal(minute(59)))
}

func TestBackfill_EmptyHistory(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Backfill(context.Background(), BackfillOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.Read)
	assert.Empty(t, f.pub.batches)
}

func TestOnNewPrice_MatchesBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	all := series(150)
	require.NoError(t, f.prices.StoreBatch(ctx, all[:149]))

	next := all[149]
	next.Timestamp = next.Timestamp.Add(17 * time.Second) // aligned down on the way in
	rec, err := f.svc.OnNewPrice(ctx, next)
	require.NoError(t, err)
	assert.True(t, rec.Timestamp.Equal(minute(149)))

	batch, err := f.svc.EnrichBatch(ctx, all)
	require.NoError(t, err)
	want, ok := batch.Last()
	require.True(t, ok)

	for _, name := range f.svc.Schema().Names() {
		if name == features.FeaturePriceNormalized {
			continue
		}
		w, _ := want.Value(name)
		g, _ := rec.Value(name)
		if w == nil {
			assert.Nil(t, g, name)
			continue
		}
		require.NotNil(t, g, name)
		assert.InDelta(t, *w, *g, 1e-9, name)
	}
	norm, _ := rec.Value(features.FeaturePriceNormalized)
	assert.Nil(t, norm, "no fixed range configured")

	stored, err := f.store.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, stored.Timestamp.Equal(minute(149)))
	require.Len(t, f.pub.single, 1)

	latest, err := f.svc.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, latest.Timestamp.Equal(minute(149)))
}

func TestOnNewPrice_InsufficientHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pts := series(11)
	require.NoError(t, f.prices.StoreBatch(ctx, pts[:10]))

	_, err := f.svc.OnNewPrice(ctx, pts[10])
	require.Error(t, err)
	assert.True(t, errors.Is(err, features.ErrInsufficientHistory))
	assert.True(t, IsSkippable(err))

	var ih *features.InsufficientHistoryError
	require.ErrorAs(t, err, &ih)
	assert.Equal(t, 10, ih.Have)

	// the price is kept so history keeps growing
	stored, err := f.prices.Query(ctx, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 11)
	_, err = f.store.Latest(ctx)
	assert.ErrorIs(t, err, drepo.ErrNotFound)
}

func TestOnNewPrice_PublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	all := series(70)
	require.NoError(t, f.prices.StoreBatch(ctx, all[:69]))

	_, err := f.svc.OnNewPrice(ctx, all[69])
	require.NoError(t, err)
	_, err = f.store.Latest(ctx)
	require.NoError(t, err)
}

func TestLatest_FallsBackToStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Latest(ctx)
	assert.ErrorIs(t, err, drepo.ErrNotFound)

	batch, err := f.svc.EnrichBatch(ctx, series(5))
	require.NoError(t, err)
	_, err = f.store.StoreBatch(ctx, batch.Records)
	require.NoError(t, err)

	rec, err := f.svc.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, rec.Timestamp.Equal(minute(4)))

	_, ok, _ := f.latest.Get(ctx)
	assert.True(t, ok, "store hit warms the cache")
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithRetention(time.Hour))
	f.svc.now = func() time.Time { return minute(150) }
	require.NoError(t, f.prices.StoreBatch(ctx, series(120)))
	_, err := f.svc.Backfill(ctx, BackfillOptions{})
	require.NoError(t, err)

	n, err := f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(90), n)

	stats, _ := f.svc.Stats(ctx)
	assert.Equal(t, int64(30), stats.TotalRecords)

	f.svc.retention = 0
	n, err = f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTrainingSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.prices.StoreBatch(ctx, series(120)))
	_, err := f.svc.Backfill(ctx, BackfillOptions{})
	require.NoError(t, err)

	partial, err := f.svc.TrainingSet(ctx, time.Time{}, time.Time{}, true, 0)
	require.NoError(t, err)
	require.Len(t, partial, 120)
	assert.Nil(t, partial[119].Target.FuturePrice, "no future beyond the horizon")
	require.NotNil(t, partial[0].Target.FuturePrice)
	assert.Equal(t, series(120)[15].Price, *partial[0].Target.FuturePrice)

	complete, err := f.svc.TrainingSet(ctx, time.Time{}, time.Time{}, false, 0)
	require.NoError(t, err)
	require.NotEmpty(t, complete)
	assert.Less(t, len(complete), 120)
	for _, row := range complete {
		assert.True(t, row.Features.CompleteExcept(features.FeaturePriceNormalized))
		norm, _ := row.Features.Value(features.FeaturePriceNormalized)
		assert.Nil(t, norm, "batch-fitted normalization is not exported")
		assert.NotNil(t, row.Target.TrendUp)
	}
}

func TestTrainingSet_IncludesLiveRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	all := series(200)
	require.NoError(t, f.prices.StoreBatch(ctx, all[:70]))
	for _, p := range all[70:] {
		_, err := f.svc.OnNewPrice(ctx, p)
		require.NoError(t, err)
	}

	rows, err := f.svc.TrainingSet(ctx, time.Time{}, time.Time{}, false, 0)
	require.NoError(t, err)
	// the last horizon rows have no future price yet
	assert.Len(t, rows, 130-f.svc.coord.Engine().Config().TargetHorizon)
	for _, row := range rows {
		assert.True(t, row.Features.Timestamp.After(minute(69)))
	}
}

func TestTrainingSet_KeepsFixedNormalization(t *testing.T) {
	ctx := context.Background()
	cfg := features.DefaultConfig()
	cfg.NormalizeMin, cfg.NormalizeMax = 60000, 70000
	engine, err := features.New(cfg)
	require.NoError(t, err)
	coord, err := enrichment.New(engine)
	require.NoError(t, err)
	prices := repository.NewMemoryPriceStore()
	svc := NewEnrichmentService(coord, prices, repository.NewMemoryFeatureStore(engine.Schema()),
		metrics.New(prometheus.NewRegistry()))

	require.NoError(t, prices.StoreBatch(ctx, series(120)))
	_, err = svc.Backfill(ctx, BackfillOptions{})
	require.NoError(t, err)

	rows, err := svc.TrainingSet(ctx, time.Time{}, time.Time{}, false, 0)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, row := range rows {
		assert.True(t, row.Features.Complete())
	}
}

func TestEnrichBatch_Errors(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.EnrichBatch(context.Background(), nil)
	assert.ErrorIs(t, err, features.ErrEmptyInput)

	pts := series(3)
	pts[2].Timestamp = pts[1].Timestamp
	_, err = f.svc.EnrichBatch(context.Background(), pts)
	assert.ErrorIs(t, err, features.ErrNonMonotonicInput)
	assert.True(t, IsSkippable(err))
}
