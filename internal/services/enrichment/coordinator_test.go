package enrichment

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceFeatures/internal/domain/models"
	"PriceFeatures/internal/services/features"
)

var t0 = time.Date(2024, 6, 30, 23, 0, 0, 0, time.UTC)

func history(n int) []models.PricePoint {
	out := make([]models.PricePoint, n)
	for i := range out {
		x := float64(i)
		out[i] = models.PricePoint{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Price:     61000 + 120*math.Sin(x/9) + 35*math.Cos(x/2.7) - 0.8*x,
			Source:    "binance",
		}
	}
	return out
}

func newCoordinator(t *testing.T, cfg features.Config, opts ...Option) *Coordinator {
	t.Helper()
	engine, err := features.New(cfg)
	require.NoError(t, err)
	c, err := New(engine, opts...)
	require.NoError(t, err)
	return c
}

func assertSameFeatures(t *testing.T, want, got models.FeatureRecord, skip ...string) {
	t.Helper()
	require.Equal(t, want.Timestamp, got.Timestamp)
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	for _, name := range want.Schema.Names() {
		if skipped[name] {
			continue
		}
		w, _ := want.Value(name)
		g, ok := got.Value(name)
		require.Truef(t, ok, "feature %s missing", name)
		if w == nil {
			assert.Nilf(t, g, "%s at %s", name, want.Timestamp)
			continue
		}
		if assert.NotNilf(t, g, "%s at %s", name, want.Timestamp) {
			assert.InDeltaf(t, *w, *g, 1e-9, "%s at %s", name, want.Timestamp)
		}
	}
}

func TestIncrementalMatchesBatch(t *testing.T) {
	c := newCoordinator(t, features.DefaultConfig())
	hist := history(180)

	batch, err := c.EnrichBatch(hist)
	require.NoError(t, err)
	require.Equal(t, len(hist), batch.Len())

	for _, i := range []int{120, 121, 150, 179} {
		t.Run(hist[i].Timestamp.Format("15:04"), func(t *testing.T) {
			for _, size := range []int{60, 75, i} {
				rec, err := c.EnrichIncremental(hist[i-size:i], hist[i])
				require.NoError(t, err)
				assertSameFeatures(t, batch.Records[i], rec, features.FeaturePriceNormalized)
				assert.Nil(t, mustValue(t, rec, features.FeaturePriceNormalized))
			}
		})
	}
}

func TestIncrementalFixedRangeNormalized(t *testing.T) {
	cfg := features.DefaultConfig()
	cfg.NormalizeMin, cfg.NormalizeMax = 60000, 62000
	c := newCoordinator(t, cfg)
	hist := history(130)

	batch, err := c.EnrichBatch(hist)
	require.NoError(t, err)
	rec, err := c.EnrichIncremental(hist[60:129], hist[129])
	require.NoError(t, err)

	assertSameFeatures(t, batch.Records[129], rec)
}

func TestIncrementalInsufficientHistory(t *testing.T) {
	c := newCoordinator(t, features.DefaultConfig())
	hist := history(60)

	_, err := c.EnrichIncremental(hist[:59], hist[59])

	require.Error(t, err)
	assert.True(t, errors.Is(err, features.ErrInsufficientHistory))
	var ih *features.InsufficientHistoryError
	require.True(t, errors.As(err, &ih))
	assert.Equal(t, 59, ih.Have)
	assert.Equal(t, 60, ih.Need)
}

func TestIncrementalRejectsStalePoint(t *testing.T) {
	c := newCoordinator(t, features.DefaultConfig())
	hist := history(80)

	_, err := c.EnrichIncremental(hist[:79], hist[78])

	assert.ErrorIs(t, err, features.ErrNonMonotonicInput)
}

func TestIncrementalTrimsContext(t *testing.T) {
	c := newCoordinator(t, features.DefaultConfig(), WithContextSize(70))
	hist := history(200)

	full, err := c.EnrichIncremental(hist[:199], hist[199])
	require.NoError(t, err)
	trimmed, err := c.EnrichIncremental(hist[129:199], hist[199])
	require.NoError(t, err)

	assertSameFeatures(t, trimmed, full)
}

func TestEnrichBatchSortsInput(t *testing.T) {
	c := newCoordinator(t, features.DefaultConfig())
	hist := history(10)
	shuffled := []models.PricePoint{hist[3], hist[0], hist[9], hist[1], hist[2], hist[8], hist[4], hist[7], hist[5], hist[6]}

	batch, err := c.EnrichBatch(shuffled)
	require.NoError(t, err)

	for i, rec := range batch.Records {
		assert.Equal(t, hist[i].Timestamp, rec.Timestamp)
	}
	assert.Equal(t, hist[3].Timestamp, shuffled[0].Timestamp, "input is not reordered in place")
}

func TestEnrichBatchErrors(t *testing.T) {
	c := newCoordinator(t, features.DefaultConfig())

	_, err := c.EnrichBatch(nil)
	assert.ErrorIs(t, err, features.ErrEmptyInput)

	hist := history(5)
	_, err = c.EnrichBatch(append(hist, hist[2]))
	assert.ErrorIs(t, err, features.ErrNonMonotonicInput)
}

func TestNewValidatesWindow(t *testing.T) {
	engine := features.NewDefault()

	_, err := New(engine, WithMinHistory(30))
	assert.ErrorIs(t, err, features.ErrInvalidConfig)

	_, err = New(engine, WithContextSize(50))
	assert.ErrorIs(t, err, features.ErrInvalidConfig)

	c, err := New(engine, WithMinHistory(90), WithContextSize(150))
	require.NoError(t, err)
	assert.Equal(t, 90, c.MinHistory())
	assert.Equal(t, 150, c.ContextSize())
}

func mustValue(t *testing.T, rec models.FeatureRecord, name string) *float64 {
	t.Helper()
	v, ok := rec.Value(name)
	require.True(t, ok)
	return v
}
