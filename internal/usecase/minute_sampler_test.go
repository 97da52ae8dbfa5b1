package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceFeatures/internal/domain/models"
	mid "PriceFeatures/internal/middleware"
	"PriceFeatures/internal/services/features"
	"PriceFeatures/pkg/metrics"
)

type fakeSink struct {
	got  []models.PricePoint
	errs []error
}

func (s *fakeSink) OnNewPrice(_ context.Context, p models.PricePoint) (models.FeatureRecord, error) {
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return models.FeatureRecord{}, err
		}
	}
	s.got = append(s.got, p)
	return models.FeatureRecord{PricePoint: p}, nil
}

func trade(ts time.Time, price float64) *models.Trade {
	return &models.Trade{Symbol: "BINANCE:BTCUSDT", Timestamp: ts.Unix(), Price: price, Volume: 0.1}
}

func TestMinuteSampler_LastTradeWins(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	s := NewMinuteSampler(sink, "binance", metrics.New(prometheus.NewRegistry()), nil)

	require.NoError(t, s.Process(ctx, trade(t0.Add(5*time.Second), 100)))
	require.NoError(t, s.Process(ctx, trade(t0.Add(50*time.Second), 101)))
	assert.Empty(t, sink.got, "minute still open")

	require.NoError(t, s.Process(ctx, trade(t0.Add(61*time.Second), 102)))
	require.Len(t, sink.got, 1)
	assert.True(t, sink.got[0].Timestamp.Equal(t0))
	assert.Equal(t, 101.0, sink.got[0].Price)
	assert.Equal(t, "binance", sink.got[0].Source)

	// late trade for the closed minute is ignored
	require.NoError(t, s.Process(ctx, trade(t0.Add(59*time.Second), 99)))

	require.NoError(t, s.Flush(ctx))
	require.Len(t, sink.got, 2)
	assert.True(t, sink.got[1].Timestamp.Equal(minute(1)))
	assert.Equal(t, 102.0, sink.got[1].Price)
}

func TestMinuteSampler_RetriesPendingInOrder(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{errs: []error{errors.New("db down")}}
	s := NewMinuteSampler(sink, "binance", metrics.New(prometheus.NewRegistry()), nil)

	require.NoError(t, s.Process(ctx, trade(t0, 100)))
	require.NoError(t, s.Process(ctx, trade(minute(1), 101)))
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, s.Process(ctx, trade(minute(2), 102)))
	require.Len(t, sink.got, 2)
	assert.True(t, sink.got[0].Timestamp.Equal(minute(0)))
	assert.True(t, sink.got[1].Timestamp.Equal(minute(1)))
	assert.Zero(t, s.Pending())
}

func TestMinuteSampler_FailedEmitKeepsLatestPrice(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{errs: []error{errors.New("db down"), errors.New("db down")}}
	rec := metrics.New(prometheus.NewRegistry())
	s := NewMinuteSampler(sink, "binance", rec, nil)
	p := mid.NewRealtimePipeline(s, rec)

	require.NoError(t, p.Process(ctx, trade(t0, 100)))
	require.NoError(t, p.Process(ctx, trade(minute(1), 101)))
	require.NoError(t, p.Process(ctx, trade(minute(1).Add(10*time.Second), 102)))
	assert.Zero(t, p.Buffered(), "accepted trades must not be replayed")
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, p.Process(ctx, trade(minute(1).Add(30*time.Second), 110)))
	require.NoError(t, s.Flush(ctx))

	require.Len(t, sink.got, 2)
	assert.Equal(t, 100.0, sink.got[0].Price)
	assert.True(t, sink.got[1].Timestamp.Equal(minute(1)))
	assert.Equal(t, 110.0, sink.got[1].Price)
}

func TestMinuteSampler_SkippableErrorsAreDropped(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{errs: []error{&features.InsufficientHistoryError{Have: 3, Need: 60}}}
	s := NewMinuteSampler(sink, "binance", metrics.New(prometheus.NewRegistry()), nil)

	require.NoError(t, s.Process(ctx, trade(t0, 100)))
	require.NoError(t, s.Process(ctx, trade(minute(1), 101)))
	assert.Zero(t, s.Pending())
}
