package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceFeatures/internal/domain/models"
	pkgcache "PriceFeatures/pkg/cache"
	"PriceFeatures/pkg/queue"
)

func backfillMessage(t *testing.T, req models.BackfillRequest) queue.Message {
	t.Helper()
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	return queue.Message{ID: "job-1", Type: JobTypeBackfill, Payload: raw}
}

func TestBackfillJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.prices.StoreBatch(ctx, series(90)))

	locks := pkgcache.NewMemoryCache()
	defer locks.Close()
	job := NewBackfillJob(f.svc, locks, nil)
	assert.Equal(t, JobTypeBackfill, job.Type())

	require.NoError(t, job.Handle(ctx, backfillMessage(t, models.BackfillRequest{Limit: 80})))
	stats, _ := f.svc.Stats(ctx)
	assert.Equal(t, int64(80), stats.TotalRecords)

	// lock released after the run
	ok, err := locks.TryLock(ctx, pkgcache.Key("lock", "backfill"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = job.Handle(ctx, backfillMessage(t, models.BackfillRequest{}))
	assert.ErrorIs(t, err, ErrBackfillRunning)
}

func TestBackfillJob_BadPayload(t *testing.T) {
	job := NewBackfillJob(newFixture(t).svc, nil, nil)
	err := job.Handle(context.Background(), queue.Message{Type: JobTypeBackfill, Payload: json.RawMessage(`{"limit":"x"}`)})
	assert.Error(t, err)
}

func TestCleanupJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithRetention(10*time.Minute))
	f.svc.now = func() time.Time { return minute(40) }
	require.NoError(t, f.prices.StoreBatch(ctx, series(40)))
	_, err := f.svc.Backfill(ctx, BackfillOptions{})
	require.NoError(t, err)

	require.NoError(t, NewCleanupJob(f.svc).Handle(ctx, queue.Message{Type: JobTypeCleanup}))
	stats, _ := f.svc.Stats(ctx)
	assert.Equal(t, int64(10), stats.TotalRecords)
}

type countingQueue struct{ types []string }

func (q *countingQueue) Enqueue(_ context.Context, msgType string, _ interface{}) (string, error) {
	q.types = append(q.types, msgType)
	return "id", nil
}

func TestRunRetention(t *testing.T) {
	f := newFixture(t)
	q := &countingQueue{}
	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	RunRetention(ctx, f.svc, q, 20*time.Millisecond, nil)
	require.NotEmpty(t, q.types)
	assert.Equal(t, JobTypeCleanup, q.types[0])
}
