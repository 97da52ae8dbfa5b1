package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceFeatures/internal/domain/models"
	"PriceFeatures/internal/repository"
	"PriceFeatures/internal/services/enrichment"
	"PriceFeatures/internal/services/features"
	"PriceFeatures/internal/usecase"
	xhttp "PriceFeatures/pkg/http"
	"PriceFeatures/pkg/metrics"
	"PriceFeatures/pkg/queue"
)

var t0 = time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)

func points(n int) []models.PricePoint {
	out := make([]models.PricePoint, n)
	for i := range out {
		out[i] = models.PricePoint{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Price:     66000 + 50*math.Sin(float64(i)/5),
			Source:    "binance",
		}
	}
	return out
}

type fakeQueue struct {
	enqueued []string
	statuses map[string]*queue.JobStatus
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, _ interface{}) (string, error) {
	q.enqueued = append(q.enqueued, msgType)
	return fmt.Sprintf("job-%d", len(q.enqueued)), nil
}

func (q *fakeQueue) Status(_ context.Context, id string) (*queue.JobStatus, error) {
	if st, ok := q.statuses[id]; ok {
		return st, nil
	}
	return nil, queue.ErrJobNotFound
}

type fakeForecaster struct{ err error }

func (f fakeForecaster) Predict(_ context.Context, rec models.FeatureRecord) (models.Forecast, error) {
	if f.err != nil {
		return models.Forecast{}, f.err
	}
	return models.Forecast{Timestamp: rec.Timestamp, CurrentPrice: rec.Price, PredictedPrice: rec.Price + 10, ProbaUp: 0.7}, nil
}

type env struct {
	e      *echo.Echo
	prices *repository.MemoryPriceStore
	store  *repository.MemoryFeatureStore
	svc    *usecase.EnrichmentService
	jobs   *fakeQueue
}

func newEnv(t *testing.T, opts ...HandlerOption) *env {
	t.Helper()
	engine := features.NewDefault()
	coord, err := enrichment.New(engine)
	require.NoError(t, err)

	v := &env{
		e:      echo.New(),
		prices: repository.NewMemoryPriceStore(),
		store:  repository.NewMemoryFeatureStore(engine.Schema()),
		jobs:   &fakeQueue{statuses: map[string]*queue.JobStatus{}},
	}
	v.svc = usecase.NewEnrichmentService(coord, v.prices, v.store, metrics.New(prometheus.NewRegistry()))
	NewFeaturesEchoHandler(nil, v.svc, opts...).RegisterRoutes(v.e)
	return v
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (v *env) do(t *testing.T, method, target string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)

	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func toRequests(pts []models.PricePoint) []models.PricePointRequest {
	out := make([]models.PricePointRequest, len(pts))
	for i, p := range pts {
		out[i] = models.PricePointRequest{Timestamp: p.Timestamp, Price: p.Price, Source: p.Source}
	}
	return out
}

func TestNames(t *testing.T) {
	v := newEnv(t)
	code, out := v.do(t, http.MethodGet, "/api/features/names", nil)
	require.Equal(t, http.StatusOK, code)

	var got namesResponse
	require.NoError(t, json.Unmarshal(out.Data, &got))
	assert.Equal(t, features.Names(), got.Names)
	assert.Equal(t, len(got.Names), got.Count)
	assert.Equal(t, v.svc.Schema().Version, got.Version)
}

func TestEnrich(t *testing.T) {
	v := newEnv(t)
	code, out := v.do(t, http.MethodPost, "/api/features/enrich",
		models.EnrichBatchRequest{Points: toRequests(points(5))})
	require.Equal(t, http.StatusOK, code)

	var got struct {
		SchemaVersion string                     `json:"schema_version"`
		Count         int                        `json:"count"`
		Records       []models.FeatureRecordWire `json:"records"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &got))
	assert.Equal(t, 5, got.Count)
	require.Len(t, got.Records, 5)
	assert.Nil(t, got.Records[0].Features[features.LagName(1)])
	require.NotNil(t, got.Records[1].Features[features.LagName(1)])
	assert.Equal(t, points(5)[0].Price, *got.Records[1].Features[features.LagName(1)])
}

func TestEnrich_Errors(t *testing.T) {
	v := newEnv(t)

	code, _ := v.do(t, http.MethodPost, "/api/features/enrich", models.EnrichBatchRequest{})
	assert.Equal(t, http.StatusBadRequest, code, "validation")

	pts := points(3)
	pts[2].Timestamp = pts[0].Timestamp
	code, _ = v.do(t, http.MethodPost, "/api/features/enrich", models.EnrichBatchRequest{Points: toRequests(pts)})
	assert.Equal(t, http.StatusBadRequest, code, "duplicate timestamps")
}

func TestEnrichIncremental(t *testing.T) {
	v := newEnv(t)
	pts := points(80)

	code, out := v.do(t, http.MethodPost, "/api/features/enrich/incremental", models.EnrichIncrementalRequest{
		Window: toRequests(pts[:79]),
		Point:  toRequests(pts[79:])[0],
	})
	require.Equal(t, http.StatusOK, code)
	var rec models.FeatureRecordWire
	require.NoError(t, json.Unmarshal(out.Data, &rec))
	assert.True(t, rec.Timestamp.Equal(pts[79].Timestamp))

	code, out = v.do(t, http.MethodPost, "/api/features/enrich/incremental", models.EnrichIncrementalRequest{
		Window: toRequests(pts[:10]),
		Point:  toRequests(pts[10:11])[0],
	})
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, string(out.Data), "ERR_INSUFFICIENT_HISTORY")
}

func TestLatestListStats(t *testing.T) {
	v := newEnv(t)
	code, _ := v.do(t, http.MethodGet, "/api/features/latest", nil)
	assert.Equal(t, http.StatusNotFound, code)

	ctx := context.Background()
	require.NoError(t, v.prices.StoreBatch(ctx, points(30)))
	_, err := v.svc.Backfill(ctx, usecase.BackfillOptions{})
	require.NoError(t, err)

	code, out := v.do(t, http.MethodGet, "/api/features/latest", nil)
	require.Equal(t, http.StatusOK, code)
	var rec models.FeatureRecordWire
	require.NoError(t, json.Unmarshal(out.Data, &rec))
	assert.True(t, rec.Timestamp.Equal(points(30)[29].Timestamp))

	from := t0.Add(10 * time.Minute).Format(time.RFC3339)
	code, out = v.do(t, http.MethodGet, "/api/features?from="+from+"&limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []models.FeatureRecordWire `json:"rows"`
		Total int64                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &list))
	assert.Equal(t, int64(5), list.Total)
	assert.True(t, list.Rows[0].Timestamp.Equal(t0.Add(10*time.Minute)))

	code, _ = v.do(t, http.MethodGet, "/api/features?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, out = v.do(t, http.MethodGet, "/api/features/stats", nil)
	require.Equal(t, http.StatusOK, code)
	var stats models.EnrichmentStats
	require.NoError(t, json.Unmarshal(out.Data, &stats))
	assert.Equal(t, int64(30), stats.TotalRecords)
}

func TestTraining(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	require.NoError(t, v.prices.StoreBatch(ctx, points(40)))
	_, err := v.svc.Backfill(ctx, usecase.BackfillOptions{})
	require.NoError(t, err)

	code, out := v.do(t, http.MethodGet, "/api/features/training?partial=true", nil)
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []json.RawMessage `json:"rows"`
		Total int64             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &list))
	assert.Equal(t, int64(40), list.Total)
}

func TestBackfillEndpoints(t *testing.T) {
	v := newEnv(t)
	code, _ := v.do(t, http.MethodPost, "/api/features/backfill", models.BackfillRequest{})
	assert.Equal(t, http.StatusServiceUnavailable, code, "no queue configured")

	v = newEnv(t)
	h := NewFeaturesEchoHandler(nil, v.svc, WithJobQueue(v.jobs))
	v.e = echo.New()
	h.RegisterRoutes(v.e)

	code, out := v.do(t, http.MethodPost, "/api/features/backfill", models.BackfillRequest{Limit: 1000})
	require.Equal(t, http.StatusAccepted, code)
	var accepted jobAccepted
	require.NoError(t, json.Unmarshal(out.Data, &accepted))
	assert.Equal(t, "job-1", accepted.JobID)
	assert.Equal(t, []string{usecase.JobTypeBackfill}, v.jobs.enqueued)

	code, out = v.do(t, http.MethodPost, "/api/features/backfill",
		models.BackfillRequest{From: t0, To: t0.Add(-time.Hour)})
	assert.Equal(t, http.StatusBadRequest, code)
	var errs []xhttp.AppError
	require.NoError(t, json.Unmarshal(out.Data, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "to", errs[0].Field)
	assert.Contains(t, errs[0].Message, t0.Format(time.RFC3339))

	v.jobs.statuses["job-1"] = &queue.JobStatus{ID: "job-1", State: queue.StateSucceeded, Result: "stored 10"}
	code, out = v.do(t, http.MethodGet, "/api/features/backfill/job-1", nil)
	require.Equal(t, http.StatusOK, code)
	var st queue.JobStatus
	require.NoError(t, json.Unmarshal(out.Data, &st))
	assert.Equal(t, queue.StateSucceeded, st.State)

	code, out = v.do(t, http.MethodGet, "/api/features/backfill/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	errs = nil
	require.NoError(t, json.Unmarshal(out.Data, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "job nope not found", errs[0].Message)
}

func TestForecast(t *testing.T) {
	v := newEnv(t)
	code, _ := v.do(t, http.MethodGet, "/api/features/forecast", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	ctx := context.Background()
	require.NoError(t, v.prices.StoreBatch(ctx, points(20)))
	_, err := v.svc.Backfill(ctx, usecase.BackfillOptions{})
	require.NoError(t, err)

	for _, tc := range []struct {
		name string
		f    fakeForecaster
		want int
	}{
		{name: "ok", want: http.StatusOK},
		{name: "upstream down", f: fakeForecaster{err: errors.New("connection refused")}, want: http.StatusServiceUnavailable},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			NewFeaturesEchoHandler(nil, v.svc, WithForecaster(tc.f)).RegisterRoutes(e)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/features/forecast", nil))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	v := newEnv(t, WithRateLimit(0.001, 2))
	for i := 0; i < 2; i++ {
		code, _ := v.do(t, http.MethodGet, "/api/features/names", nil)
		require.Equal(t, http.StatusOK, code)
	}
	code, _ := v.do(t, http.MethodGet, "/api/features/names", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
}
