package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "PriceFeatures/internal/domain/models"
	domrepo "PriceFeatures/internal/domain/repository"
	domsvc "PriceFeatures/internal/domain/service"
	"PriceFeatures/internal/service/metrics"
	"PriceFeatures/internal/service/ratelimit"
	"PriceFeatures/internal/services/features"
	"PriceFeatures/internal/usecase"
	xhttp "PriceFeatures/pkg/http"
	xlogger "PriceFeatures/pkg/logger"
	"PriceFeatures/pkg/queue"
)

// JobQueue enqueues background jobs and reports their status.
type JobQueue interface {
	queue.Publisher
	queue.StatusReader
}

// FeaturesEchoHandler serves the feature API.
type FeaturesEchoHandler struct {
	logger     *xlogger.Logger
	svc        *usecase.EnrichmentService
	jobs       JobQueue
	forecaster domsvc.Forecaster
	limiter    *ratelimit.Limiter
	rps        float64
	burst      int
}

type HandlerOption func(*FeaturesEchoHandler)

// WithJobQueue enables the backfill endpoints.
func WithJobQueue(q JobQueue) HandlerOption {
	return func(h *FeaturesEchoHandler) { h.jobs = q }
}

// WithForecaster enables the forecast endpoint.
func WithForecaster(f domsvc.Forecaster) HandlerOption {
	return func(h *FeaturesEchoHandler) { h.forecaster = f }
}

// WithRateLimit limits requests per client IP. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) HandlerOption {
	return func(h *FeaturesEchoHandler) {
		h.rps = rps
		h.burst = burst
	}
}

func NewFeaturesEchoHandler(logger *xlogger.Logger, svc *usecase.EnrichmentService, opts ...HandlerOption) *FeaturesEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &FeaturesEchoHandler{logger: logger, svc: svc, limiter: ratelimit.New()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *FeaturesEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/features", ratelimit.Middleware(h.limiter, h.rps, h.burst))
	g.GET("", h.List)
	g.GET("/names", h.Names)
	g.GET("/latest", h.Latest)
	g.GET("/stats", h.Stats)
	g.GET("/training", h.Training)
	g.GET("/forecast", h.Forecast)
	g.POST("/enrich", h.Enrich)
	g.POST("/enrich/incremental", h.EnrichIncremental)
	g.POST("/backfill", h.Backfill)
	g.GET("/backfill/:id", h.BackfillStatus)
}

type namesResponse struct {
	Version string   `json:"version"`
	Count   int      `json:"count"`
	Names   []string `json:"names"`
}

func (h *FeaturesEchoHandler) Names(c echo.Context) error {
	schema := h.svc.Schema()
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=300")
	return xhttp.SuccessResponse(c, namesResponse{Version: schema.Version, Count: schema.Len(), Names: schema.Names()})
}

func (h *FeaturesEchoHandler) Enrich(c echo.Context) error {
	start := time.Now()
	req := &models.EnrichBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Observe("enrich", start, "validation")
		return xhttp.ValidationErrorResponse(c, verr)
	}
	points := make([]models.PricePoint, len(req.Points))
	for i, p := range req.Points {
		points[i] = p.ToPricePoint()
	}

	batch, err := h.svc.EnrichBatch(c.Request().Context(), points)
	if err != nil {
		return h.fail(c, "enrich", start, err)
	}
	metrics.Observe("enrich", start, "")
	return xhttp.SuccessResponse(c, batch)
}

func (h *FeaturesEchoHandler) EnrichIncremental(c echo.Context) error {
	start := time.Now()
	req := &models.EnrichIncrementalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Observe("enrich_incremental", start, "validation")
		return xhttp.ValidationErrorResponse(c, verr)
	}
	window := make([]models.PricePoint, len(req.Window))
	for i, p := range req.Window {
		window[i] = p.ToPricePoint()
	}

	rec, err := h.svc.EnrichIncremental(c.Request().Context(), window, req.Point.ToPricePoint())
	if err != nil {
		return h.fail(c, "enrich_incremental", start, err)
	}
	metrics.Observe("enrich_incremental", start, "")
	return xhttp.SuccessResponse(c, rec)
}

func (h *FeaturesEchoHandler) Latest(c echo.Context) error {
	start := time.Now()
	rec, err := h.svc.Latest(c.Request().Context())
	if err != nil {
		return h.fail(c, "latest", start, err)
	}
	metrics.Observe("latest", start, "")
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, rec)
}

func (h *FeaturesEchoHandler) List(c echo.Context) error {
	start := time.Now()
	req := &models.FeatureRangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationErrorResponse(c, verr)
	}
	recs, err := h.svc.Query(c.Request().Context(), req.From, req.To, req.Limit)
	if err != nil {
		return h.fail(c, "list", start, err)
	}
	metrics.Observe("list", start, "")
	if recs == nil {
		recs = []models.FeatureRecord{}
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *FeaturesEchoHandler) Stats(c echo.Context) error {
	start := time.Now()
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return h.fail(c, "stats", start, err)
	}
	metrics.Observe("stats", start, "")
	return xhttp.SuccessResponse(c, stats)
}

func (h *FeaturesEchoHandler) Training(c echo.Context) error {
	start := time.Now()
	req := &models.TrainingSetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationErrorResponse(c, verr)
	}
	rows, err := h.svc.TrainingSet(c.Request().Context(), req.From, req.To, req.Partial, req.Limit)
	if err != nil {
		return h.fail(c, "training", start, err)
	}
	metrics.Observe("training", start, "")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *FeaturesEchoHandler) Forecast(c echo.Context) error {
	start := time.Now()
	if h.forecaster == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("forecast service not configured"))
	}
	rec, err := h.svc.Latest(c.Request().Context())
	if err != nil {
		return h.fail(c, "forecast", start, err)
	}
	fc, err := h.forecaster.Predict(c.Request().Context(), rec)
	if err != nil {
		h.logger.Error("forecast failed", xlogger.Error(err))
		metrics.Observe("forecast", start, "upstream")
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("forecast service unavailable").WithError(err))
	}
	metrics.Observe("forecast", start, "")
	return xhttp.SuccessResponse(c, fc)
}

type jobAccepted struct {
	JobID string `json:"job_id"`
	Type  string `json:"type"`
}

func (h *FeaturesEchoHandler) Backfill(c echo.Context) error {
	start := time.Now()
	if h.jobs == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("job queue not configured"))
	}
	req := &models.BackfillRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationErrorResponse(c, verr)
	}
	if !req.From.IsZero() && !req.To.IsZero() && req.To.Before(req.From) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("to %s is before from %s",
			req.To.Format(time.RFC3339), req.From.Format(time.RFC3339)).WithField("to"))
	}
	id, err := h.jobs.Enqueue(c.Request().Context(), usecase.JobTypeBackfill, req)
	if err != nil {
		return h.fail(c, "backfill", start, err)
	}
	h.logger.Info("backfill queued", xlogger.String("job_id", id), xlogger.Int("limit", req.Limit))
	metrics.Observe("backfill", start, "")
	return xhttp.AcceptedResponse(c, jobAccepted{JobID: id, Type: usecase.JobTypeBackfill})
}

func (h *FeaturesEchoHandler) BackfillStatus(c echo.Context) error {
	start := time.Now()
	if h.jobs == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("job queue not configured"))
	}
	id := c.Param("id")
	st, err := h.jobs.Status(c.Request().Context(), id)
	if errors.Is(err, queue.ErrJobNotFound) {
		metrics.Observe("backfill_status", start, "not_found")
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("job %s not found", id))
	}
	if err != nil {
		return h.fail(c, "backfill_status", start, err)
	}
	return xhttp.SuccessResponse(c, st)
}

// fail maps domain errors onto API errors and records the outcome.
func (h *FeaturesEchoHandler) fail(c echo.Context, endpoint string, start time.Time, err error) error {
	appErr, kind := toAppError(err)
	metrics.Observe(endpoint, start, kind)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(endpoint+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(endpoint+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) (*xhttp.AppError, string) {
	var ih *features.InsufficientHistoryError
	switch {
	case errors.As(err, &ih):
		return xhttp.UnprocessableError(xhttp.CodeInsufficientHistory, ih.Error()).
			WithParam("have", ih.Have).
			WithParam("need", ih.Need), "insufficient_history"
	case errors.Is(err, features.ErrEmptyInput),
		errors.Is(err, features.ErrNonMonotonicInput),
		errors.Is(err, features.ErrInvalidPrice):
		return xhttp.BadRequestError(err.Error()).WithError(err), "invalid_input"
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.NotFoundError("no enriched records yet"), "not_found"
	case errors.Is(err, queue.ErrJobNotFound):
		return xhttp.NotFoundError("job not found"), "not_found"
	case errors.Is(err, queue.ErrNotRunning):
		return xhttp.ServiceUnavailableError("job queue not running"), "unavailable"
	default:
		return xhttp.InternalError("internal error").WithError(err), "internal"
	}
}
