package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceFeatures/internal/domain/models"
	drepo "PriceFeatures/internal/domain/repository"
	"PriceFeatures/internal/services/enrichment"
	"PriceFeatures/internal/services/features"
	applogger "PriceFeatures/pkg/logger"
)

// LatestCache holds the newest enriched record.
type LatestCache interface {
	Set(ctx context.Context, rec models.FeatureRecord) error
	Get(ctx context.Context) (models.FeatureRecord, bool, error)
}

// BackfillOptions bounds a backfill run. Zero times are open bounds and
// Limit keeps only the most recent points when positive.
type BackfillOptions struct {
	From  time.Time
	To    time.Time
	Limit int
}

// EnrichmentService drives the coordinator against storage: historical
// backfill, per-minute enrichment of new prices, retention and reads.
type EnrichmentService struct {
	coord     *enrichment.Coordinator
	prices    drepo.PriceStore
	store     drepo.FeatureStore
	pub       drepo.Publisher
	latest    LatestCache
	metrics   drepo.Metrics
	log       *applogger.Logger
	batchSize int
	retention time.Duration
	now       func() time.Time
}

type ServiceOption func(*EnrichmentService)

func WithPublisher(p drepo.Publisher) ServiceOption {
	return func(s *EnrichmentService) {
		if p != nil {
			s.pub = p
		}
	}
}

func WithLatestCache(c LatestCache) ServiceOption {
	return func(s *EnrichmentService) { s.latest = c }
}

// WithBatchSize sets the backfill write chunk size.
func WithBatchSize(n int) ServiceOption {
	return func(s *EnrichmentService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithRetention sets how long feature rows are kept. Zero disables cleanup.
func WithRetention(d time.Duration) ServiceOption {
	return func(s *EnrichmentService) { s.retention = d }
}

func WithServiceLogger(l *applogger.Logger) ServiceOption {
	return func(s *EnrichmentService) {
		if l != nil {
			s.log = l
		}
	}
}

func NewEnrichmentService(
	coord *enrichment.Coordinator,
	prices drepo.PriceStore,
	store drepo.FeatureStore,
	metrics drepo.Metrics,
	opts ...ServiceOption,
) *EnrichmentService {
	s := &EnrichmentService{
		coord:     coord,
		prices:    prices,
		store:     store,
		pub:       noopPublisher{},
		metrics:   metrics,
		log:       applogger.Nop(),
		batchSize: 1000,
		retention: 90 * 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EnrichmentService) Schema() *models.FeatureSchema { return s.coord.Engine().Schema() }

// EnrichBatch enriches caller-supplied points without touching storage.
func (s *EnrichmentService) EnrichBatch(_ context.Context, points []models.PricePoint) (models.EnrichedBatch, error) {
	start := time.Now()
	batch, err := s.coord.EnrichBatch(points)
	s.metrics.RecordLatency("enrich_batch", time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordError("enrich_batch")
		return models.EnrichedBatch{}, err
	}
	s.metrics.RecordEnriched("batch", batch.Len())
	return batch, nil
}

// EnrichIncremental enriches p against a caller-supplied window.
func (s *EnrichmentService) EnrichIncremental(_ context.Context, window []models.PricePoint, p models.PricePoint) (models.FeatureRecord, error) {
	start := time.Now()
	rec, err := s.coord.EnrichIncremental(window, p)
	s.metrics.RecordLatency("enrich_incremental", time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordError("enrich_incremental")
		return models.FeatureRecord{}, err
	}
	s.metrics.RecordEnriched("incremental", 1)
	return rec, nil
}

// Backfill enriches the stored price history in one pass and writes the
// records in chunks. Rows that already exist are left untouched.
func (s *EnrichmentService) Backfill(ctx context.Context, opts BackfillOptions) (models.BackfillResult, error) {
	start := time.Now()
	var res models.BackfillResult

	from, to := features.AlignRange(opts.From, opts.To)
	points, err := s.prices.Query(ctx, from, to, 0)
	if err != nil {
		return res, fmt.Errorf("backfill: load prices: %w", err)
	}
	if opts.Limit > 0 && len(points) > opts.Limit {
		points = points[len(points)-opts.Limit:]
	}
	res.Read = len(points)
	if len(points) == 0 {
		s.log.Warn("backfill: no price history in range",
			applogger.Time("from", from), applogger.Time("to", to))
		return res, nil
	}

	s.log.Info("backfill: enriching",
		applogger.Int("points", len(points)),
		applogger.Time("first", points[0].Timestamp),
		applogger.Time("last", points[len(points)-1].Timestamp))

	batch, err := s.EnrichBatch(ctx, points)
	if err != nil {
		return res, fmt.Errorf("backfill: %w", err)
	}
	res.Enriched = batch.Len()

	for i := 0; i < len(batch.Records); i += s.batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := i + s.batchSize
		if end > len(batch.Records) {
			end = len(batch.Records)
		}
		chunk := batch.Records[i:end]
		n, err := s.store.StoreBatch(ctx, chunk)
		if err != nil {
			s.metrics.RecordError("backfill_store")
			return res, fmt.Errorf("backfill: store chunk %d: %w", res.Chunks, err)
		}
		res.Stored += n
		res.Chunks++
		if err := s.pub.PublishBatch(ctx, chunk); err != nil {
			s.metrics.RecordError("publish")
			s.log.Warn("backfill: publish chunk failed", applogger.Int("chunk", res.Chunks), applogger.Error(err))
		}
		s.log.Info("backfill: progress",
			applogger.Int("written", end),
			applogger.Int("total", len(batch.Records)),
			applogger.Int("stored", res.Stored))
	}

	if last, ok := batch.Last(); ok {
		s.cacheLatest(ctx, last)
	}
	res.Duration = time.Since(start)
	res.Seconds = res.Duration.Seconds()
	s.metrics.RecordLatency("backfill", res.Seconds)
	s.log.Info("backfill: done",
		applogger.Int("read", res.Read),
		applogger.Int("stored", res.Stored),
		applogger.Int("chunks", res.Chunks),
		applogger.Duration("took", res.Duration))
	return res, nil
}

// OnNewPrice persists a new minute price and enriches it against the stored
// context. The price is stored even when there is not enough history yet; in
// that case ErrInsufficientHistory is returned.
func (s *EnrichmentService) OnNewPrice(ctx context.Context, p models.PricePoint) (models.FeatureRecord, error) {
	p.Timestamp = features.AlignToMinute(p.Timestamp)
	s.metrics.RecordLastPrice(p.Source, p.Price)

	window, err := s.prices.LatestBefore(ctx, p.Timestamp, s.coord.ContextSize())
	if err != nil {
		return models.FeatureRecord{}, fmt.Errorf("load context: %w", err)
	}
	if err := s.prices.Store(ctx, p); err != nil {
		s.metrics.RecordError("price_store")
		return models.FeatureRecord{}, fmt.Errorf("store price: %w", err)
	}

	rec, err := s.EnrichIncremental(ctx, window, p)
	if err != nil {
		return models.FeatureRecord{}, err
	}
	if _, err := s.store.StoreBatch(ctx, []models.FeatureRecord{rec}); err != nil {
		s.metrics.RecordError("feature_store")
		return models.FeatureRecord{}, fmt.Errorf("store features: %w", err)
	}
	s.cacheLatest(ctx, rec)
	if err := s.pub.Publish(ctx, rec); err != nil {
		s.metrics.RecordError("publish")
		s.log.Warn("publish features failed", applogger.Time("timestamp", rec.Timestamp), applogger.Error(err))
	}
	return rec, nil
}

func (s *EnrichmentService) cacheLatest(ctx context.Context, rec models.FeatureRecord) {
	if s.latest == nil {
		return
	}
	if err := s.latest.Set(ctx, rec); err != nil {
		s.metrics.RecordError("cache")
		s.log.Warn("cache latest failed", applogger.Error(err))
	}
}

// Latest returns the newest record, from the cache when possible.
func (s *EnrichmentService) Latest(ctx context.Context) (models.FeatureRecord, error) {
	if s.latest != nil {
		rec, ok, err := s.latest.Get(ctx)
		if err != nil {
			s.log.Warn("cache read failed", applogger.Error(err))
		}
		if ok {
			return rec, nil
		}
	}
	rec, err := s.store.Latest(ctx)
	if err != nil {
		return models.FeatureRecord{}, err
	}
	s.cacheLatest(ctx, rec)
	return rec, nil
}

func (s *EnrichmentService) Query(ctx context.Context, from, to time.Time, limit int) ([]models.FeatureRecord, error) {
	from, to = features.AlignRange(from, to)
	return s.store.Query(ctx, from, to, limit)
}

func (s *EnrichmentService) Stats(ctx context.Context) (models.EnrichmentStats, error) {
	return s.store.Stats(ctx)
}

// Cleanup deletes feature rows older than the retention period.
func (s *EnrichmentService) Cleanup(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-s.retention)
	n, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		s.metrics.RecordError("cleanup")
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	s.log.Info("retention cleanup", applogger.Time("cutoff", cutoff), applogger.Int64("deleted", n))
	return n, nil
}

// TrainingSet joins stored features with targets computed over the price
// history. Rows missing a feature or a target are dropped unless partial.
// Without a fixed normalize range price_normalized is batch-relative, so it
// is nulled in every row and ignored for completeness, matching what the
// live path stores.
func (s *EnrichmentService) TrainingSet(ctx context.Context, from, to time.Time, partial bool, limit int) ([]models.TrainingRow, error) {
	from, to = features.AlignRange(from, to)
	recs, err := s.store.Query(ctx, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("training set: load features: %w", err)
	}
	if len(recs) == 0 {
		return []models.TrainingRow{}, nil
	}

	horizon := s.coord.Engine().Config().TargetHorizon
	last := recs[len(recs)-1].Timestamp
	points, err := s.prices.Query(ctx, recs[0].Timestamp, last.Add(time.Duration(horizon)*time.Minute), 0)
	if err != nil {
		return nil, fmt.Errorf("training set: load prices: %w", err)
	}
	byTime := make(map[int64]models.Target, len(points))
	for _, t := range features.Targets(points, horizon) {
		byTime[t.Timestamp.UnixNano()] = t
	}

	var omit []string
	if !s.coord.Engine().ReferenceNormalizer().Fixed() {
		omit = []string{features.FeaturePriceNormalized}
	}

	rows := make([]models.TrainingRow, 0, len(recs))
	for _, rec := range recs {
		target, ok := byTime[rec.Timestamp.UnixNano()]
		if !ok {
			target = models.Target{Timestamp: rec.Timestamp}
		}
		if !partial && (!rec.CompleteExcept(omit...) || target.FuturePrice == nil) {
			continue
		}
		if omit != nil {
			rec = rec.Omit(omit...)
		}
		rows = append(rows, models.TrainingRow{Features: rec, Target: target})
	}
	return rows, nil
}

// IsSkippable reports errors that mean a point cannot be enriched yet or
// ever, as opposed to infrastructure failures worth retrying.
func IsSkippable(err error) bool {
	return errors.Is(err, features.ErrInsufficientHistory) ||
		errors.Is(err, features.ErrNonMonotonicInput) ||
		errors.Is(err, features.ErrInvalidPrice)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, models.FeatureRecord) error        { return nil }
func (noopPublisher) PublishBatch(context.Context, []models.FeatureRecord) error { return nil }
func (noopPublisher) Close() error                                               { return nil }
