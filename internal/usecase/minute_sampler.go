package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PriceFeatures/internal/domain/models"
	drepo "PriceFeatures/internal/domain/repository"
	"PriceFeatures/internal/services/features"
	applogger "PriceFeatures/pkg/logger"
)

// PriceSink receives one price per closed minute.
type PriceSink interface {
	OnNewPrice(ctx context.Context, p models.PricePoint) (models.FeatureRecord, error)
}

// MinuteSampler buckets trades into UTC minutes and emits the last trade of
// each minute once a trade from a later minute arrives. Late trades for an
// already closed minute are dropped. Closed minutes that fail to emit stay
// pending and are retried, in order, on the next trade.
type MinuteSampler struct {
	sink    PriceSink
	source  string
	metrics drepo.Metrics
	log     *applogger.Logger

	mu      sync.Mutex
	current *models.PricePoint
	lastTS  time.Time
	pending []models.PricePoint

	drainMu sync.Mutex
}

func NewMinuteSampler(sink PriceSink, source string, metrics drepo.Metrics, l *applogger.Logger) *MinuteSampler {
	if l == nil {
		l = applogger.Nop()
	}
	return &MinuteSampler{sink: sink, source: source, metrics: metrics, log: l}
}

// Process implements middleware.Proc. An accepted trade never returns an
// error: emit failures leave the closed minutes pending for the next call.
func (s *MinuteSampler) Process(ctx context.Context, t *models.Trade) error {
	if t == nil {
		return fmt.Errorf("trade is nil")
	}
	minute := features.AlignToMinute(time.Unix(t.Timestamp, 0))

	s.mu.Lock()
	if !s.lastTS.IsZero() && !minute.After(s.lastTS) {
		s.mu.Unlock()
		s.metrics.RecordError("sampler_late_trade")
		return nil
	}
	if s.current != nil && minute.After(s.current.Timestamp) {
		s.closeLocked()
	}
	if s.current == nil {
		s.current = &models.PricePoint{Timestamp: minute, Source: s.source}
	}
	s.current.Price = t.Price
	s.mu.Unlock()

	if err := s.drain(ctx); err != nil {
		s.metrics.RecordError("sampler_emit")
		s.log.Warn("minute emit failed, will retry",
			applogger.Int("pending", s.Pending()), applogger.Error(err))
	}
	return nil
}

// Flush closes the open minute and emits everything pending.
func (s *MinuteSampler) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.current != nil {
		s.closeLocked()
	}
	s.mu.Unlock()
	return s.drain(ctx)
}

// Pending returns the number of closed minutes not yet emitted.
func (s *MinuteSampler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *MinuteSampler) closeLocked() {
	s.pending = append(s.pending, *s.current)
	s.lastTS = s.current.Timestamp
	s.current = nil
}

func (s *MinuteSampler) drain(ctx context.Context) error {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return nil
		}
		p := s.pending[0]
		s.mu.Unlock()

		if err := s.emit(ctx, p); err != nil {
			return err
		}
		s.mu.Lock()
		s.pending = s.pending[1:]
		s.mu.Unlock()
	}
}

func (s *MinuteSampler) emit(ctx context.Context, p models.PricePoint) error {
	rec, err := s.sink.OnNewPrice(ctx, p)
	if err != nil {
		if IsSkippable(err) {
			s.log.Info("minute stored without features",
				applogger.Time("minute", p.Timestamp), applogger.Error(err))
			return nil
		}
		return fmt.Errorf("emit minute %s: %w", p.Timestamp.Format(time.RFC3339), err)
	}
	s.log.Debug("minute enriched",
		applogger.Time("minute", rec.Timestamp), applogger.Float64("price", rec.Price))
	return nil
}
