package enrichment

import (
	"fmt"

	"PriceFeatures/internal/domain/models"
	"PriceFeatures/internal/services/features"
)

const (
	DefaultMinHistory  = 60
	DefaultContextSize = 100
)

// Coordinator runs the feature engine over full histories and over a bounded
// context window for single new points. It performs no I/O.
type Coordinator struct {
	engine      *features.Engineer
	minHistory  int
	contextSize int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMinHistory sets the minimum number of context points required by
// EnrichIncremental.
func WithMinHistory(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.minHistory = n
		}
	}
}

// WithContextSize sets how many of the most recent context points are used.
func WithContextSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.contextSize = n
		}
	}
}

// New builds a Coordinator. The minimum history must cover the engine's
// lookback so incremental records match batch records.
func New(engine *features.Engineer, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		engine:      engine,
		minHistory:  DefaultMinHistory,
		contextSize: DefaultContextSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if need := engine.Lookback() - 1; c.minHistory < need {
		return nil, fmt.Errorf("%w: min history %d below lookback %d", features.ErrInvalidConfig, c.minHistory, need)
	}
	if c.contextSize < c.minHistory {
		return nil, fmt.Errorf("%w: context size %d below min history %d", features.ErrInvalidConfig, c.contextSize, c.minHistory)
	}
	return c, nil
}

func (c *Coordinator) Engine() *features.Engineer { return c.engine }
func (c *Coordinator) MinHistory() int { return c.minHistory }
func (c *Coordinator) ContextSize() int { return c.contextSize }

// EnrichBatch sorts history by timestamp and enriches it in one pass.
// Duplicate timestamps are rejected.
func (c *Coordinator) EnrichBatch(history []models.PricePoint) (models.EnrichedBatch, error) {
	if len(history) == 0 {
		return models.EnrichedBatch{}, features.ErrEmptyInput
	}
	batch, err := c.engine.Transform(features.SortPoints(history))
	if err != nil {
		return models.EnrichedBatch{}, fmt.Errorf("enrich batch: %w", err)
	}
	return batch, nil
}

// EnrichIncremental enriches p using the trailing window as context and
// returns its record. It fails with ErrInsufficientHistory when the window
// holds fewer than MinHistory points. price_normalized is only produced when
// the engine has a fixed reference range.
func (c *Coordinator) EnrichIncremental(window []models.PricePoint, p models.PricePoint) (models.FeatureRecord, error) {
	if len(window) < c.minHistory {
		return models.FeatureRecord{}, &features.InsufficientHistoryError{Have: len(window), Need: c.minHistory}
	}
	ctx := features.SortPoints(window)
	if len(ctx) > c.contextSize {
		ctx = ctx[len(ctx)-c.contextSize:]
	}
	if last := ctx[len(ctx)-1]; !p.Timestamp.After(last.Timestamp) {
		return models.FeatureRecord{}, fmt.Errorf("enrich incremental: %w: point at %s is not after context end %s",
			features.ErrNonMonotonicInput, p.Timestamp, last.Timestamp)
	}

	batch, err := c.engine.TransformWith(append(ctx, p), c.engine.ReferenceNormalizer())
	if err != nil {
		return models.FeatureRecord{}, fmt.Errorf("enrich incremental: %w", err)
	}
	rec, _ := batch.Last()
	return rec, nil
}
