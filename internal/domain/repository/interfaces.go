package repository

import (
	"context"
	"time"

	"PriceFeatures/internal/domain/models"
)

// MarketStream is a live trade feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// PriceStore persists the raw per-minute price history.
type PriceStore interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, p models.PricePoint) error
	StoreBatch(ctx context.Context, points []models.PricePoint) error
	// Query returns points in [from, to] ascending. Zero bounds are open.
	// limit <= 0 means no limit.
	Query(ctx context.Context, from, to time.Time, limit int) ([]models.PricePoint, error)
	// LatestBefore returns up to n points strictly before ts, ascending.
	LatestBefore(ctx context.Context, ts time.Time, n int) ([]models.PricePoint, error)
	Health(ctx context.Context) error
	Close() error
}

// FeatureStore persists enriched records. Rows are append-only: a timestamp
// that is already stored is never overwritten.
type FeatureStore interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, records []models.FeatureRecord) (int, error)
	Query(ctx context.Context, from, to time.Time, limit int) ([]models.FeatureRecord, error)
	Latest(ctx context.Context) (models.FeatureRecord, error)
	Stats(ctx context.Context) (models.EnrichmentStats, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Health(ctx context.Context) error
	Close() error
}

// Publisher emits enriched records downstream.
type Publisher interface {
	Publish(ctx context.Context, rec models.FeatureRecord) error
	PublishBatch(ctx context.Context, records []models.FeatureRecord) error
	Close() error
}

type Metrics interface {
	RecordEnriched(path string, n int)
	RecordError(kind string)
	RecordLastPrice(source string, price float64)
	RecordLatency(op string, seconds float64)
}
