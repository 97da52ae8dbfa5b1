package cache

import (
	"context"
	"errors"
	"time"

	"PriceFeatures/internal/domain/models"
	pkgcache "PriceFeatures/pkg/cache"
)

// LatestFeatures caches the newest enriched record. The key carries the
// schema version so a schema change never serves stale columns.
type LatestFeatures struct {
	svc    pkgcache.Service
	schema *models.FeatureSchema
	ttl    time.Duration
	key    string
}

func NewLatestFeatures(svc pkgcache.Service, schema *models.FeatureSchema, ttl time.Duration) *LatestFeatures {
	return &LatestFeatures{
		svc:    svc,
		schema: schema,
		ttl:    ttl,
		key:    pkgcache.Key("features", "latest", schema.Version),
	}
}

// Set stores rec unless a newer record is already cached.
func (c *LatestFeatures) Set(ctx context.Context, rec models.FeatureRecord) error {
	if cur, ok, err := c.Get(ctx); err == nil && ok && !rec.Timestamp.After(cur.Timestamp) {
		return nil
	}
	return c.svc.Set(ctx, c.key, rec.Wire(), c.ttl)
}

// Get returns the cached record; ok is false on a miss.
func (c *LatestFeatures) Get(ctx context.Context) (models.FeatureRecord, bool, error) {
	var w models.FeatureRecordWire
	if err := c.svc.Get(ctx, c.key, &w); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return models.FeatureRecord{}, false, nil
		}
		return models.FeatureRecord{}, false, err
	}
	rec, err := w.Record(c.schema)
	if err != nil {
		return models.FeatureRecord{}, false, err
	}
	return rec, true, nil
}

// Invalidate drops the cached record.
func (c *LatestFeatures) Invalidate(ctx context.Context) error {
	return c.svc.Delete(ctx, c.key)
}
