package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"PriceFeatures/internal/domain/models"
	domrepo "PriceFeatures/internal/domain/repository"
	pkgkafka "PriceFeatures/pkg/kafka"
)

// KafkaPublisher writes enriched records to the features topic, keyed by
// minute so that a partition sees one timeline.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, rec models.FeatureRecord) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{featureMessage(rec, "")})
}

// PublishBatch tags every message of the call with the same batch_id header.
func (p *KafkaPublisher) PublishBatch(ctx context.Context, records []models.FeatureRecord) error {
	if len(records) == 0 {
		return nil
	}
	batchID := uuid.NewString()
	msgs := make([]pkgkafka.Message, len(records))
	for i, r := range records {
		msgs[i] = featureMessage(r, batchID)
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func featureMessage(rec models.FeatureRecord, batchID string) pkgkafka.Message {
	headers := map[string]string{}
	if rec.Schema != nil {
		headers["schema_version"] = rec.Schema.Version
	}
	if batchID != "" {
		headers["batch_id"] = batchID
	}
	return pkgkafka.Message{
		Key:     []byte(rec.Timestamp.UTC().Format(time.RFC3339)),
		Value:   rec.Wire(),
		Headers: headers,
	}
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops records. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.FeatureRecord) error { return nil }

func (NopPublisher) PublishBatch(context.Context, []models.FeatureRecord) error { return nil }

func (NopPublisher) Close() error { return nil }

var (
	_ domrepo.Publisher    = (*KafkaPublisher)(nil)
	_ domrepo.Publisher    = NopPublisher{}
	_ domrepo.PriceStore   = (*CHPriceStore)(nil)
	_ domrepo.PriceStore   = (*MemoryPriceStore)(nil)
	_ domrepo.FeatureStore = (*CHFeatureStore)(nil)
	_ domrepo.FeatureStore = (*MemoryFeatureStore)(nil)
)
