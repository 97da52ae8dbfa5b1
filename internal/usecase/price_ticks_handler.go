package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"PriceFeatures/internal/domain/models"
	drepo "PriceFeatures/internal/domain/repository"
	pkgkafka "PriceFeatures/pkg/kafka"
	applogger "PriceFeatures/pkg/logger"
	"PriceFeatures/pkg/util"
)

// PriceTicksHandler consumes minute prices from Kafka and enriches them.
type PriceTicksHandler struct {
	topic   string
	source  string
	svc     *EnrichmentService
	metrics drepo.Metrics
	log     *applogger.Logger
}

func NewPriceTicksHandler(topic, source string, svc *EnrichmentService, metrics drepo.Metrics, l *applogger.Logger) *PriceTicksHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &PriceTicksHandler{topic: topic, source: source, svc: svc, metrics: metrics, log: l}
}

func (h *PriceTicksHandler) Topic() string { return h.topic }

// priceTick is the incoming message: {timestamp, price, source}. The
// timestamp may be RFC3339 or unix seconds/millis.
type priceTick struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Source    string          `json:"source"`
}

func (h *PriceTicksHandler) decode(b []byte) (models.PricePoint, error) {
	var m priceTick
	if err := json.Unmarshal(b, &m); err != nil {
		return models.PricePoint{}, fmt.Errorf("decode tick: %w", err)
	}
	raw := strings.Trim(string(m.Timestamp), `"`)
	ts, ok := util.ParseTime(raw)
	if !ok {
		return models.PricePoint{}, fmt.Errorf("decode tick: bad timestamp %q", raw)
	}
	if !m.Price.IsPositive() {
		return models.PricePoint{}, fmt.Errorf("decode tick: price %s is not positive", m.Price)
	}
	src := m.Source
	if src == "" {
		src = h.source
	}
	price, _ := m.Price.Float64()
	return models.PricePoint{Timestamp: ts, Price: price, Source: src}, nil
}

// Handle returns nil for ticks that can never be enriched so the consumer
// commits them; storage failures are returned for retry.
func (h *PriceTicksHandler) Handle(ctx context.Context, b []byte) error {
	p, err := h.decode(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		h.log.Warn("dropping malformed tick", applogger.Error(err))
		return nil
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(p.Timestamp).Seconds())

	rec, err := h.svc.OnNewPrice(ctx, p)
	if err != nil {
		if IsSkippable(err) {
			h.log.Debug("tick not enriched", applogger.Time("timestamp", p.Timestamp), applogger.Error(err))
			return nil
		}
		h.metrics.RecordError("consumer_enrich")
		return err
	}
	h.log.Debug("tick enriched",
		applogger.String("trace_id", pkgkafka.TraceIDFrom(ctx)),
		applogger.Time("timestamp", rec.Timestamp),
		applogger.Float64("price", rec.Price))
	return nil
}

var _ pkgkafka.MessageHandler = (*PriceTicksHandler)(nil)
