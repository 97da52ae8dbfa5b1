package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	enriched  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	lastPrice *prometheus.GaugeVec
	latency   *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		enriched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricefeatures_records_enriched_total",
				Help: "Feature records produced, by path (batch, incremental, backfill)",
			},
			[]string{"path"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricefeatures_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricefeatures_last_price",
				Help: "Last price observed per source",
			},
			[]string{"source"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricefeatures_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordEnriched(path string, n int) {
	r.enriched.WithLabelValues(path).Add(float64(n))
}

func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(source string, price float64) {
	r.lastPrice.WithLabelValues(source).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
