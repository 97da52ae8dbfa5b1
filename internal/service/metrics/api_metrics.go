package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pricefeatures",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of feature API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricefeatures",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by feature API endpoint and kind",
		},
		[]string{"endpoint", "kind"},
	)
)

// Register adds the API collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors)
	})
}

// Observe records the latency of one call and, when kind is not empty, an
// error of that kind.
func Observe(endpoint string, start time.Time, kind string) {
	APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if kind != "" {
		APIErrors.WithLabelValues(endpoint, kind).Inc()
	}
}
