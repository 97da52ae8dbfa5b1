package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 100, c.Enrichment.ContextSize)
	assert.Equal(t, 60, c.Enrichment.MinHistory)
	assert.Equal(t, 1000, c.Enrichment.BatchSize)
	assert.Equal(t, 90*24*time.Hour, c.Enrichment.Retention)
	assert.Equal(t, "btc.prices", c.Kafka.Topics.Prices)
	assert.Equal(t, "btc_features", c.ClickHouse.FeatureTable)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
	assert.Equal(t, "/metrics", c.Metrics.Path)
	assert.False(t, c.Server.CORS)
	assert.Equal(t, 1, c.Kafka.Consumer.MinBytes)
	assert.Equal(t, 10000000, c.Kafka.Consumer.MaxBytes)
}

func TestParse_Overrides(t *testing.T) {
	y := `
environment: production
server:
  port: 9090
enrichment:
  context_size: 200
  min_history: 80
  retention: 720h
features:
  lags: [1, 2, 3]
  change_horizons: [1, 10]
  momentum_horizons: [10, 20]
  volatility_window: 45
  range_window: 20
  macd_window: 60
  macd_signal_window: 30
  normalize_min: 20000
  normalize_max: 80000
`
	c, err := Parse([]byte(y))
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 200, c.Enrichment.ContextSize)
	assert.Equal(t, 30*24*time.Hour, c.Enrichment.Retention)
	assert.Equal(t, []int{1, 2, 3}, c.Features.Lags)
	assert.Equal(t, 80000.0, c.Features.NormalizeMax)
	assert.Equal(t, []int{1, 10}, c.Features.ChangeHorizons)
	assert.Equal(t, []int{10, 20}, c.Features.MomentumHorizons)
	assert.Equal(t, 45, c.Features.VolatilityWindow)
	assert.Equal(t, 20, c.Features.RangeWindow)
	assert.Equal(t, 60, c.Features.MACDWindow)
	assert.Equal(t, 30, c.Features.MACDSignalWindow)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"environment":   "environment: moon\n",
		"history>ctx":   "enrichment:\n  context_size: 50\n  min_history: 60\n",
		"range":         "features:\n  normalize_min: 5\n  normalize_max: 4\n",
		"kafka brokers": "kafka:\n  enabled: true\n",
		"finnhub key":   "finnhub:\n  enabled: true\n",
		"compression":   "kafka:\n  compression: brotli\n",
		"yaml":          "server: [",
	}
	for name, y := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(y))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\n"), 0o600))

	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PORT", "9999")
	t.Setenv("ENRICH_RETENTION", "30d")
	t.Setenv("FORECAST_URL", "http://model:8000/predict")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 9999, c.Server.Port)
	assert.Equal(t, 30*24*time.Hour, c.Enrichment.Retention)
	assert.Equal(t, "http://model:8000/predict", c.Forecast.URL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}
