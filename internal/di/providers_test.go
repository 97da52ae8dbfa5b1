package di

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceFeatures/internal/services/features"
	"PriceFeatures/pkg/config"
)

func TestProvideFeatureEngine_MapsTunables(t *testing.T) {
	cfg, err := config.Parse([]byte(`
environment: test
features:
  change_horizons: [1, 10]
  momentum_horizons: [10, 20]
  volatility_window: 45
  range_window: 20
  macd_window: 60
  macd_signal_window: 30
`))
	require.NoError(t, err)

	engine, err := ProvideFeatureEngine(cfg)
	require.NoError(t, err)
	got := engine.Config()
	assert.Equal(t, []int{1, 10}, got.ChangeHorizons)
	assert.Equal(t, []int{10, 20}, got.MomentumHorizons)
	assert.Equal(t, 45, got.VolatilityWindow)
	assert.Equal(t, 20, got.RangeWindow)
	assert.Equal(t, 60, got.MACDWindow)
	assert.Equal(t, 30, got.MACDSignalWindow)
	assert.Contains(t, engine.Schema().Names(), features.MomentumName(20))
}

func TestProvideFeatureEngine_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	engine, err := ProvideFeatureEngine(cfg)
	require.NoError(t, err)
	assert.Equal(t, features.DefaultConfig().Names(), engine.Config().Names())
}

func TestProvideCache_MemoryWithoutRedis(t *testing.T) {
	cfg, err := config.Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	c := ProvideCache(nil, cfg)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	var got string
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "v", got)
}
