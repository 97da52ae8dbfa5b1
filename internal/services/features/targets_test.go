package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargets(t *testing.T) {
	pts := points(100, 101, 99, 102, 98)

	got := Targets(pts, 2)

	require.Len(t, got, 5)
	require.NotNil(t, got[0].FuturePrice)
	assert.Equal(t, 99.0, *got[0].FuturePrice)
	assert.Equal(t, -1.0, *got[0].Change)
	assert.False(t, *got[0].TrendUp)
	assert.True(t, *got[1].TrendUp)
	assert.Nil(t, got[3].FuturePrice)
	assert.Nil(t, got[4].TrendUp)
	assert.Equal(t, pts[4].Timestamp, got[4].Timestamp)
}

func TestNormalizer(t *testing.T) {
	fit := FitNormalizer([]float64{10, 20, 30})
	assert.True(t, fit.Enabled())
	assert.False(t, fit.Fixed())
	assert.Equal(t, 0.5, fit.Apply(20))

	flat := FitNormalizer([]float64{5, 5})
	assert.Equal(t, 0.0, flat.Apply(5))

	fixed, err := FixedNormalizer(100, 200)
	require.NoError(t, err)
	assert.Equal(t, 1.0, fixed.Apply(250))
	assert.Equal(t, 0.0, fixed.Apply(50))
	lo, hi := fixed.Range()
	assert.Equal(t, []float64{100, 200}, []float64{lo, hi})

	_, err = FixedNormalizer(1, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
