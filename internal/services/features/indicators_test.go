package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{name: "strictly increasing saturates high", prices: ramp(30, 100, 1), want: 100},
		{name: "strictly decreasing saturates low", prices: ramp(30, 200, -1), want: 0},
		{name: "flat is neutral", prices: ramp(30, 100, 0), want: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := RSI(tt.prices, 14)
			assert.Equal(t, 50.0, rsi[0])
			for i := 14; i < len(rsi); i++ {
				assert.InDeltaf(t, tt.want, rsi[i], 1e-9, "row %d", i)
			}
		})
	}
}

func TestRSIBounded(t *testing.T) {
	prices := []float64{44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00}
	rsi := RSI(prices, 14)
	for i, v := range rsi {
		assert.Falsef(t, math.IsNaN(v), "row %d", i)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}

	// row 2: one loss of 0.25 and one gain of 0.06 over three deltas
	g, l := 0.06/3, 0.25/3
	assert.InDelta(t, 100-100/(1+g/l), rsi[2], 1e-9)
}

func TestMACDConstant(t *testing.T) {
	m := MACD(ramp(80, 250, 0), 12, 26, 9, 40, 20)
	for i := range m.Line {
		assert.InDelta(t, 0.0, m.Line[i], 1e-9)
		assert.InDelta(t, 0.0, m.Signal[i], 1e-9)
		assert.InDelta(t, 0.0, m.Histogram[i], 1e-9)
	}
}

func TestMACDUptrend(t *testing.T) {
	m := MACD(ramp(80, 100, 1), 12, 26, 9, 40, 20)
	last := len(m.Line) - 1
	assert.Greater(t, m.Line[last], 0.0, "fast EMA leads slow EMA in an uptrend")
	assert.InDelta(t, m.Line[last]-m.Signal[last], m.Histogram[last], 1e-12)
}

func TestBollingerClamp(t *testing.T) {
	above := append(ramp(19, 100, 0), 200)
	below := append(ramp(19, 100, 0), 1)

	up := Bollinger(above, 20, 2)
	down := Bollinger(below, 20, 2)

	assert.Less(t, up.Upper[19], 200.0)
	assert.Equal(t, 1.0, up.Position[19])
	assert.Greater(t, down.Lower[19], 1.0)
	assert.Equal(t, 0.0, down.Position[19])
}

func TestBollingerFlat(t *testing.T) {
	b := Bollinger(ramp(25, 100, 0), 20, 2)

	assert.True(t, math.IsNaN(b.Width[0]))
	assert.True(t, math.IsNaN(b.Position[0]))
	assert.Equal(t, 100.0, b.Middle[0])
	for i := 1; i < 25; i++ {
		assert.Equalf(t, 0.0, b.Width[i], "row %d", i)
		assert.Equalf(t, 0.5, b.Position[i], "row %d", i)
		assert.Equal(t, 100.0, b.Upper[i])
		assert.Equal(t, 100.0, b.Lower[i])
	}
}

func TestATR(t *testing.T) {
	atr := ATR([]float64{1, 3, 2, 2}, 14)
	assert.Equal(t, 0.0, atr[0])
	assert.Equal(t, 1.0, atr[1])
	assert.Equal(t, 1.0, atr[2])
	assert.Equal(t, 0.75, atr[3])

	short := ATR([]float64{1, 3, 2, 2}, 2)
	assert.Equal(t, 0.5, short[3])
}

func TestStochastic(t *testing.T) {
	t.Run("flat range is neutral", func(t *testing.T) {
		s := Stochastic(ramp(20, 42, 0), 14, 3)
		for i := range s.K {
			assert.Equal(t, 50.0, s.K[i])
			assert.Equal(t, 50.0, s.D[i])
		}
	})

	t.Run("new highs pin K at 100", func(t *testing.T) {
		s := Stochastic(ramp(20, 10, 1), 14, 3)
		assert.Equal(t, 50.0, s.K[0])
		for i := 1; i < 20; i++ {
			assert.Equal(t, 100.0, s.K[i])
		}
		assert.InDelta(t, (50.0+100+100)/3, s.D[2], 1e-12)
		assert.Equal(t, 100.0, s.D[3])
	})

	t.Run("mid range", func(t *testing.T) {
		s := Stochastic([]float64{10, 20, 15}, 14, 3)
		assert.Equal(t, 50.0, s.K[2])
	})
}
