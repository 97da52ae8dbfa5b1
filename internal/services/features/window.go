package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Series is one feature column. NaN marks a row whose value is not computable.
type Series []float64

func nanSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// Lag returns v[t] = x[t-l], NaN for the first l rows.
func Lag(x []float64, l int) Series {
	out := nanSeries(len(x))
	for i := l; i < len(x); i++ {
		out[i] = x[i-l]
	}
	return out
}

// Diff returns x[t] - x[t-l].
func Diff(x []float64, l int) Series {
	out := nanSeries(len(x))
	for i := l; i < len(x); i++ {
		out[i] = x[i] - x[i-l]
	}
	return out
}

// PctChange returns (x[t]/x[t-l] - 1) * 100.
func PctChange(x []float64, l int) Series {
	out := nanSeries(len(x))
	for i := l; i < len(x); i++ {
		if x[i-l] == 0 {
			continue
		}
		out[i] = (x[i]/x[i-l] - 1) * 100
	}
	return out
}

// window returns the trailing window of at most w rows ending at i,
// skipping NaN values.
func window(x []float64, i, w int) []float64 {
	start := i - w + 1
	if start < 0 {
		start = 0
	}
	vals := make([]float64, 0, i-start+1)
	for _, v := range x[start : i+1] {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	return vals
}

// RollingMean is the trailing mean over w rows with partial windows at the
// start of the series.
func RollingMean(x []float64, w int) Series {
	out := nanSeries(len(x))
	for i := range x {
		vals := window(x, i, w)
		if len(vals) == 0 {
			continue
		}
		out[i] = mean(vals)
	}
	return out
}

// RollingStd is the trailing sample standard deviation (n-1). A window with a
// single observation yields NaN.
func RollingStd(x []float64, w int) Series {
	out := nanSeries(len(x))
	for i := range x {
		vals := window(x, i, w)
		if len(vals) < 2 {
			continue
		}
		out[i] = sampleStd(vals)
	}
	return out
}

// RollingMin is the trailing minimum over w rows.
func RollingMin(x []float64, w int) Series {
	out := nanSeries(len(x))
	for i := range x {
		vals := window(x, i, w)
		if len(vals) == 0 {
			continue
		}
		out[i] = floats.Min(vals)
	}
	return out
}

// RollingMax is the trailing maximum over w rows.
func RollingMax(x []float64, w int) Series {
	out := nanSeries(len(x))
	for i := range x {
		vals := window(x, i, w)
		if len(vals) == 0 {
			continue
		}
		out[i] = floats.Max(vals)
	}
	return out
}

// WindowedEMA is an exponential moving average with alpha = 2/(span+1) and
// bias-adjusted weights, evaluated over the trailing w rows only. Bounding the
// window keeps each value a function of a fixed amount of history.
func WindowedEMA(x []float64, span, w int) Series {
	out := nanSeries(len(x))
	decay := 1 - 2/(float64(span)+1)
	for i := range x {
		start := i - w + 1
		if start < 0 {
			start = 0
		}
		var num, den float64
		weight := 1.0
		for j := i; j >= start; j-- {
			if !math.IsNaN(x[j]) {
				num += weight * x[j]
				den += weight
			}
			weight *= decay
		}
		if den > 0 {
			out[i] = num / den
		}
	}
	return out
}

func mean(vals []float64) float64 {
	return stat.Mean(vals, nil)
}

// sampleStd returns exactly zero for a flat window.
func sampleStd(vals []float64) float64 {
	if floats.Max(vals) == floats.Min(vals) {
		return 0
	}
	return stat.StdDev(vals, nil)
}
