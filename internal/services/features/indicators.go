package features

import "math"

// RSI computes the relative strength index from simple rolling means of gains
// and losses over period deltas. The first row has no previous price and
// contributes a zero delta. A zero loss average saturates at 100, or 50 when
// there were no gains either.
func RSI(prices []float64, period int) Series {
	n := len(prices)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := RollingMean(gains, period)
	avgLoss := RollingMean(losses, period)

	out := nanSeries(n)
	for i := range out {
		g, l := avgGain[i], avgLoss[i]
		switch {
		case l == 0 && g == 0:
			out[i] = 50
		case l == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}

// MACDSeries holds the three MACD columns.
type MACDSeries struct {
	Line      Series
	Signal    Series
	Histogram Series
}

// MACD computes line = ema(fast) - ema(slow), signal = ema(line, signal) and
// their difference. Price EMAs look back window rows, the signal EMA looks
// back signalWindow rows of the line.
//
// The EMAs are truncated, so values differ slightly from a full-history EMA:
// with the default window of 40 the slow span of 26 drops about 4.6% of its
// weight. A live window of window+signalWindow rows reproduces the backfilled
// values exactly.
func MACD(prices []float64, fast, slow, signal, window, signalWindow int) MACDSeries {
	emaFast := WindowedEMA(prices, fast, window)
	emaSlow := WindowedEMA(prices, slow, window)
	line := make(Series, len(prices))
	for i := range line {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig := WindowedEMA(line, signal, signalWindow)
	hist := make(Series, len(prices))
	for i := range hist {
		hist[i] = line[i] - sig[i]
	}
	return MACDSeries{Line: line, Signal: sig, Histogram: hist}
}

// BollingerSeries holds the Bollinger band columns.
type BollingerSeries struct {
	Upper    Series
	Middle   Series
	Lower    Series
	Width    Series
	Position Series
}

// Bollinger computes bands at k sample standard deviations around the rolling
// mean. Position is clamped to [0,1] and is 0.5 when the bands collapse.
func Bollinger(prices []float64, period int, k float64) BollingerSeries {
	mid := RollingMean(prices, period)
	std := RollingStd(prices, period)
	n := len(prices)
	b := BollingerSeries{
		Upper:    nanSeries(n),
		Middle:   mid,
		Lower:    nanSeries(n),
		Width:    nanSeries(n),
		Position: nanSeries(n),
	}
	for i := range prices {
		if math.IsNaN(std[i]) {
			continue
		}
		up := mid[i] + k*std[i]
		lo := mid[i] - k*std[i]
		b.Upper[i] = up
		b.Lower[i] = lo
		b.Width[i] = up - lo
		if b.Width[i] == 0 {
			b.Position[i] = 0.5
			continue
		}
		b.Position[i] = clamp((prices[i]-lo)/(up-lo), 0, 1)
	}
	return b
}

// ATR is the rolling mean of the true range. With a single price series
// high, low and close coincide, so TR[t] = |p[t]-p[t-1]| and TR[0] = 0.
func ATR(prices []float64, period int) Series {
	tr := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		tr[i] = math.Abs(prices[i] - prices[i-1])
	}
	return RollingMean(tr, period)
}

// StochasticSeries holds %K and %D.
type StochasticSeries struct {
	K Series
	D Series
}

// Stochastic computes %K against the trailing kPeriod range (50 when the range
// is flat) and %D as the rolling mean of %K over dPeriod.
func Stochastic(prices []float64, kPeriod, dPeriod int) StochasticSeries {
	lo := RollingMin(prices, kPeriod)
	hi := RollingMax(prices, kPeriod)
	k := nanSeries(len(prices))
	for i, p := range prices {
		rng := hi[i] - lo[i]
		if rng == 0 {
			k[i] = 50
			continue
		}
		k[i] = 100 * (p - lo[i]) / rng
	}
	return StochasticSeries{K: k, D: RollingMean(k, dPeriod)}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
