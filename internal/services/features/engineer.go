package features

import (
	"fmt"
	"math"
	"time"

	"PriceFeatures/internal/domain/models"
)

// Engineer turns an ordered price series into feature records. It holds no
// mutable state and is safe for concurrent use.
type Engineer struct {
	cfg    Config
	loc    *time.Location
	schema *models.FeatureSchema
	ref    Normalizer
}

// New validates cfg, filling zero fields with defaults.
func New(cfg Config) (*Engineer, error) {
	cfg, err := cfg.WithDefaults()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	e := &Engineer{cfg: cfg, loc: loc, schema: cfg.Schema()}
	if cfg.HasFixedRange() {
		if e.ref, err = FixedNormalizer(cfg.NormalizeMin, cfg.NormalizeMax); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// NewDefault returns an Engineer with DefaultConfig.
func NewDefault() *Engineer {
	e, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engineer) Config() Config { return e.cfg }
func (e *Engineer) Schema() *models.FeatureSchema { return e.schema }
func (e *Engineer) Lookback() int { return e.cfg.Lookback() }

// ReferenceNormalizer is the batch-independent normalizer: the configured
// fixed range, or a disabled one when no range is configured.
func (e *Engineer) ReferenceNormalizer() Normalizer { return e.ref }

// Transform enriches points. price_normalized uses the fixed range when one
// is configured, otherwise it is fitted to this batch.
func (e *Engineer) Transform(points []models.PricePoint) (models.EnrichedBatch, error) {
	if err := checkSeries(points); err != nil {
		return models.EnrichedBatch{}, err
	}
	norm := e.ref
	if !norm.Enabled() {
		norm = FitNormalizer(prices(points))
	}
	return e.transform(points, norm), nil
}

// TransformWith enriches points with an explicit normalizer.
func (e *Engineer) TransformWith(points []models.PricePoint, norm Normalizer) (models.EnrichedBatch, error) {
	if err := checkSeries(points); err != nil {
		return models.EnrichedBatch{}, err
	}
	return e.transform(points, norm), nil
}

// Columns computes every feature column keyed by name. Row i only reads
// rows [0, i].
func (e *Engineer) Columns(points []models.PricePoint, norm Normalizer) map[string]Series {
	c := e.cfg
	p := prices(points)
	n := len(p)
	cols := make(map[string]Series, e.schema.Len())

	minute, hour, dow, week := make(Series, n), make(Series, n), make(Series, n), make(Series, n)
	for i, pt := range points {
		tf := Temporal(pt.Timestamp, e.loc)
		minute[i] = float64(tf.MinuteOfHour)
		hour[i] = float64(tf.HourOfDay)
		dow[i] = float64(tf.DayOfWeek)
		week[i] = float64(tf.WeekOfYear)
	}
	cols[FeatureMinuteOfHour] = minute
	cols[FeatureHourOfDay] = hour
	cols[FeatureDayOfWeek] = dow
	cols[FeatureWeekOfYear] = week

	for _, l := range c.Lags {
		cols[LagName(l)] = Lag(p, l)
	}
	for _, w := range c.RollingWindows {
		cols[RollingMeanName(w)] = RollingMean(p, w)
		cols[RollingStdName(w)] = RollingStd(p, w)
	}
	cols[RollingMinName(c.RangeWindow)] = RollingMin(p, c.RangeWindow)
	cols[RollingMaxName(c.RangeWindow)] = RollingMax(p, c.RangeWindow)

	cols[RSIName(c.RSIPeriod)] = RSI(p, c.RSIPeriod)

	macd := MACD(p, c.MACDFast, c.MACDSlow, c.MACDSignal, c.MACDWindow, c.MACDSignalWindow)
	cols[FeatureMACDLine] = macd.Line
	cols[FeatureMACDSignal] = macd.Signal
	cols[FeatureMACDHistogram] = macd.Histogram

	bb := Bollinger(p, c.BollingerPeriod, c.BollingerK)
	cols[FeatureBBUpper] = bb.Upper
	cols[FeatureBBMiddle] = bb.Middle
	cols[FeatureBBLower] = bb.Lower
	cols[FeatureBBWidth] = bb.Width
	cols[FeatureBBPosition] = bb.Position

	cols[ATRName(c.ATRPeriod)] = ATR(p, c.ATRPeriod)

	st := Stochastic(p, c.StochK, c.StochD)
	cols[FeatureStochK] = st.K
	cols[FeatureStochD] = st.D

	for _, h := range c.ChangeHorizons {
		cols[ChangeName(h)] = Diff(p, h)
		cols[ChangePctName(h)] = PctChange(p, h)
	}
	cols[VolatilityName(c.VolatilityWindow)] = RollingStd(p, c.VolatilityWindow)
	for _, h := range c.MomentumHorizons {
		cols[MomentumName(h)] = Diff(p, h)
	}
	cols[FeaturePriceNormalized] = norm.Series(p)
	return cols
}

func (e *Engineer) transform(points []models.PricePoint, norm Normalizer) models.EnrichedBatch {
	cols := e.Columns(points, norm)
	names := e.schema.Names()
	ordered := make([]Series, len(names))
	for j, name := range names {
		ordered[j] = cols[name]
	}

	records := make([]models.FeatureRecord, len(points))
	for i, pt := range points {
		vals := make([]*float64, len(names))
		for j, col := range ordered {
			vals[j] = toPtr(col[i])
		}
		records[i] = models.FeatureRecord{PricePoint: pt, Schema: e.schema, Values: vals}
	}
	return models.EnrichedBatch{Schema: e.schema, Records: records}
}

func checkSeries(points []models.PricePoint) error {
	if len(points) == 0 {
		return ErrEmptyInput
	}
	for i, pt := range points {
		if pt.Price <= 0 || math.IsNaN(pt.Price) || math.IsInf(pt.Price, 0) {
			return fmt.Errorf("%w: %v at row %d", ErrInvalidPrice, pt.Price, i)
		}
		if i > 0 && !pt.Timestamp.After(points[i-1].Timestamp) {
			return fmt.Errorf("%w: row %d at %s follows %s", ErrNonMonotonicInput, i,
				pt.Timestamp.Format(time.RFC3339), points[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

func prices(points []models.PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, pt := range points {
		out[i] = pt.Price
	}
	return out
}

func toPtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
