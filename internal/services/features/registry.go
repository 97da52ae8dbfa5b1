package features

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"PriceFeatures/internal/domain/models"
)

// SchemaVersion is bumped whenever the feature list or a formula changes in a
// way that invalidates trained models.
const SchemaVersion = "v1"

const (
	FeatureMinuteOfHour    = "minute_of_hour"
	FeatureHourOfDay       = "hour_of_day"
	FeatureDayOfWeek       = "day_of_week"
	FeatureWeekOfYear      = "week_of_year"
	FeatureMACDLine        = "macd_line"
	FeatureMACDSignal      = "macd_signal"
	FeatureMACDHistogram   = "macd_histogram"
	FeatureBBUpper         = "bb_upper"
	FeatureBBMiddle        = "bb_middle"
	FeatureBBLower         = "bb_lower"
	FeatureBBWidth         = "bb_width"
	FeatureBBPosition      = "bb_position"
	FeatureStochK          = "stoch_k"
	FeatureStochD          = "stoch_d"
	FeaturePriceNormalized = "price_normalized"
)

func LagName(l int) string { return fmt.Sprintf("price_lag_%dmin", l) }
func RollingMeanName(w int) string { return fmt.Sprintf("rolling_mean_%dmin", w) }
func RollingStdName(w int) string { return fmt.Sprintf("rolling_std_%dmin", w) }
func RollingMinName(w int) string { return fmt.Sprintf("rolling_min_%dmin", w) }
func RollingMaxName(w int) string { return fmt.Sprintf("rolling_max_%dmin", w) }
func RSIName(p int) string { return fmt.Sprintf("rsi_%d", p) }
func ATRName(p int) string { return fmt.Sprintf("atr_%d", p) }
func ChangeName(h int) string { return fmt.Sprintf("price_change_%dmin", h) }
func ChangePctName(h int) string { return fmt.Sprintf("price_change_pct_%dmin", h) }
func VolatilityName(w int) string { return fmt.Sprintf("volatility_%dmin", w) }
func MomentumName(h int) string { return fmt.Sprintf("momentum_%dmin", h) }

// Names returns the ordered feature names for the default configuration.
func Names() []string {
	return DefaultConfig().Names()
}

// Names returns the ordered feature names produced under c.
func (c Config) Names() []string {
	names := []string{FeatureMinuteOfHour, FeatureHourOfDay, FeatureDayOfWeek, FeatureWeekOfYear}
	for _, l := range c.Lags {
		names = append(names, LagName(l))
	}
	for _, w := range c.RollingWindows {
		names = append(names, RollingMeanName(w))
	}
	for _, w := range c.RollingWindows {
		names = append(names, RollingStdName(w))
	}
	names = append(names, RollingMinName(c.RangeWindow), RollingMaxName(c.RangeWindow))
	names = append(names,
		RSIName(c.RSIPeriod),
		FeatureMACDLine, FeatureMACDSignal, FeatureMACDHistogram,
		FeatureBBUpper, FeatureBBMiddle, FeatureBBLower, FeatureBBWidth, FeatureBBPosition,
		ATRName(c.ATRPeriod),
		FeatureStochK, FeatureStochD,
	)
	for _, h := range c.ChangeHorizons {
		names = append(names, ChangeName(h))
	}
	for _, h := range c.ChangeHorizons {
		names = append(names, ChangePctName(h))
	}
	names = append(names, VolatilityName(c.VolatilityWindow))
	for _, h := range c.MomentumHorizons {
		names = append(names, MomentumName(h))
	}
	return append(names, FeaturePriceNormalized)
}

// Version returns SchemaVersion suffixed with a fingerprint of the names and
// every parameter that changes values without changing names.
func (c Config) Version() string {
	params := fmt.Sprintf("macd=%d/%d/%d/%d/%d;bb=%d/%g;stoch=%d/%d;tz=%s;norm=%g/%g",
		c.MACDFast, c.MACDSlow, c.MACDSignal, c.MACDWindow, c.MACDSignalWindow,
		c.BollingerPeriod, c.BollingerK, c.StochK, c.StochD, c.Timezone,
		c.NormalizeMin, c.NormalizeMax)
	sum := xxhash.Sum64String(strings.Join(c.Names(), ",") + "|" + params)
	return fmt.Sprintf("%s-%016x", SchemaVersion, sum)
}

// Schema builds the registry for c.
func (c Config) Schema() *models.FeatureSchema {
	return models.NewFeatureSchema(c.Version(), c.Names())
}
