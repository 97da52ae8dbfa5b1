package features

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Config holds the engine tunables. It is fixed at construction; lag,
// window and period values appear in feature names, so changing them changes
// the schema.
type Config struct {
	Lags             []int   `default:"[1,5,15,30,60]" validate:"required,unique,dive,gt=0"`
	RollingWindows   []int   `default:"[5,15,30,60]" validate:"required,unique,dive,gt=1"`
	RangeWindow      int     `default:"30" validate:"gt=0"`
	RSIPeriod        int     `default:"14" validate:"gt=0"`
	MACDFast         int     `default:"12" validate:"gt=0"`
	MACDSlow         int     `default:"26" validate:"gtfield=MACDFast"`
	MACDSignal       int     `default:"9" validate:"gt=0"`
	MACDWindow       int     `default:"40" validate:"gtefield=MACDSlow"`
	MACDSignalWindow int     `default:"20" validate:"gtefield=MACDSignal"`
	BollingerPeriod  int     `default:"20" validate:"gt=1"`
	BollingerK       float64 `default:"2" validate:"gt=0"`
	ATRPeriod        int     `default:"14" validate:"gt=0"`
	StochK           int     `default:"14" validate:"gt=0"`
	StochD           int     `default:"3" validate:"gt=0"`
	ChangeHorizons   []int   `default:"[1,5,15]" validate:"required,unique,dive,gt=0"`
	VolatilityWindow int     `default:"30" validate:"gt=1"`
	MomentumHorizons []int   `default:"[5,15,30]" validate:"required,unique,dive,gt=0"`
	TargetHorizon    int     `default:"15" validate:"gt=0"`
	Timezone         string  `default:"UTC"`
	// NormalizeMin/NormalizeMax fix the price_normalized reference range.
	// Both zero means the range is fitted per batch.
	NormalizeMin float64 `validate:"gte=0"`
	NormalizeMax float64 `validate:"gte=0"`
}

var validate = validator.New()

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}

// WithDefaults fills zero fields with their defaults.
func (c Config) WithDefaults() (Config, error) {
	if err := defaults.Set(&c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return c, nil
}

// Validate checks field ranges and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.HasFixedRange() && c.NormalizeMax <= c.NormalizeMin {
		return fmt.Errorf("%w: normalize max %.4f must exceed min %.4f", ErrInvalidConfig, c.NormalizeMax, c.NormalizeMin)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return nil
}

// HasFixedRange reports whether a reference normalization range is set.
func (c Config) HasFixedRange() bool {
	return c.NormalizeMin != 0 || c.NormalizeMax != 0
}

// Lookback returns the number of trailing rows, current row included, that
// the widest feature reads.
func (c Config) Lookback() int {
	need := 1
	use := func(n int) {
		if n > need {
			need = n
		}
	}
	for _, l := range c.Lags {
		use(l + 1)
	}
	for _, w := range c.RollingWindows {
		use(w)
	}
	for _, h := range c.ChangeHorizons {
		use(h + 1)
	}
	for _, h := range c.MomentumHorizons {
		use(h + 1)
	}
	use(c.RangeWindow)
	use(c.RSIPeriod + 1)
	use(c.MACDWindow + c.MACDSignalWindow - 1)
	use(c.BollingerPeriod)
	use(c.ATRPeriod + 1)
	use(c.StochK + c.StochD - 1)
	use(c.VolatilityWindow)
	return need
}
