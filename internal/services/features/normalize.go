package features

import (
	"fmt"
	"math"
)

type normKind int

const (
	normNone normKind = iota
	normFitted
	normFixed
)

// Normalizer min-max scales prices. It is a value owned by a single
// transform call.
type Normalizer struct {
	kind   normKind
	lo, hi float64
}

// NoNormalizer leaves price_normalized null.
func NoNormalizer() Normalizer { return Normalizer{} }

// FitNormalizer fits the range of prices. A flat range maps every price to 0.
func FitNormalizer(prices []float64) Normalizer {
	if len(prices) == 0 {
		return Normalizer{}
	}
	n := Normalizer{kind: normFitted, lo: prices[0], hi: prices[0]}
	for _, p := range prices[1:] {
		n.lo = math.Min(n.lo, p)
		n.hi = math.Max(n.hi, p)
	}
	return n
}

// FixedNormalizer uses a reference range; prices outside it clamp to [0,1].
func FixedNormalizer(lo, hi float64) (Normalizer, error) {
	if !(hi > lo) {
		return Normalizer{}, fmt.Errorf("%w: normalize range [%g, %g]", ErrInvalidConfig, lo, hi)
	}
	return Normalizer{kind: normFixed, lo: lo, hi: hi}, nil
}

// Enabled reports whether Apply produces values.
func (n Normalizer) Enabled() bool { return n.kind != normNone }

// Fixed reports whether the range is independent of the batch.
func (n Normalizer) Fixed() bool { return n.kind == normFixed }

// Range returns the scaling bounds.
func (n Normalizer) Range() (lo, hi float64) { return n.lo, n.hi }

// Apply scales one price. NaN when disabled.
func (n Normalizer) Apply(p float64) float64 {
	switch n.kind {
	case normNone:
		return math.NaN()
	case normFixed:
		return clamp((p-n.lo)/(n.hi-n.lo), 0, 1)
	}
	if n.hi == n.lo {
		return 0
	}
	return (p - n.lo) / (n.hi - n.lo)
}

// Series scales every price.
func (n Normalizer) Series(prices []float64) Series {
	out := make(Series, len(prices))
	for i, p := range prices {
		out[i] = n.Apply(p)
	}
	return out
}
