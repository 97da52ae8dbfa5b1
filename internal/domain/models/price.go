package models

import "time"

// PricePoint is a single per-minute price observation.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
}

// Trade is a raw trade print from the live market stream.
type Trade struct {
	Symbol    string
	Timestamp int64 // unix seconds
	Price     float64
	Volume    float64
}

// FeatureRecord is a PricePoint plus the engineered feature values.
// Values are aligned with Schema.Names(); a nil entry means the feature is
// not computable yet for this row.
type FeatureRecord struct {
	PricePoint
	Schema *FeatureSchema
	Values []*float64
}

// Value returns the named feature. ok is false when the name is not part of
// the record's schema.
func (r FeatureRecord) Value(name string) (v *float64, ok bool) {
	if r.Schema == nil {
		return nil, false
	}
	i, ok := r.Schema.Index(name)
	if !ok || i >= len(r.Values) {
		return nil, false
	}
	return r.Values[i], true
}

// Vector returns the values in schema order.
func (r FeatureRecord) Vector() []*float64 {
	out := make([]*float64, len(r.Values))
	copy(out, r.Values)
	return out
}

// VectorZeroFilled returns the values in schema order with nulls replaced by 0.
func (r FeatureRecord) VectorZeroFilled() []float64 {
	out := make([]float64, len(r.Values))
	for i, v := range r.Values {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}

// Complete reports whether every feature value is present.
func (r FeatureRecord) Complete() bool {
	return r.CompleteExcept()
}

// CompleteExcept is Complete ignoring the named features.
func (r FeatureRecord) CompleteExcept(names ...string) bool {
	skip := r.indexes(names)
	for i, v := range r.Values {
		if v == nil && !skip[i] {
			return false
		}
	}
	return true
}

// Omit returns a copy of r with the named features set to null.
func (r FeatureRecord) Omit(names ...string) FeatureRecord {
	out := r
	out.Values = r.Vector()
	for i := range r.indexes(names) {
		if i < len(out.Values) {
			out.Values[i] = nil
		}
	}
	return out
}

func (r FeatureRecord) indexes(names []string) map[int]bool {
	if len(names) == 0 || r.Schema == nil {
		return nil
	}
	idx := make(map[int]bool, len(names))
	for _, name := range names {
		if i, ok := r.Schema.Index(name); ok {
			idx[i] = true
		}
	}
	return idx
}

// EnrichedBatch is an ascending, deduplicated run of FeatureRecords, one per
// input PricePoint.
type EnrichedBatch struct {
	Schema  *FeatureSchema
	Records []FeatureRecord
}

// Len returns the number of records.
func (b EnrichedBatch) Len() int { return len(b.Records) }

// Last returns the newest record.
func (b EnrichedBatch) Last() (FeatureRecord, bool) {
	if len(b.Records) == 0 {
		return FeatureRecord{}, false
	}
	return b.Records[len(b.Records)-1], true
}

// At returns the record for the given timestamp.
func (b EnrichedBatch) At(ts time.Time) (FeatureRecord, bool) {
	for i := len(b.Records) - 1; i >= 0; i-- {
		if b.Records[i].Timestamp.Equal(ts) {
			return b.Records[i], true
		}
	}
	return FeatureRecord{}, false
}

// Target is the supervised label for a row: the price Horizon rows later and
// whether it is above the current price. Nil when the future row is missing.
type Target struct {
	Timestamp   time.Time `json:"timestamp"`
	FuturePrice *float64  `json:"future_price"`
	Change      *float64  `json:"change"`
	TrendUp     *bool     `json:"trend_up"`
}

// EnrichmentStats summarizes the stored feature table.
type EnrichmentStats struct {
	TotalRecords  int64      `json:"total_records"`
	Oldest        *time.Time `json:"oldest,omitempty"`
	Newest        *time.Time `json:"newest,omitempty"`
	FeatureCount  int        `json:"feature_count"`
	SchemaVersion string     `json:"schema_version"`
}

// Forecast is a model prediction for the price Horizon after Timestamp.
type Forecast struct {
	Timestamp      time.Time     `json:"timestamp"`
	Horizon        time.Duration `json:"-"`
	HorizonMinutes int           `json:"horizon_minutes"`
	CurrentPrice   float64       `json:"current_price"`
	PredictedPrice float64       `json:"predicted_price"`
	ProbaUp        float64       `json:"proba_up"`
	Model          string        `json:"model"`
	SchemaVersion  string        `json:"schema_version"`
}

// TrainingRow pairs a stored feature record with its supervised target.
type TrainingRow struct {
	Features FeatureRecord `json:"features"`
	Target   Target        `json:"target"`
}

// BackfillResult summarizes one backfill run.
type BackfillResult struct {
	Read     int           `json:"read"`
	Enriched int           `json:"enriched"`
	Stored   int           `json:"stored"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"-"`
	Seconds  float64       `json:"seconds"`
}
