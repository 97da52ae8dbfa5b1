package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FeatureRecordWire is the JSON form of a FeatureRecord used on the API,
// the features topic and the cache. Features are keyed by name; nulls are
// kept as JSON null.
type FeatureRecordWire struct {
	Timestamp     time.Time           `json:"timestamp"`
	Price         float64             `json:"price"`
	Source        string              `json:"source"`
	SchemaVersion string              `json:"schema_version"`
	Features      map[string]*float64 `json:"features"`
}

// Wire converts the record to its JSON form.
func (r FeatureRecord) Wire() FeatureRecordWire {
	w := FeatureRecordWire{
		Timestamp: r.Timestamp,
		Price:     r.Price,
		Source:    r.Source,
		Features:  make(map[string]*float64, len(r.Values)),
	}
	if r.Schema == nil {
		return w
	}
	w.SchemaVersion = r.Schema.Version
	for i, name := range r.Schema.names {
		if i < len(r.Values) {
			w.Features[name] = r.Values[i]
		}
	}
	return w
}

func (r FeatureRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Wire())
}

// SchemaMismatchError is returned when a wire record was produced under a
// different schema version.
type SchemaMismatchError struct {
	Want, Got string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema version mismatch: want %s, got %s", e.Want, e.Got)
}

// Record rebuilds a FeatureRecord against schema. Names missing from the wire
// form come back as nil.
func (w FeatureRecordWire) Record(schema *FeatureSchema) (FeatureRecord, error) {
	if w.SchemaVersion != schema.Version {
		return FeatureRecord{}, &SchemaMismatchError{Want: schema.Version, Got: w.SchemaVersion}
	}
	values := make([]*float64, schema.Len())
	for i, name := range schema.names {
		values[i] = w.Features[name]
	}
	return FeatureRecord{
		PricePoint: PricePoint{Timestamp: w.Timestamp, Price: w.Price, Source: w.Source},
		Schema:     schema,
		Values:     values,
	}, nil
}

// MarshalJSON writes the batch as {schema_version, names, records}.
func (b EnrichedBatch) MarshalJSON() ([]byte, error) {
	out := struct {
		SchemaVersion string          `json:"schema_version"`
		Names         []string        `json:"names"`
		Count         int             `json:"count"`
		Records       []FeatureRecord `json:"records"`
	}{Count: len(b.Records), Records: b.Records}
	if out.Records == nil {
		out.Records = []FeatureRecord{}
	}
	if b.Schema != nil {
		out.SchemaVersion = b.Schema.Version
		out.Names = b.Schema.names
	}
	return json.Marshal(out)
}
