package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestFeatureRecord_WireRoundTrip(t *testing.T) {
	schema := NewFeatureSchema("v1-test", []string{"a", "b", "c"})
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := FeatureRecord{
		PricePoint: PricePoint{Timestamp: ts, Price: 42000.5, Source: "binance"},
		Schema:     schema,
		Values:     []*float64{f(1), nil, f(-2.5)},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":"2024-03-01T12:00:00Z","price":42000.5,"source":"binance",
		"schema_version":"v1-test","features":{"a":1,"b":null,"c":-2.5}}`, string(data))

	var w FeatureRecordWire
	require.NoError(t, json.Unmarshal(data, &w))
	back, err := w.Record(schema)
	require.NoError(t, err)
	assert.True(t, back.Timestamp.Equal(ts))
	assert.Equal(t, 1.0, *back.Values[0])
	assert.Nil(t, back.Values[1])
	assert.Equal(t, -2.5, *back.Values[2])
}

func TestFeatureRecordWire_SchemaMismatch(t *testing.T) {
	schema := NewFeatureSchema("v1-new", []string{"a"})
	_, err := FeatureRecordWire{SchemaVersion: "v1-old"}.Record(schema)
	var mm *SchemaMismatchError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, "v1-old", mm.Got)
}

func TestEnrichedBatch_MarshalJSON(t *testing.T) {
	schema := NewFeatureSchema("v1-test", []string{"a"})
	data, err := json.Marshal(EnrichedBatch{Schema: schema})
	require.NoError(t, err)
	assert.JSONEq(t, `{"schema_version":"v1-test","names":["a"],"count":0,"records":[]}`, string(data))
}

func TestFeatureRecord_Accessors(t *testing.T) {
	schema := NewFeatureSchema("v", []string{"x", "y"})
	rec := FeatureRecord{Schema: schema, Values: []*float64{f(3), nil}}

	v, ok := rec.Value("x")
	require.True(t, ok)
	assert.Equal(t, 3.0, *v)
	_, ok = rec.Value("z")
	assert.False(t, ok)

	assert.Equal(t, []float64{3, 0}, rec.VectorZeroFilled())
	assert.False(t, rec.Complete())

	_, err := schema.Select("x", "z")
	assert.EqualError(t, err, "unknown feature: z")
}
