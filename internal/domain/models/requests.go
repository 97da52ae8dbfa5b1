package models

import "time"

// Requests for feature HTTP endpoints.

type PricePointRequest struct {
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Price     float64   `json:"price" validate:"gt=0"`
	Source    string    `json:"source" default:"binance"`
}

type EnrichBatchRequest struct {
	Points []PricePointRequest `json:"points" validate:"required,min=1,max=20000,dive"`
}

type EnrichIncrementalRequest struct {
	Window []PricePointRequest `json:"window" validate:"required,max=5000,dive"`
	Point  PricePointRequest   `json:"point" validate:"required"`
}

type FeatureRangeRequest struct {
	From  time.Time `query:"from" json:"from"`
	To    time.Time `query:"to" json:"to"`
	Limit int       `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=10000"`
}

type BackfillRequest struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Limit int       `json:"limit" validate:"gte=0"`
}

type TrainingSetRequest struct {
	From time.Time `query:"from" json:"from"`
	To   time.Time `query:"to" json:"to"`
	// Partial keeps rows with missing features or targets.
	Partial bool `query:"partial" json:"partial"`
	Limit   int  `query:"limit" json:"limit" default:"10000" validate:"gte=1,lte=100000"`
}

// ToPricePoint converts the request into a domain PricePoint.
func (r PricePointRequest) ToPricePoint() PricePoint {
	return PricePoint{Timestamp: r.Timestamp, Price: r.Price, Source: r.Source}
}
