package forecast

import (
	"context"
	"fmt"
	"time"

	"PriceFeatures/internal/domain/models"
	domsvc "PriceFeatures/internal/domain/service"
)

// HTTPForecaster sends the feature vector in registry order to an external
// model server. Missing values are zero filled here, at the boundary; the
// server also receives the names and schema version so it can refuse a
// vector built for a different schema.
type HTTPForecaster struct {
	base    *HTTPServiceBase
	horizon int
}

func NewHTTPForecaster(base *HTTPServiceBase, horizonMinutes int) *HTTPForecaster {
	return &HTTPForecaster{base: base, horizon: horizonMinutes}
}

type predictReq struct {
	Timestamp     time.Time `json:"timestamp"`
	Price         float64   `json:"price"`
	SchemaVersion string    `json:"schema_version"`
	Names         []string  `json:"names"`
	Values        []float64 `json:"values"`
	Horizon       int       `json:"horizon_minutes"`
}

type predictResp struct {
	PredictedPrice float64 `json:"predicted_price"`
	ProbaUp        float64 `json:"proba_up"`
	Model          string  `json:"model"`
}

func (f *HTTPForecaster) Predict(ctx context.Context, rec models.FeatureRecord) (models.Forecast, error) {
	if rec.Schema == nil {
		return models.Forecast{}, fmt.Errorf("predict: record has no schema")
	}
	req := predictReq{
		Timestamp:     rec.Timestamp,
		Price:         rec.Price,
		SchemaVersion: rec.Schema.Version,
		Names:         rec.Schema.Names(),
		Values:        rec.VectorZeroFilled(),
		Horizon:       f.horizon,
	}
	var resp predictResp
	if err := f.base.PostJSON(ctx, "/predict", req, &resp); err != nil {
		return models.Forecast{}, fmt.Errorf("predict: %w", err)
	}
	return models.Forecast{
		Timestamp:      rec.Timestamp,
		Horizon:        time.Duration(f.horizon) * time.Minute,
		HorizonMinutes: f.horizon,
		CurrentPrice:   rec.Price,
		PredictedPrice: resp.PredictedPrice,
		ProbaUp:        resp.ProbaUp,
		Model:          resp.Model,
		SchemaVersion:  rec.Schema.Version,
	}, nil
}

var _ domsvc.Forecaster = (*HTTPForecaster)(nil)
