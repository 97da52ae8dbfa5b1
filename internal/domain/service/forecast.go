package service

import (
	"context"

	"PriceFeatures/internal/domain/models"
)

// Forecaster scores a feature vector with an externally served model.
type Forecaster interface {
	Predict(ctx context.Context, rec models.FeatureRecord) (models.Forecast, error)
}
