//go:build wireinject
// +build wireinject

package di

import (
	"PriceFeatures/pkg/config"
	"PriceFeatures/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		serviceSet,
		ProvideJobQueue,
		ProvideKafkaConsumer,
		ProvidePriceTicksHandler,
		ProvidePriceCollector,
		ProvideForecaster,
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}

var serviceSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideRedisClient,
	ProvideCache,
	ProvideFeatureEngine,
	ProvideCoordinator,
	ProvidePriceStore,
	ProvideFeatureStore,
	ProvideFeaturePublisher,
	ProvideLatestCache,
	ProvideEnrichmentService,
)

// InitializeToolkit wires the enrichment service without the long-running
// components.
func InitializeToolkit(cfg *config.Config) (*Toolkit, func(), error) {
	wire.Build(serviceSet, ProvideToolkit)
	return nil, nil, nil
}
