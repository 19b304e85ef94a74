//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinShock/pkg/config"
	"FinShock/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogShipping,
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaConsumer,

		// Repositories
		ProvideResultCache,
		ProvideAnomalyStore,
		ProvideFeatureStore,
		ProvideResultPublisher,

		// Services and use cases
		ProvideDetector,
		ProvideFeedHub,
		ProvideAnomalyUseCase,
		ProvideKafkaDetectHandler,

		// Transport and application
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
