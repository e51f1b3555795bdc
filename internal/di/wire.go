//go:build wireinject
// +build wireinject

package di

import (
	"TradeCast/pkg/config"
	"TradeCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvidePostgresClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideSignalStore,
		ProvideDeliveryStore,
		ProvideSubscriberStore,
		ProvideEventPublisher,
		ProvideAuditSink,

		// Services
		ProvideIdentityProvider,
		ProvideBytesCache,
		ProvideRateLimiter,
		ProvideHub,

		// Use cases
		ProvideBroadcaster,
		ProvideSignalService,
		ProvideSyncService,
		ProvideFanoutHandler,

		// HTTP surface and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
