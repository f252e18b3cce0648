//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"speedliner/pkg/config"
	"speedliner/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideHTTPClient,
		ProvideCache,
		ProvideClickHouseClient,

		// Repositories
		ProvideCooldownStore,
		ProvideAuditStore,
		ProvideAuditSink,
		ProvideIdentitySource,
		ProvideSubmissionEndpoint,

		// Use cases
		ProvideSubmitterFactory,
		ProvideRouteRegistry,
		ProvideSessionHub,
		ProvideRouteSync,
		ProvideKafkaConsumer,
		ProvideKafkaRoutesHandler,

		// Transport
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
