//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"
	"github.com/lk2023060901/agent-hydration/internal/conf"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/lk2023060901/agent-hydration/internal/pkg/sse"
	"github.com/lk2023060901/agent-hydration/internal/server"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	// Data layer
	dataProviderSet,

	// Use cases
	useCaseProviderSet,

	// HTTP/gRPC services
	httpServiceProviderSet,

	// Servers
	serverProviderSet,
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	provideRedisClient,
	provideHistoryKV,
	provideBackendFactory,
)

// Use case providers
var useCaseProviderSet = wire.NewSet(
	provideHydrationUseCase,
)

// HTTP/gRPC service providers
var httpServiceProviderSet = wire.NewSet(
	sse.NewHub,
	provideWorkerPool,
	provideHydrationService,
)

// Server providers
var serverProviderSet = wire.NewSet(
	server.NewHTTPServer,
	server.NewGRPCServer,
)

// InitializeApp initializes the application with Wire
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}
