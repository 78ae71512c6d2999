package injector

import (
	"time"

	"github.com/lk2023060901/agent-hydration/internal/conf"
	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	"github.com/lk2023060901/agent-hydration/internal/hydration/data"
	"github.com/lk2023060901/agent-hydration/internal/hydration/service"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/agent-hydration/internal/pkg/redis"
	"github.com/lk2023060901/agent-hydration/internal/pkg/sse"
	"github.com/lk2023060901/agent-hydration/internal/pkg/workerpool"
	"github.com/lk2023060901/agent-hydration/internal/server"
	"go.uber.org/zap"
)

// Data layer helpers

func provideRedisClient(config *conf.Config, log *logger.Logger) (*pkgredis.Client, func(), error) {
	if !config.Redis.Enabled {
		log.Info("redis disabled, history cache off")
		return nil, func() {}, nil
	}

	client, err := pkgredis.New(&config.Redis, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Error("failed to close redis client", zap.Error(err))
		}
	}
	return client, cleanup, nil
}

func provideHistoryKV(client *pkgredis.Client) data.KV {
	if client == nil {
		return nil
	}
	return client
}

func provideBackendFactory(config *conf.Config, log *logger.Logger, kv data.KV) biz.BackendFactory {
	return data.NewBackendFactory(log, kv, config.Hydration.CacheTTL)
}

// Use case providers

func provideHydrationUseCase(config *conf.Config, factory biz.BackendFactory, log *logger.Logger) *biz.HydrationUseCase {
	return biz.NewHydrationUseCase(config.Hydration.Base(), factory, log)
}

// Service providers

func provideWorkerPool(config *conf.Config, log *logger.Logger) (*workerpool.Pool, func(), error) {
	cfg := workerpool.DefaultConfig()
	cfg.Size = config.Hydration.MaxConnections

	pool, err := workerpool.New(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		pool.Release(5 * time.Second)
	}
	return pool, cleanup, nil
}

func provideHydrationService(
	config *conf.Config,
	useCase *biz.HydrationUseCase,
	hub *sse.Hub,
	pool *workerpool.Pool,
	log *logger.Logger,
) *service.HydrationService {
	return service.NewHydrationService(useCase, hub, pool, log, config.Hydration.Heartbeat)
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	httpServer *server.HTTPServer,
	grpcServer *server.GRPCServer,
) *App {
	return &App{
		Config:     config,
		Logger:     log,
		HTTPServer: httpServer,
		GRPCServer: grpcServer,
	}
}
