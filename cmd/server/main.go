package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lk2023060901/agent-hydration/internal/conf"
	"github.com/lk2023060901/agent-hydration/internal/pkg/injector"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var configFile = flag.String("config", "configs/config.yaml", "config file path")

func main() {
	flag.Parse()
	if err := run(*configFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string) error {
	config, err := conf.LoadConfig(path)
	if err != nil {
		return err
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("config loaded",
		zap.String("endpoint", config.Hydration.Endpoint),
		zap.Bool("history_cache", config.Redis.Enabled),
		zap.Int("max_connections", config.Hydration.MaxConnections),
	)

	app, cleanup, err := injector.InitializeApp(config, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 2)
	go func() {
		if err := app.HTTPServer.Start(); err != nil {
			serveErr <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := app.GRPCServer.Start(); err != nil {
			serveErr <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	app.HTTPServer.SetReady(true)
	app.GRPCServer.SetServing(true)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err = <-serveErr:
		log.Error("server failed", zap.Error(err))
	}

	app.HTTPServer.SetReady(false)
	app.GRPCServer.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := app.HTTPServer.Stop(shutdownCtx); stopErr != nil {
		log.Error("http server forced to shutdown", zap.Error(stopErr))
	}
	app.GRPCServer.Stop()

	log.Info("servers exited")
	return err
}
