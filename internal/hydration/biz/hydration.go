package biz

import (
	"context"

	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"go.uber.org/zap"
)

// ConnectRequest 客户端连接请求
type ConnectRequest struct {
	ThreadID string
	GraphID  string
	Limit    int
	Input    map[string]any
}

// Validate checks the request before any event is sent.
func (r *ConnectRequest) Validate() error {
	if r.ThreadID == "" {
		return ErrThreadIDRequired
	}
	if r.Limit < 0 {
		return ErrInvalidLimit
	}
	return nil
}

// HydrationUseCase builds one orchestrator per connection from an immutable
// base configuration.
type HydrationUseCase struct {
	base       Config
	newBackend BackendFactory
	logger     *logger.Logger
	opts       []OrchestratorOption
}

// NewHydrationUseCase creates a new hydration use case
func NewHydrationUseCase(base Config, newBackend BackendFactory, log *logger.Logger, opts ...OrchestratorOption) *HydrationUseCase {
	return &HydrationUseCase{
		base:       base.WithDefaults(),
		newBackend: newBackend,
		logger:     log.Named("hydration"),
		opts:       opts,
	}
}

// ConfigFor derives the request-scoped configuration for req.
func (uc *HydrationUseCase) ConfigFor(req *ConnectRequest) Config {
	cfg := uc.base
	if req.GraphID != "" {
		cfg.GraphID = req.GraphID
	}
	if req.Limit > 0 {
		cfg.HistoryLimit = req.Limit
	}
	return cfg.WithDefaults()
}

// Validate checks a request and the service configuration.
func (uc *HydrationUseCase) Validate(req *ConnectRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if uc.base.Endpoint == "" {
		return ErrEndpointRequired
	}
	return nil
}

// Connect hydrates one connection into sink. The sink always receives a
// terminated sequence unless the consumer went away first.
func (uc *HydrationUseCase) Connect(ctx context.Context, req *ConnectRequest, sink Sink) error {
	cfg := uc.ConfigFor(req)

	backend, err := uc.newBackend(cfg)
	if err != nil {
		uc.logger.Warn("failed to create backend client",
			zap.String("thread_id", req.ThreadID),
			zap.Error(err))
		return NewOrchestrator(cfg, nil, uc.logger, uc.opts...).Fallback(ctx, req.ThreadID, err, sink)
	}

	return NewOrchestrator(cfg, backend, uc.logger, uc.opts...).Run(ctx, req.ThreadID, req.Input, sink)
}
