package service

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	apperrors "github.com/lk2023060901/agent-hydration/internal/pkg/errors"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/lk2023060901/agent-hydration/internal/pkg/response"
	"github.com/lk2023060901/agent-hydration/internal/pkg/sse"
	"github.com/lk2023060901/agent-hydration/internal/pkg/workerpool"
	"go.uber.org/zap"
)

// HydrationService handles thread connect requests over SSE and WebSocket
type HydrationService struct {
	useCase   *biz.HydrationUseCase
	hub       *sse.Hub
	pool      *workerpool.Pool
	logger    *logger.Logger
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

// NewHydrationService creates a new hydration service
func NewHydrationService(
	useCase *biz.HydrationUseCase,
	hub *sse.Hub,
	pool *workerpool.Pool,
	log *logger.Logger,
	heartbeat time.Duration,
) *HydrationService {
	return &HydrationService{
		useCase:   useCase,
		hub:       hub,
		pool:      pool,
		logger:    log.Named("hydration.service"),
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers hydration routes
func (s *HydrationService) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/threads/:thread_id/connect", s.Connect)
	r.GET("/threads/:thread_id/connect/ws", s.ConnectWS)
	r.GET("/hydration/stats", s.Stats)
}

// bindConnect parses and validates a connect request before any byte is streamed
func (s *HydrationService) bindConnect(c *gin.Context) (*biz.ConnectRequest, error) {
	var query ConnectQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidLimit, "limit must be a positive integer")
	}
	req, err := query.toRequest(c.Param("thread_id"))
	if err != nil {
		return nil, err
	}
	if err := s.useCase.Validate(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Connect streams the hydration sequence of a thread as server-sent events
// @Summary Connect to a thread
// @Tags hydration
// @Produce text/event-stream
// @Param thread_id path string true "Thread ID"
// @Param graph_id query string false "Graph ID"
// @Param limit query int false "History limit"
// @Param input query string false "Connect input (JSON object)"
// @Router /api/v1/threads/{thread_id}/connect [get]
func (s *HydrationService) Connect(c *gin.Context) {
	req, err := s.bindConnect(c)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	log := s.logger.WithContext(c.Request.Context()).With(zap.String("thread_id", req.ThreadID))
	stream := sse.NewStream(c, s.hub).
		WithResource(req.ThreadID).
		WithHeartbeat(s.heartbeat).
		OnConnect(func() { log.Info("sse client connected") }).
		OnError(func(err error) { log.Warn("sse write failed", zap.Error(err)) }).
		Build()

	ctx, cancel := context.WithCancel(c.Request.Context())
	done := make(chan struct{})
	err = s.pool.Submit(func() {
		defer close(done)
		if err := s.useCase.Connect(ctx, req, NewSSESink(stream, log)); err != nil {
			log.Debug("hydration ended early", zap.Error(err))
		}
	})
	if err != nil {
		cancel()
		s.rejectBusy(c, err)
		return
	}

	stream.StartStreaming()
	cancel()
	<-done

	log.Info("sse client disconnected", zap.Duration("duration", stream.GetDuration()))
}

// ConnectWS streams the hydration sequence of a thread over a WebSocket
// @Summary Connect to a thread over WebSocket
// @Tags hydration
// @Param thread_id path string true "Thread ID"
// @Router /api/v1/threads/{thread_id}/connect/ws [get]
func (s *HydrationService) ConnectWS(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		response.HandleError(c, apperrors.New(apperrors.ErrStreamUnsupported, "websocket upgrade required"))
		return
	}
	req, err := s.bindConnect(c)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	log := s.logger.WithContext(c.Request.Context()).With(zap.String("thread_id", req.ThreadID))
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 先占用 worker 再升级, 池满时仍可返回普通 HTTP 错误
	handoff := make(chan *websocket.Conn, 1)
	finished := make(chan struct{})
	err = s.pool.Submit(func() {
		defer close(finished)
		if conn, ok := <-handoff; ok {
			s.serveWS(ctx, cancel, conn, req, log)
		}
	})
	if err != nil {
		s.rejectBusy(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已写出错误响应
		log.Warn("websocket upgrade failed", zap.Error(err))
		close(handoff)
		<-finished
		return
	}
	handoff <- conn
	<-finished
}

func (s *HydrationService) serveWS(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, req *biz.ConnectRequest, log *logger.Logger) {
	defer conn.Close()

	client := &sse.Client{ID: uuid.New().String(), Resource: req.ThreadID}
	s.hub.Register(client)
	defer s.hub.Unregister(client)

	// 读循环只用于感知客户端断开
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	start := time.Now()
	log.Info("websocket client connected")
	if err := s.useCase.Connect(ctx, req, NewWSSink(conn, log)); err != nil {
		log.Debug("hydration ended early", zap.Error(err))
	}
	log.Info("websocket client disconnected", zap.Duration("duration", time.Since(start)))
}

func (s *HydrationService) rejectBusy(c *gin.Context, err error) {
	s.logger.Warn("connection rejected", zap.Int("capacity", s.pool.Cap()), zap.Error(err))
	response.HandleError(c, apperrors.Wrap(err, apperrors.ErrTooManyConnections))
}

// Stats returns the number of live connections per thread
// @Summary Connection stats
// @Tags hydration
// @Produce json
// @Success 200 {object} StatsResponse
// @Router /api/v1/hydration/stats [get]
func (s *HydrationService) Stats(c *gin.Context) {
	response.Success(c, StatsResponse{
		Total:    s.hub.Total(),
		Capacity: s.pool.Cap(),
		Threads:  s.hub.Stats(),
	})
}
