package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/agent-hydration/internal/conf"
	"github.com/lk2023060901/agent-hydration/internal/hydration/service"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"go.uber.org/zap"
)

// HTTPServer SSE/WebSocket 接入和探活接口
type HTTPServer struct {
	server *http.Server
	router *gin.Engine
	logger *logger.Logger
	ready  atomic.Bool
}

// NewHTTPServer 创建 HTTP 服务器
//
// 连接接口是长连接, 所以不设置 WriteTimeout。
func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	hydrationService *service.HydrationService,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	s := &HTTPServer{logger: log.Named("http")}

	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLogger(log, logger.MiddlewareOptions{
		SkipPaths: []string{"/health", "/ready"},
	}))

	router.GET("/health", s.health)
	router.GET("/ready", s.readiness)
	hydrationService.RegisterRoutes(router.Group("/api/v1"))

	s.router = router
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// readiness 启动完成前和关闭开始后返回 503
func (s *HTTPServer) readiness(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// SetReady 切换 /ready 的状态
func (s *HTTPServer) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler 路由
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start 阻塞直到服务器关闭, 正常关闭返回 nil
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅关闭, 进行中的连接在 ctx 到期前完成
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.SetReady(false)
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
