package workerpool

import (
	"errors"
	"fmt"
	"time"

	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	// ErrPoolFull 所有 worker 都在运行
	ErrPoolFull = errors.New("worker pool is full")
	// ErrPoolClosed 池已释放
	ErrPoolClosed = errors.New("worker pool is closed")
)

// Config Worker Pool 配置
type Config struct {
	Size           int           // 最大并发任务数, <= 0 表示不限制
	ExpiryDuration time.Duration // 空闲 worker 回收间隔
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Size:           256,
		ExpiryDuration: time.Minute,
	}
}

// Pool 基于 ants 的非阻塞任务池
//
// 池满时 Submit 立即返回 ErrPoolFull, 调用方据此拒绝新连接。
type Pool struct {
	pool   *ants.Pool
	logger *logger.Logger
}

// New 创建 Pool
func New(cfg Config, log *logger.Logger) (*Pool, error) {
	size := cfg.Size
	if size <= 0 {
		size = -1
	}
	expiry := cfg.ExpiryDuration
	if expiry <= 0 {
		expiry = DefaultConfig().ExpiryDuration
	}

	p := &Pool{logger: log.Named("workerpool")}
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(expiry),
		ants.WithPanicHandler(p.handlePanic),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	p.pool = pool
	return p, nil
}

// Submit 提交任务
func (p *Pool) Submit(task func()) error {
	err := p.pool.Submit(task)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrPoolFull
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	default:
		return err
	}
}

// Running 存活的 worker 数(包括空闲 worker)
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Cap 容量, -1 表示不限制
func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Release 释放池, 等待运行中的任务最多 timeout
func (p *Pool) Release(timeout time.Duration) {
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		p.logger.Warn("worker pool release timed out", zap.Int("running", p.pool.Running()), zap.Error(err))
	}
}

func (p *Pool) handlePanic(v interface{}) {
	p.logger.Error("task panicked", zap.Any("panic", v), zap.Stack("stack"))
}
