package sse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ErrStreamClosed 流已关闭
var ErrStreamClosed = errors.New("stream closed")

// Stream SSE 流(封装 Client 和 Context)
//
// 生产者调用 Send 推送事件, 完成后调用 Finish; StartStreaming 所在的
// goroutine 是唯一写 ResponseWriter 的地方, 心跳也在同一个循环里发送。
type Stream struct {
	client    *Client
	ctx       *gin.Context
	hub       *Hub
	heartbeat time.Duration

	onConnect    func()
	onDisconnect func()
	onError      func(error)

	done       chan struct{} // 连接关闭
	finished   chan struct{} // 生产者结束
	closeOnce  sync.Once
	finishOnce sync.Once

	connectTime time.Time
}

// StreamBuilder 构建器
type StreamBuilder struct {
	ginCtx       *gin.Context
	hub          *Hub
	resource     string
	bufferSize   int
	heartbeat    time.Duration
	onConnect    func()
	onDisconnect func()
	onError      func(error)
}

// NewStream 创建 Stream 构建器
func NewStream(c *gin.Context, hub *Hub) *StreamBuilder {
	return &StreamBuilder{
		ginCtx:     c,
		hub:        hub,
		bufferSize: 64,
		heartbeat:  15 * time.Second,
	}
}

// WithResource 设置资源 ID
func (b *StreamBuilder) WithResource(resource string) *StreamBuilder {
	b.resource = resource
	return b
}

// WithBufferSize 设置 Channel 缓冲区大小
func (b *StreamBuilder) WithBufferSize(size int) *StreamBuilder {
	b.bufferSize = size
	return b
}

// WithHeartbeat 设置心跳间隔(0 表示禁用心跳)
func (b *StreamBuilder) WithHeartbeat(interval time.Duration) *StreamBuilder {
	b.heartbeat = interval
	return b
}

// OnConnect 设置连接建立钩子
func (b *StreamBuilder) OnConnect(fn func()) *StreamBuilder {
	b.onConnect = fn
	return b
}

// OnDisconnect 设置连接断开钩子
func (b *StreamBuilder) OnDisconnect(fn func()) *StreamBuilder {
	b.onDisconnect = fn
	return b
}

// OnError 设置错误处理钩子
func (b *StreamBuilder) OnError(fn func(error)) *StreamBuilder {
	b.onError = fn
	return b
}

// Build 构建 Stream
func (b *StreamBuilder) Build() *Stream {
	return &Stream{
		client: &Client{
			ID:       uuid.New().String(),
			Channel:  make(chan Event, b.bufferSize),
			Resource: b.resource,
		},
		ctx:          b.ginCtx,
		hub:          b.hub,
		heartbeat:    b.heartbeat,
		onConnect:    b.onConnect,
		onDisconnect: b.onDisconnect,
		onError:      b.onError,
		done:         make(chan struct{}),
		finished:     make(chan struct{}),
		connectTime:  time.Now(),
	}
}

// Send 发送事件, 缓冲区满时阻塞直到被写出、连接关闭或 ctx 取消
func (s *Stream) Send(ctx context.Context, eventType string, data interface{}) error {
	event := Event{Type: eventType, Data: data}

	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}

	select {
	case s.client.Channel <- event:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish 通知生产者已结束; 已缓冲的事件写出后 StartStreaming 返回
func (s *Stream) Finish() {
	s.finishOnce.Do(func() { close(s.finished) })
}

// Close 关闭流(幂等)
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.hub != nil {
			s.hub.Unregister(s.client)
		}
		if s.onDisconnect != nil {
			s.onDisconnect()
		}
	})
	return nil
}

// Done 连接关闭时返回的 channel
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// StartStreaming 开始流式传输(阻塞直到生产者结束或连接关闭)
func (s *Stream) StartStreaming() {
	s.ctx.Header("Content-Type", "text/event-stream")
	s.ctx.Header("Cache-Control", "no-cache")
	s.ctx.Header("Connection", "keep-alive")
	s.ctx.Header("X-Accel-Buffering", "no")
	s.ctx.Status(200)
	s.ctx.Writer.Flush()

	if s.hub != nil {
		s.hub.Register(s.client)
	}
	defer s.Close()

	if s.onConnect != nil {
		s.onConnect()
	}

	var tick <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	clientGone := s.ctx.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return

		case <-s.done:
			return

		case event := <-s.client.Channel:
			if !s.write(event.FormatSSE()) {
				return
			}

		case <-s.finished:
			s.drain()
			return

		case <-tick:
			if !s.write(": heartbeat\n\n") {
				return
			}
		}
	}
}

// drain 写出生产者结束前已缓冲的事件
func (s *Stream) drain() {
	for {
		select {
		case event := <-s.client.Channel:
			if !s.write(event.FormatSSE()) {
				return
			}
		default:
			return
		}
	}
}

func (s *Stream) write(frame string) bool {
	if _, err := fmt.Fprint(s.ctx.Writer, frame); err != nil {
		if s.onError != nil {
			s.onError(err)
		}
		return false
	}
	s.ctx.Writer.Flush()
	return true
}

// GetClientID 获取客户端 ID
func (s *Stream) GetClientID() string {
	return s.client.ID
}

// GetResource 获取资源 ID
func (s *Stream) GetResource() string {
	return s.client.Resource
}

// GetDuration 获取连接时长
func (s *Stream) GetDuration() time.Duration {
	return time.Since(s.connectTime)
}

// IsClosed 检查是否已关闭
func (s *Stream) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
