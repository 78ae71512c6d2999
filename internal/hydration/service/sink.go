package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/lk2023060901/agent-hydration/internal/pkg/sse"
	"go.uber.org/zap"
)

const wsWriteWait = 10 * time.Second

// SSESink 把 UI 事件写入 SSE 流
type SSESink struct {
	stream *sse.Stream
	logger *logger.Logger
}

var _ biz.Sink = (*SSESink)(nil)

// NewSSESink 创建 SSE sink
func NewSSESink(stream *sse.Stream, log *logger.Logger) *SSESink {
	return &SSESink{stream: stream, logger: log}
}

// Emit 发送事件, 事件类型作为 SSE event 名
func (s *SSESink) Emit(ctx context.Context, event types.Event) error {
	return s.stream.Send(ctx, string(event.EventType()), event)
}

// Complete 序列完整结束
func (s *SSESink) Complete() {
	s.stream.Finish()
}

// Fail 序列中断
func (s *SSESink) Fail(err error) {
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, sse.ErrStreamClosed) {
		s.logger.Warn("sse stream aborted", zap.String("client_id", s.stream.GetClientID()), zap.Error(err))
	}
	s.stream.Finish()
}

// wsConn WSSink 使用的 *websocket.Conn 方法
type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// WSSink 把 UI 事件写入 WebSocket, 每个事件一个文本帧
type WSSink struct {
	mu     sync.Mutex
	conn   wsConn
	logger *logger.Logger
}

var _ biz.Sink = (*WSSink)(nil)

// NewWSSink 创建 WebSocket sink
func NewWSSink(conn *websocket.Conn, log *logger.Logger) *WSSink {
	return &WSSink{conn: conn, logger: log}
}

// Emit 发送事件
func (s *WSSink) Emit(ctx context.Context, event types.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return fmt.Errorf("set websocket write deadline: %w", err)
	}
	return s.conn.WriteJSON(event)
}

// Complete 发送正常关闭帧
func (s *WSSink) Complete() {
	s.close(websocket.CloseNormalClosure, "run finished")
}

// Fail 以错误状态关闭连接
func (s *WSSink) Fail(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		s.close(websocket.CloseGoingAway, "")
		return
	}
	s.logger.Warn("websocket stream aborted", zap.Error(err))
	s.close(websocket.CloseInternalServerErr, "hydration aborted")
}

func (s *WSSink) close(code int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, text)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)); err != nil {
		s.logger.Debug("write close frame failed", zap.Error(err))
	}
}

// JSONLinesSink 每行输出一个 JSON 事件
type JSONLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

var _ biz.Sink = (*JSONLinesSink)(nil)

// NewJSONLinesSink 创建 JSON Lines sink
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

// Emit 写出一行
func (s *JSONLinesSink) Emit(_ context.Context, event types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(event)
}

// Complete 无操作
func (s *JSONLinesSink) Complete() {}

// Fail 记录失败原因
func (s *JSONLinesSink) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Err 返回 Fail 传入的错误
func (s *JSONLinesSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
