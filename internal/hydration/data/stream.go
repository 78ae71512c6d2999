package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
	"github.com/lk2023060901/agent-hydration/internal/pkg/sse"
	"go.uber.org/zap"
)

// JoinStream 加入运行中 run 的实时流
//
// 返回的 channel 在流结束时关闭; 传输失败时最后一个 chunk 的 Err 非空。
// ctx 取消时直接关闭 channel, 不产生错误 chunk。响应体总是会被关闭。
func (c *Client) JoinStream(ctx context.Context, threadID, runID string, modes []string) (<-chan types.StreamChunk, error) {
	const op = "joinStream"

	query := url.Values{}
	for _, mode := range modes {
		query.Add("stream_mode", mode)
	}
	endpoint := c.baseURL + threadPath(threadID, "runs", url.PathEscape(runID), "stream")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &BackendError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req)

	c.logger.Debug("joining run stream",
		zap.String("thread_id", threadID),
		zap.String("run_id", runID),
		zap.Strings("stream_modes", modes),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &BackendError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		joinErr := &BackendError{Op: op, StatusCode: resp.StatusCode, Body: truncate(body)}
		if IsNotFound(joinErr) {
			// run 已结束或不存在
			joinErr.Err = biz.ErrNoActiveRun
		}
		return nil, joinErr
	}

	chunks := make(chan types.StreamChunk)
	go c.pump(ctx, resp.Body, chunks)
	return chunks, nil
}

// pump 读取 SSE 帧并转发为 StreamChunk
func (c *Client) pump(ctx context.Context, body io.ReadCloser, out chan<- types.StreamChunk) {
	defer close(out)
	defer body.Close()

	reader := sse.NewReader(body)
	for {
		frame, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			c.send(ctx, out, types.StreamChunk{Err: &BackendError{Op: "joinStream", Err: err}})
			return
		}

		chunk := types.StreamChunk{Event: frame.Event, Data: json.RawMessage(frame.Data)}
		if !c.send(ctx, out, chunk) {
			return
		}
	}
}

func (c *Client) send(ctx context.Context, out chan<- types.StreamChunk, chunk types.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
