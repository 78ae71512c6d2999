package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
	apperrors "github.com/lk2023060901/agent-hydration/internal/pkg/errors"
	"github.com/lk2023060901/agent-hydration/internal/pkg/httpclient"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/lk2023060901/agent-hydration/internal/pkg/validator"
	"go.uber.org/zap"
)

// maxErrorBody 错误响应体最多保留的字节数
const maxErrorBody = 2048

// Client 执行后端 HTTP 客户端, 每个连接一个实例
type Client struct {
	cfg        biz.Config
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

var _ biz.Backend = (*Client)(nil)

// NewClient 创建执行后端客户端
func NewClient(cfg biz.Config, log *logger.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()
	baseURL, err := validator.NormalizeEndpoint(cfg.Endpoint)
	if errors.Is(err, validator.ErrEmptyEndpoint) {
		return nil, biz.ErrEndpointRequired
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrEndpointRequired)
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: httpclient.NewHTTPClient(cfg.Timeout),
		logger:     log.Named("backend"),
	}, nil
}

// FetchHistory 获取线程检查点历史(新的在前)
func (c *Client) FetchHistory(ctx context.Context, threadID string, limit int) ([]types.Checkpoint, error) {
	var raw []json.RawMessage
	body := map[string]int{"limit": limit}
	if err := c.doJSON(ctx, "fetchHistory", http.MethodPost, threadPath(threadID, "history"), body, &raw); err != nil {
		return nil, err
	}
	return decodeCheckpoints(raw, c.dropped), nil
}

// ListRuns 获取线程上的 run 列表
func (c *Client) ListRuns(ctx context.Context, threadID string) ([]types.Run, error) {
	var raw []json.RawMessage
	if err := c.doJSON(ctx, "listRuns", http.MethodGet, threadPath(threadID, "runs"), nil, &raw); err != nil {
		return nil, err
	}

	runs := make([]types.Run, 0, len(raw))
	for _, item := range raw {
		var run types.Run
		if err := json.Unmarshal(item, &run); err != nil {
			c.dropped("run", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// GetState 获取线程当前检查点
func (c *Client) GetState(ctx context.Context, threadID string) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	if err := c.doJSON(ctx, "getState", http.MethodGet, threadPath(threadID, "state"), nil, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// doJSON 执行 JSON 请求并解析响应
func (c *Client) doJSON(ctx context.Context, op, method, path string, body, result interface{}) error {
	endpoint := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &BackendError{Op: op, Err: fmt.Errorf("marshal request body: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return &BackendError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	c.logger.Debug("backend request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("url", endpoint),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &BackendError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return &BackendError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &BackendError{Op: op, StatusCode: resp.StatusCode, Body: truncate(respData)}
	}

	if result != nil && len(bytes.TrimSpace(respData)) > 0 {
		if err := json.Unmarshal(respData, result); err != nil {
			return &BackendError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal response: %w", err)}
		}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}
}

func (c *Client) dropped(kind string, err error) {
	if !c.cfg.Debug {
		return
	}
	c.logger.Debug("dropping malformed record",
		zap.String("kind", kind),
		zap.Error(err),
	)
}

// decodeCheckpoints 逐条解析检查点, 格式错误的记录被丢弃
func decodeCheckpoints(raw []json.RawMessage, dropped func(kind string, err error)) []types.Checkpoint {
	checkpoints := make([]types.Checkpoint, 0, len(raw))
	for _, item := range raw {
		var cp types.Checkpoint
		if err := json.Unmarshal(item, &cp); err != nil {
			dropped("checkpoint", err)
			continue
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints
}

func threadPath(threadID string, parts ...string) string {
	segments := append([]string{"threads", url.PathEscape(threadID)}, parts...)
	return "/" + strings.Join(segments, "/")
}

func truncate(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}
