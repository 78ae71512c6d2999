package service

import (
	"encoding/json"
	"strings"

	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	apperrors "github.com/lk2023060901/agent-hydration/internal/pkg/errors"
	"github.com/lk2023060901/agent-hydration/internal/pkg/sse"
)

// ConnectQuery 连接请求的查询参数
type ConnectQuery struct {
	GraphID string `form:"graph_id"`
	Limit   int    `form:"limit" binding:"omitempty,min=1"`
	Input   string `form:"input"` // JSON 对象, 交给 StateExtractor
}

// toRequest 转换为业务层请求
func (q *ConnectQuery) toRequest(threadID string) (*biz.ConnectRequest, error) {
	req := &biz.ConnectRequest{
		ThreadID: strings.TrimSpace(threadID),
		GraphID:  q.GraphID,
		Limit:    q.Limit,
	}
	if strings.TrimSpace(q.Input) != "" {
		if err := json.Unmarshal([]byte(q.Input), &req.Input); err != nil {
			return nil, apperrors.New(apperrors.ErrInvalidInput, "input must be a JSON object")
		}
	}
	return req, nil
}

// StatsResponse 连接统计
type StatsResponse struct {
	Total    int                 `json:"total"`
	Capacity int                 `json:"capacity"`
	Threads  []sse.ResourceCount `json:"threads"`
}
