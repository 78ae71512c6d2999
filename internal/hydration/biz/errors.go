package biz

import (
	"errors"

	apperrors "github.com/lk2023060901/agent-hydration/internal/pkg/errors"
)

var (
	// ErrThreadIDRequired 线程 ID 必填
	ErrThreadIDRequired = apperrors.New(apperrors.ErrThreadIDRequired)

	// ErrInvalidLimit 历史条数必须为正数
	ErrInvalidLimit = apperrors.New(apperrors.ErrInvalidLimit, "limit must be a positive integer")

	// ErrEndpointRequired 未配置执行后端地址
	ErrEndpointRequired = apperrors.New(apperrors.ErrEndpointRequired)

	// ErrNoActiveRun 线程上没有运行中的 run
	ErrNoActiveRun = errors.New("no active run on thread")
)
