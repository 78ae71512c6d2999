package errors

import (
	"fmt"
	"net/http"
)

// Code 错误码定义: 业务码、HTTP 状态码和对外消息
type Code struct {
	Code    int
	Status  int
	Message string
}

const (
	Success = 0

	// 通用错误 (1000-1999)
	ErrInternalServer = 1000

	// 连接错误 (2000-2999), 2003/2004 已停用
	ErrThreadIDRequired   = 2000
	ErrInvalidLimit       = 2001
	ErrInvalidInput       = 2002
	ErrStreamUnsupported  = 2005
	ErrEndpointRequired   = 2006
	ErrTooManyConnections = 2007
)

var codes = map[int]Code{
	Success:           {Success, http.StatusOK, "Success"},
	ErrInternalServer: {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},

	// 请求参数
	ErrThreadIDRequired:  {ErrThreadIDRequired, http.StatusBadRequest, "Thread ID is required"},
	ErrInvalidLimit:      {ErrInvalidLimit, http.StatusBadRequest, "Invalid history limit"},
	ErrInvalidInput:      {ErrInvalidInput, http.StatusBadRequest, "Invalid connect input"},
	ErrStreamUnsupported: {ErrStreamUnsupported, http.StatusBadRequest, "Streaming transport not supported by request"},

	// 服务端
	ErrEndpointRequired:   {ErrEndpointRequired, http.StatusServiceUnavailable, "Execution backend endpoint is not configured"},
	ErrTooManyConnections: {ErrTooManyConnections, http.StatusServiceUnavailable, "Too many concurrent connections"},
}

// Lookup 查找错误码, 未知错误码按内部错误处理
func Lookup(code int) Code {
	if c, ok := codes[code]; ok {
		return c
	}
	return codes[ErrInternalServer]
}

// HTTPStatus 错误码对应的 HTTP 状态码
func HTTPStatus(code int) int {
	return Lookup(code).Status
}

// Message 错误码对应的消息
func Message(code int) string {
	return Lookup(code).Message
}

// IsClientError 4xx
func IsClientError(code int) bool {
	status := HTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError 5xx
func IsServerError(code int) bool {
	return HTTPStatus(code) >= 500
}

// FormatError 拼接错误码消息和详情
func FormatError(code int, details string) string {
	if details == "" {
		return Message(code)
	}
	return fmt.Sprintf("%s: %s", Message(code), details)
}
