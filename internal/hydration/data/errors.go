package data

import (
	"errors"
	"fmt"
	"net/http"
)

// BackendError 执行后端请求失败
type BackendError struct {
	Op         string // fetchHistory / listRuns / getState / joinStream
	StatusCode int    // 0 表示未收到响应
	Body       string
	Err        error
}

func (e *BackendError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("backend %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("backend %s: status %d", e.Op, e.StatusCode)
	}
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsNotFound 判断是否为线程或 run 不存在
func IsNotFound(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.StatusCode == http.StatusNotFound
}
