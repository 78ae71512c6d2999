package errors

import (
	"errors"
	"fmt"
	"strings"
)

// AppError 带业务错误码的错误
type AppError struct {
	Code    int
	Message string
	Details string
	Err     error
}

func (e *AppError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", e.Code, e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	// 被包装的 AppError 与外层同码, 不重复输出
	var inner *AppError
	if e.Err != nil && !errors.As(e.Err, &inner) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus 对应的 HTTP 状态码
func (e *AppError) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// New 创建 AppError, details 只取第一个
func New(code int, details ...string) *AppError {
	return &AppError{
		Code:    code,
		Message: Message(code),
		Details: first(details),
	}
}

// Wrap 用错误码包装 err
//
// err 链上已有 AppError 时沿用其错误码和详情(除非传入新的详情)。
// 总是返回新值, 不修改被包装的错误。
func Wrap(err error, code int, details ...string) *AppError {
	if err == nil {
		return nil
	}

	detail := first(details)
	var inner *AppError
	if errors.As(err, &inner) {
		code = inner.Code
		if detail == "" {
			detail = inner.Details
		}
	}

	return &AppError{
		Code:    code,
		Message: Message(code),
		Details: detail,
		Err:     err,
	}
}

// Wrapf 同 Wrap, details 使用格式化字符串
func Wrapf(err error, code int, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is 判断 err 链上是否有指定错误码的 AppError
func Is(err error, code int) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// CodeOf 提取错误码, 非 AppError 返回 ErrInternalServer
func CodeOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternalServer
}

// DetailsOf 提取对外展示的详情: 优先 Details, 否则取最内层非 AppError 的原因
func DetailsOf(err error) string {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return err.Error()
		}
		if appErr.Details != "" {
			return appErr.Details
		}
		err = appErr.Err
	}
	return ""
}

func first(values []string) string {
	if len(values) > 0 {
		return values[0]
	}
	return ""
}
