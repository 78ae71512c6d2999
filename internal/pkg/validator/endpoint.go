package validator

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrEmptyEndpoint 地址为空
	ErrEmptyEndpoint = errors.New("endpoint is empty")
	// ErrInvalidEndpoint 地址不是合法的 http(s) 基础地址
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// NormalizeEndpoint 校验并规范化 HTTP 服务基础地址
// 只接受带主机名的 http/https 绝对地址, 不允许 query 和 fragment, 返回值去掉末尾的 "/"
func NormalizeEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyEndpoint
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("%w: query and fragment are not allowed", ErrInvalidEndpoint)
	}

	return strings.TrimRight(raw, "/"), nil
}
