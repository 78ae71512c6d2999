package redis

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNil Key 不存在
	ErrNil = redis.Nil
	// ErrNotInitialized 客户端未连接
	ErrNotInitialized = errors.New("redis: client not initialized")
)

// IsNil 判断是否是 Key 不存在
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
