package redis

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// GetBytes 读取键值, Key 不存在时返回 ErrNil
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, error) {
	if c.rdb == nil {
		return nil, ErrNotInitialized
	}
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil && !IsNil(err) {
		c.logger.Error("redis get failed", zap.String("key", key), zap.Error(err))
	}
	return val, err
}

// SetBytes 写入键值, ttl <= 0 表示不过期
func (c *Client) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.rdb == nil {
		return ErrNotInitialized
	}
	if ttl < 0 {
		ttl = 0
	}
	err := c.rdb.Set(ctx, key, value, ttl).Err()
	if err != nil {
		c.logger.Error("redis set failed", zap.String("key", key), zap.Int("size", len(value)), zap.Error(err))
	}
	return err
}
