package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/lk2023060901/agent-hydration/internal/pkg/redis"
	"go.uber.org/zap"
)

const historyKeyPrefix = "hydration:history:"

// KV 历史缓存使用的键值存储, *redis.Client 满足该接口
type KV interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

var _ KV = (*redis.Client)(nil)

// CachedBackend 为空闲线程缓存检查点历史, 其余操作直接透传
type CachedBackend struct {
	biz.Backend
	kv       KV
	ttl      time.Duration
	endpoint string
	logger   *logger.Logger
}

// NewCachedBackend 包装 backend; 缓存失败只记录告警并回退到 backend
func NewCachedBackend(backend biz.Backend, kv KV, ttl time.Duration, endpoint string, log *logger.Logger) *CachedBackend {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedBackend{
		Backend:  backend,
		kv:       kv,
		ttl:      ttl,
		endpoint: strings.TrimRight(endpoint, "/"),
		logger:   log.Named("history_cache"),
	}
}

// historyEntry 缓存的历史及写入时线程最新 run 的标记
type historyEntry struct {
	Runs        string          `json:"runs"`
	Checkpoints json.RawMessage `json:"checkpoints"`
}

// FetchHistory 先查缓存, 未命中时请求后端并缓存空闲线程的结果
//
// 命中时通过 ListRuns 确认线程仍然空闲且没有新 run, 否则绕过缓存。
func (b *CachedBackend) FetchHistory(ctx context.Context, threadID string, limit int) ([]types.Checkpoint, error) {
	key := b.key(threadID, limit)

	var runs []types.Run
	runsFetched := false

	cached, err := b.kv.GetBytes(ctx, key)
	switch {
	case err == nil:
		var entry historyEntry
		var raw []json.RawMessage
		if err := json.Unmarshal(cached, &entry); err != nil || json.Unmarshal(entry.Checkpoints, &raw) != nil {
			b.logger.Warn("history cache entry corrupted", zap.String("key", key))
			break
		}
		runs, err = b.Backend.ListRuns(ctx, threadID)
		if err != nil {
			b.logger.Warn("history cache validation failed", zap.String("thread_id", threadID), zap.Error(err))
			break
		}
		runsFetched = true
		if hasActiveRun(runs) || runMarker(runs) != entry.Runs {
			b.logger.Debug("history cache stale", zap.String("thread_id", threadID))
			break
		}
		b.logger.Debug("history cache hit", zap.String("thread_id", threadID))
		return decodeCheckpoints(raw, func(string, error) {}), nil
	case !redis.IsNil(err):
		b.logger.Warn("history cache read failed", zap.String("key", key), zap.Error(err))
	}

	checkpoints, err := b.Backend.FetchHistory(ctx, threadID, limit)
	if err != nil {
		return nil, err
	}

	// 运行中的线程不缓存
	if len(checkpoints) == 0 || checkpoints[0].Pending() {
		return checkpoints, nil
	}
	if !runsFetched {
		if runs, err = b.Backend.ListRuns(ctx, threadID); err != nil {
			b.logger.Warn("history cache skipped", zap.String("thread_id", threadID), zap.Error(err))
			return checkpoints, nil
		}
	}
	if hasActiveRun(runs) {
		return checkpoints, nil
	}

	encoded, err := json.Marshal(checkpoints)
	if err == nil {
		encoded, err = json.Marshal(historyEntry{Runs: runMarker(runs), Checkpoints: encoded})
	}
	if err != nil {
		b.logger.Warn("history cache encode failed", zap.String("key", key), zap.Error(err))
		return checkpoints, nil
	}
	if err := b.kv.SetBytes(ctx, key, encoded, b.ttl); err != nil {
		b.logger.Warn("history cache write failed", zap.String("key", key), zap.Error(err))
	}
	return checkpoints, nil
}

func hasActiveRun(runs []types.Run) bool {
	for i := range runs {
		if runs[i].Active() {
			return true
		}
	}
	return false
}

// runMarker 标识线程最新的 run, 新 run 出现或状态变化时标记随之改变
func runMarker(runs []types.Run) string {
	if len(runs) == 0 {
		return ""
	}
	latest := runs[0]
	for _, run := range runs[1:] {
		if run.CreatedAt.After(latest.CreatedAt) {
			latest = run
		}
	}
	return fmt.Sprintf("%d|%s|%s", len(runs), latest.RunID, latest.Status)
}

func (b *CachedBackend) key(threadID string, limit int) string {
	return fmt.Sprintf("%s%s|%s|%d", historyKeyPrefix, b.endpoint, threadID, limit)
}

// NewBackendFactory 返回每个连接构建新后端客户端的工厂
//
// kv 为 nil 或 ttl <= 0 时不启用缓存。
func NewBackendFactory(log *logger.Logger, kv KV, ttl time.Duration) biz.BackendFactory {
	return func(cfg biz.Config) (biz.Backend, error) {
		client, err := NewClient(cfg, log)
		if err != nil {
			return nil, err
		}
		if kv == nil || ttl <= 0 {
			return client, nil
		}
		return NewCachedBackend(client, kv, ttl, cfg.Endpoint, log), nil
	}
}
