package biz

import (
	"context"

	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
)

// Backend is the execution backend as seen by one connection.
type Backend interface {
	// FetchHistory returns up to limit checkpoints of a thread, newest first.
	FetchHistory(ctx context.Context, threadID string, limit int) ([]types.Checkpoint, error)
	// ListRuns returns the runs of a thread, newest first.
	ListRuns(ctx context.Context, threadID string) ([]types.Run, error)
	// GetState returns the current checkpoint of a thread.
	GetState(ctx context.Context, threadID string) (*types.Checkpoint, error)
	// JoinStream joins the live stream of a run. The channel is closed when
	// the stream ends; a transport failure arrives as a final chunk with Err set.
	JoinStream(ctx context.Context, threadID, runID string, modes []string) (<-chan types.StreamChunk, error)
}

// BackendFactory builds a fresh backend for one connection.
type BackendFactory func(cfg Config) (Backend, error)
