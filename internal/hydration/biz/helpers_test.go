package biz

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/stretchr/testify/require"
)

func setupTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{
		Level:  "debug",
		Format: "json",
		Output: "console",
	})
	require.NoError(t, err)
	return log
}

// checkpoint builds a checkpoint whose values.messages holds msgs.
func checkpoint(t *testing.T, next []string, msgs ...map[string]any) types.Checkpoint {
	t.Helper()
	raw, err := json.Marshal(msgs)
	require.NoError(t, err)
	return types.Checkpoint{
		Values: map[string]json.RawMessage{"messages": raw},
		Next:   next,
	}
}

func msg(id, typ, content string) map[string]any {
	return map[string]any{"id": id, "type": typ, "content": content}
}

func ids(messages []types.UIMessage) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

// fakeBackend is an in-memory Backend.
type fakeBackend struct {
	mu sync.Mutex

	history    []types.Checkpoint
	historyErr error
	runs       []types.Run
	runsErr    error
	state      *types.Checkpoint
	stateErr   error

	// streams is consumed one entry per JoinStream call.
	streams [][]types.StreamChunk
	joinErr error

	historyLimit int
	joins        int
	panicOn      string
}

func (f *fakeBackend) FetchHistory(_ context.Context, _ string, limit int) ([]types.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "history" {
		panic("boom")
	}
	f.historyLimit = limit
	return f.history, f.historyErr
}

func (f *fakeBackend) ListRuns(context.Context, string) ([]types.Run, error) {
	return f.runs, f.runsErr
}

func (f *fakeBackend) GetState(context.Context, string) (*types.Checkpoint, error) {
	return f.state, f.stateErr
}

func (f *fakeBackend) JoinStream(ctx context.Context, _, _ string, _ []string) (<-chan types.StreamChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	if len(f.streams) == 0 {
		return nil, errors.New("no stream scripted")
	}
	chunks := f.streams[0]
	f.streams = f.streams[1:]

	ch := make(chan types.StreamChunk)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (f *fakeBackend) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joins
}

// failingSink rejects every event after the first n.
type failingSink struct {
	*CollectSink
	n int
}

func (s *failingSink) Emit(ctx context.Context, e types.Event) error {
	if len(s.CollectSink.Events()) >= s.n {
		return errors.New("consumer gone")
	}
	return s.CollectSink.Emit(ctx, e)
}

func fixedClock() time.Time {
	return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
}

func eventChunk(t *testing.T, payload map[string]any) types.StreamChunk {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return types.StreamChunk{Event: types.StreamEvents, Data: raw}
}

func rawChunk(category, data string) types.StreamChunk {
	return types.StreamChunk{Event: category, Data: json.RawMessage(data)}
}
