package data

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHydration_BusyThreadOverHTTP(t *testing.T) {
	fake, srv := newFakeGraphServer(t)
	fake.history = `[
		{"values":{"messages":[
			{"id":"1","type":"human","content":"hey"},
			{"id":"2","type":"ai","content":"hi"}
		]},"next":["agent"]},
		{"values":{"messages":[{"id":"1","type":"human","content":"hey"}]},"next":[]}
	]`
	fake.runs = `[
		{"run_id":"r-old","status":"success","created_at":"2026-10-18T11:00:00Z"},
		{"run_id":"r-active","status":"running","created_at":"2026-10-18T11:59:00Z"}
	]`
	fake.frames = []string{
		sseFrame("metadata", map[string]string{"run_id": "r-active"}),
		sseFrame("events", map[string]any{
			"event":  "on_chat_model_stream",
			"run_id": "m3",
			"data":   map[string]any{"chunk": map[string]any{"content": "he"}},
		}),
		sseFrame("events", map[string]any{"event": "on_chat_model_end", "run_id": "m3"}),
		sseFrame("values", map[string]int{"count": 2}),
	}

	uc := biz.NewHydrationUseCase(
		biz.Config{Endpoint: srv.URL, APIKey: "secret"},
		NewBackendFactory(logger.NewNop(), nil, 0),
		logger.NewNop(),
		biz.WithClock(func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }),
	)

	sink := biz.NewCollectSink()
	require.NoError(t, uc.Connect(context.Background(), &biz.ConnectRequest{ThreadID: "t1"}, sink))

	assert.True(t, sink.Completed())
	assert.Equal(t, []types.EventType{
		types.EventRunStarted,
		types.EventMessagesSnapshot,
		types.EventStateSnapshot,
		types.EventTextMessageStart,
		types.EventTextMessageContent,
		types.EventCustom,
		types.EventTextMessageEnd,
		types.EventCustom,
		types.EventStateSnapshot,
		types.EventRunFinished,
	}, sink.Types())

	events := sink.Events()
	snapshot := events[1].(*types.MessagesSnapshot)
	require.Len(t, snapshot.Messages, 2)
	assert.Equal(t, "hey", snapshot.Messages[0].Content)
	assert.Equal(t, types.RoleAssistant, snapshot.Messages[1].Role)

	for _, event := range events {
		raw, err := json.Marshal(event)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"runId":"r-active"`)
		assert.Contains(t, string(raw), `"threadId":"t1"`)
	}
}

func TestHydration_UnreachableBackend(t *testing.T) {
	uc := biz.NewHydrationUseCase(
		biz.Config{Endpoint: "http://127.0.0.1:1"},
		NewBackendFactory(logger.NewNop(), nil, 0),
		logger.NewNop(),
	)

	sink := biz.NewCollectSink()
	require.NoError(t, uc.Connect(context.Background(), &biz.ConnectRequest{ThreadID: "t1"}, sink))

	assert.True(t, sink.Completed())
	assert.Equal(t, []types.EventType{
		types.EventRunStarted,
		types.EventMessagesSnapshot,
		types.EventRunFinished,
	}, sink.Types())
}
