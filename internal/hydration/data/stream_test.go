package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan types.StreamChunk) []types.StreamChunk {
	t.Helper()
	var chunks []types.StreamChunk
	timeout := time.After(2 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestClient_JoinStream(t *testing.T) {
	fake, srv := newFakeGraphServer(t)
	fake.frames = []string{
		": keep-alive\n\n",
		sseFrame("metadata", map[string]string{"run_id": "r1"}),
		sseFrame("events", map[string]any{
			"event":  "on_chat_model_stream",
			"run_id": "m1",
			"data":   map[string]any{"chunk": map[string]any{"content": "he"}},
		}),
		sseFrame("values", map[string]any{"count": 2}),
	}

	c := newTestClient(t, srv.URL)
	ch, err := c.JoinStream(context.Background(), "t1", "r1", []string{"events", "values"})
	require.NoError(t, err)

	chunks := drain(t, ch)
	require.Len(t, chunks, 3)
	assert.Equal(t, types.StreamMetadata, chunks[0].Event)
	assert.JSONEq(t, `{"run_id":"r1"}`, string(chunks[0].Data))
	assert.Equal(t, types.StreamEvents, chunks[1].Event)
	assert.Equal(t, types.StreamValues, chunks[2].Event)
	for _, chunk := range chunks {
		assert.NoError(t, chunk.Err)
	}

	req, _ := fake.lastRequest()
	assert.Equal(t, "/threads/t1/runs/r1/stream", req.URL.Path)
	assert.Equal(t, []string{"events", "values"}, req.URL.Query()["stream_mode"])
	assert.Equal(t, "text/event-stream", req.Header.Get("Accept"))
	assert.Equal(t, "secret", req.Header.Get("x-api-key"))
}

func TestClient_JoinStreamStatusError(t *testing.T) {
	fake, srv := newFakeGraphServer(t)
	fake.status["stream"] = http.StatusNotFound

	_, err := newTestClient(t, srv.URL).JoinStream(context.Background(), "t1", "gone", nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, biz.ErrNoActiveRun)

	fake.status["stream"] = http.StatusBadGateway
	_, err = newTestClient(t, srv.URL).JoinStream(context.Background(), "t1", "r1", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, biz.ErrNoActiveRun)
}

func TestClient_JoinStreamCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := newTestClient(t, srv.URL).JoinStream(ctx, "t1", "r1", nil)
	require.NoError(t, err)

	cancel()
	chunks := drain(t, ch)
	assert.Empty(t, chunks, "cancellation is not surfaced as an error chunk")
}

func TestClient_JoinStreamBrokenTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(sseFrame("values", map[string]int{"n": 1})))
		w.(http.Flusher).Flush()

		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	t.Cleanup(srv.Close)

	ch, err := newTestClient(t, srv.URL).JoinStream(context.Background(), "t1", "r1", nil)
	require.NoError(t, err)

	chunks := drain(t, ch)
	require.NotEmpty(t, chunks)
	assert.Equal(t, types.StreamValues, chunks[0].Event)
	last := chunks[len(chunks)-1]
	assert.Error(t, last.Err)
}
