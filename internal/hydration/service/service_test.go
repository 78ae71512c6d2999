package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
	apperrors "github.com/lk2023060901/agent-hydration/internal/pkg/errors"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/lk2023060901/agent-hydration/internal/pkg/response"
	"github.com/lk2023060901/agent-hydration/internal/pkg/sse"
	"github.com/lk2023060901/agent-hydration/internal/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend serves a fixed history and never has a live run.
type stubBackend struct {
	history []types.Checkpoint
}

func (b *stubBackend) FetchHistory(context.Context, string, int) ([]types.Checkpoint, error) {
	return b.history, nil
}

func (b *stubBackend) ListRuns(context.Context, string) ([]types.Run, error) {
	return nil, nil
}

func (b *stubBackend) GetState(context.Context, string) (*types.Checkpoint, error) {
	return &types.Checkpoint{}, nil
}

func (b *stubBackend) JoinStream(context.Context, string, string, []string) (<-chan types.StreamChunk, error) {
	return nil, errors.New("no live run")
}

func idleThread() []types.Checkpoint {
	return []types.Checkpoint{{
		Values: map[string]json.RawMessage{
			"messages": json.RawMessage(`[{"id":"1","type":"human","content":"hey"},{"id":"2","type":"ai","content":"hi"}]`),
		},
	}}
}

type fixture struct {
	router  *gin.Engine
	hub     *sse.Hub
	pool    *workerpool.Pool
	configs []biz.Config
}

func newFixture(t *testing.T, base biz.Config, history []types.Checkpoint) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{hub: sse.NewHub()}
	factory := func(cfg biz.Config) (biz.Backend, error) {
		f.configs = append(f.configs, cfg)
		return &stubBackend{history: history}, nil
	}
	pool, err := workerpool.New(workerpool.Config{Size: 4}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Release(time.Second) })
	f.pool = pool

	uc := biz.NewHydrationUseCase(base, factory, logger.NewNop())
	svc := NewHydrationService(uc, f.hub, pool, logger.NewNop(), 0)

	f.router = gin.New()
	svc.RegisterRoutes(f.router.Group("/api/v1"))
	return f
}

func (f *fixture) get(target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	f.router.ServeHTTP(w, req)
	return w
}

func readFrames(t *testing.T, body io.Reader) []sse.Frame {
	t.Helper()
	r := sse.NewReader(body)
	var frames []sse.Frame
	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, *frame)
	}
}

func TestConnect_SSE(t *testing.T) {
	f := newFixture(t, biz.Config{Endpoint: "http://graph"}, idleThread())

	w := f.get("/api/v1/threads/t1/connect?graph_id=agent&limit=50")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := readFrames(t, w.Body)
	require.Len(t, frames, 4)
	assert.Equal(t, "RUN_STARTED", frames[0].Event)
	assert.Equal(t, "MESSAGES_SNAPSHOT", frames[1].Event)
	assert.Equal(t, "STATE_SNAPSHOT", frames[2].Event)
	assert.Equal(t, "RUN_FINISHED", frames[3].Event)

	var snapshot struct {
		Type     string            `json:"type"`
		ThreadID string            `json:"threadId"`
		Messages []types.UIMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(frames[1].Data), &snapshot))
	assert.Equal(t, "MESSAGES_SNAPSHOT", snapshot.Type)
	assert.Equal(t, "t1", snapshot.ThreadID)
	require.Len(t, snapshot.Messages, 2)
	assert.Equal(t, types.RoleUser, snapshot.Messages[0].Role)

	require.Len(t, f.configs, 1)
	assert.Equal(t, "agent", f.configs[0].GraphID)
	assert.Equal(t, 50, f.configs[0].HistoryLimit)
	assert.Zero(t, f.hub.Total(), "stream unregistered after completion")
}

func TestConnect_EmptyThread(t *testing.T) {
	f := newFixture(t, biz.Config{Endpoint: "http://graph"}, nil)

	frames := readFrames(t, f.get("/api/v1/threads/t1/connect").Body)
	require.Len(t, frames, 3)
	assert.JSONEq(t, "[]", mustField(t, frames[1].Data, "messages"))
}

func mustField(t *testing.T, data, field string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(data), &m))
	return string(m[field])
}

func TestConnect_RejectedBeforeStreaming(t *testing.T) {
	tests := []struct {
		name       string
		base       biz.Config
		target     string
		wantStatus int
		wantCode   int
	}{
		{
			name:       "negative limit",
			base:       biz.Config{Endpoint: "http://graph"},
			target:     "/api/v1/threads/t1/connect?limit=-1",
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.ErrInvalidLimit,
		},
		{
			name:       "non-numeric limit",
			base:       biz.Config{Endpoint: "http://graph"},
			target:     "/api/v1/threads/t1/connect?limit=abc",
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.ErrInvalidLimit,
		},
		{
			name:       "input is not an object",
			base:       biz.Config{Endpoint: "http://graph"},
			target:     "/api/v1/threads/t1/connect?input=" + url.QueryEscape(`[1,2]`),
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.ErrInvalidInput,
		},
		{
			name:       "blank thread id",
			base:       biz.Config{Endpoint: "http://graph"},
			target:     "/api/v1/threads/%20/connect",
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.ErrThreadIDRequired,
		},
		{
			name:       "endpoint not configured",
			base:       biz.Config{},
			target:     "/api/v1/threads/t1/connect",
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   apperrors.ErrEndpointRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.base, nil)
			w := f.get(tt.target)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp response.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Empty(t, f.configs, "no backend built")
		})
	}
}

// occupy holds every worker until the returned func is called.
func (f *fixture) occupy(t *testing.T) func() {
	t.Helper()
	release := make(chan struct{})
	for i := 0; i < f.pool.Cap(); i++ {
		require.NoError(t, f.pool.Submit(func() { <-release }))
	}
	return func() { close(release) }
}

func TestConnect_PoolFull(t *testing.T) {
	f := newFixture(t, biz.Config{Endpoint: "http://graph"}, idleThread())
	release := f.occupy(t)
	defer release()

	for _, target := range []string{"/api/v1/threads/t1/connect", "/api/v1/threads/t1/connect/ws"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code, target)
		var resp response.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.ErrTooManyConnections, resp.Code)
	}
	assert.Empty(t, f.configs, "no backend is built for rejected connections")
}

func TestConnect_StateExtractorInput(t *testing.T) {
	base := biz.Config{
		Endpoint: "http://graph",
		StateExtractor: func(input map[string]any) map[string]any {
			return map[string]any{"draft": input["draft"]}
		},
	}
	f := newFixture(t, base, idleThread())

	w := f.get("/api/v1/threads/t1/connect?input=" + url.QueryEscape(`{"draft":"v2"}`))
	frames := readFrames(t, w.Body)
	require.Len(t, frames, 4)

	snapshot := mustField(t, frames[2].Data, "snapshot")
	assert.Contains(t, snapshot, `"draft":"v2"`)
}

func TestConnectWS(t *testing.T) {
	f := newFixture(t, biz.Config{Endpoint: "http://graph"}, idleThread())
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/threads/t1/connect/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var got []string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error %v", err)
			break
		}
		var event struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(msg, &event))
		got = append(got, event.Type)
	}

	assert.Equal(t, []string{"RUN_STARTED", "MESSAGES_SNAPSHOT", "STATE_SNAPSHOT", "RUN_FINISHED"}, got)
}

// deadlineConn is a websocket connection whose deadline cannot be set.
type deadlineConn struct {
	deadlineErr error
	writes      int
	controls    int
}

func (c *deadlineConn) SetWriteDeadline(time.Time) error { return c.deadlineErr }

func (c *deadlineConn) WriteJSON(interface{}) error {
	c.writes++
	return nil
}

func (c *deadlineConn) WriteControl(int, []byte, time.Time) error {
	c.controls++
	return nil
}

func TestWSSink_WriteDeadlineFailure(t *testing.T) {
	conn := &deadlineConn{deadlineErr: net.ErrClosed}
	sink := &WSSink{conn: conn, logger: logger.NewNop()}

	err := sink.Emit(context.Background(), types.NewRunStarted())
	require.Error(t, err)
	assert.ErrorIs(t, err, net.ErrClosed)
	assert.Equal(t, 0, conn.writes, "event not written without a deadline")

	conn.deadlineErr = nil
	require.NoError(t, sink.Emit(context.Background(), types.NewRunStarted()))
	assert.Equal(t, 1, conn.writes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Emit(ctx, types.NewRunFinished()), context.Canceled)
	assert.Equal(t, 1, conn.writes)

	sink.Complete()
	assert.Equal(t, 1, conn.controls)
}

func TestConnectWS_RequiresUpgrade(t *testing.T) {
	f := newFixture(t, biz.Config{Endpoint: "http://graph"}, nil)
	w := f.get("/api/v1/threads/t1/connect/ws")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.ErrStreamUnsupported, resp.Code)
}

func TestStats(t *testing.T) {
	f := newFixture(t, biz.Config{Endpoint: "http://graph"}, nil)
	f.hub.Register(&sse.Client{ID: "a", Resource: "t1"})
	f.hub.Register(&sse.Client{ID: "b", Resource: "t1"})
	f.hub.Register(&sse.Client{ID: "c", Resource: "t2"})

	w := f.get("/api/v1/hydration/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"code": 0,
		"data": {
			"total": 3,
			"capacity": 4,
			"threads": [{"resource":"t1","clients":2},{"resource":"t2","clients":1}]
		}
	}`, w.Body.String())
}

func TestJSONLinesSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLinesSink(&buf)

	require.NoError(t, sink.Emit(context.Background(), types.NewRunStarted()))
	require.NoError(t, sink.Emit(context.Background(), types.NewRunFinished()))
	sink.Complete()
	assert.NoError(t, sink.Err())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"RUN_STARTED"`)
	assert.Contains(t, lines[1], `"type":"RUN_FINISHED"`)

	sink.Fail(context.Canceled)
	assert.ErrorIs(t, sink.Err(), context.Canceled)
}
