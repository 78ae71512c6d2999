package data

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/stretchr/testify/require"
)

// fakeGraphServer mimics the thread endpoints of the execution backend.
type fakeGraphServer struct {
	t *testing.T

	mu       sync.Mutex
	history  string
	runs     string
	state    string
	frames   []string
	status   map[string]int
	requests []*http.Request
	bodies   []string
}

func newFakeGraphServer(t *testing.T) (*fakeGraphServer, *httptest.Server) {
	f := &fakeGraphServer{
		t:       t,
		history: "[]",
		runs:    "[]",
		state:   "{}",
		status:  map[string]int{},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGraphServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()

	op := routeOf(r)
	if code, ok := f.status[op]; ok {
		http.Error(w, `{"detail":"`+op+` failed"}`, code)
		return
	}

	switch op {
	case "history":
		fmt.Fprint(w, f.history)
	case "runs":
		fmt.Fprint(w, f.runs)
	case "state":
		fmt.Fprint(w, f.state)
	case "stream":
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range f.frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	default:
		http.NotFound(w, r)
	}
}

func routeOf(r *http.Request) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 3 && r.Method == http.MethodPost && parts[2] == "history":
		return "history"
	case len(parts) == 3 && r.Method == http.MethodGet && parts[2] == "runs":
		return "runs"
	case len(parts) == 3 && r.Method == http.MethodGet && parts[2] == "state":
		return "state"
	case len(parts) == 5 && r.Method == http.MethodGet && parts[4] == "stream":
		return "stream"
	}
	return ""
}

func (f *fakeGraphServer) lastRequest() (*http.Request, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(f.t, f.requests)
	n := len(f.requests) - 1
	return f.requests[n], f.bodies[n]
}

func (f *fakeGraphServer) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeGraphServer) routeCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if routeOf(r) == op {
			n++
		}
	}
	return n
}

func sseFrame(event string, data any) string {
	raw, _ := json.Marshal(data)
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, raw)
}

func newTestClient(t *testing.T, endpoint string, mutate ...func(*biz.Config)) *Client {
	cfg := biz.Config{Endpoint: endpoint, APIKey: "secret", Debug: true}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg, logger.NewNop())
	require.NoError(t, err)
	return c
}
