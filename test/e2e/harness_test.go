// Package e2e exercises the assembled server end to end: a scripted mock
// upstream, the real cache, tracker, registries, and HTTP shell, all in
// process.
package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/api"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/cache"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/maas"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/progress"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/resources"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/tools"
)

// mockMAAS is a scripted upstream. Deploy polls walk deployStatuses in order,
// sticking at the last entry; GET endpoints serve canned payloads and count
// invocations.
type mockMAAS struct {
	mu             sync.Mutex
	deployStatuses []string
	pollIndex      int

	listMachinesCalls int
	listTagsCalls     int
	deployCalls       int
}

func (m *mockMAAS) handler() http.Handler {
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		switch {
		case r.URL.Path == "/machines/" && r.Method == http.MethodGet:
			m.listMachinesCalls++
			writeJSON(w, []maas.Machine{{SystemID: "m1", Hostname: "node-1"}})

		case r.URL.Path == "/tags/" && r.Method == http.MethodGet:
			m.listTagsCalls++
			writeJSON(w, []maas.Tag{{Name: "gpu"}})

		case r.URL.Path == "/machines/m1/" && r.Method == http.MethodPost:
			m.deployCalls++
			writeJSON(w, maas.Machine{SystemID: "m1", StatusName: "Deploying"})

		case r.URL.Path == "/machines/m1/" && r.Method == http.MethodGet:
			status := "Deploying"
			if len(m.deployStatuses) > 0 {
				idx := m.pollIndex
				if idx >= len(m.deployStatuses) {
					idx = len(m.deployStatuses) - 1
				}
				status = m.deployStatuses[idx]
				m.pollIndex++
			}
			writeJSON(w, maas.Machine{SystemID: "m1", Hostname: "node-1", StatusName: status})

		default:
			writeJSON(w, map[string]any{})
		}
	})
}

func (m *mockMAAS) counts() (listMachines, listTags, deploys int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listMachinesCalls, m.listTagsCalls, m.deployCalls
}

// harnessOptions tune the assembled stack per scenario.
type harnessOptions struct {
	cacheStrategy     string
	cacheMaxSize      int
	cacheClock        clockwork.Clock // fake clock makes Age deterministic
	disconnectTimeout time.Duration
	deployStatuses    []string
}

type harness struct {
	upstream *mockMAAS
	tracker  *progress.Tracker
	store    *cache.Store
	server   *httptest.Server
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	if opts.cacheStrategy == "" {
		opts.cacheStrategy = cache.StrategyTimeBased
	}
	if opts.cacheMaxSize == 0 {
		opts.cacheMaxSize = 100
	}
	if opts.disconnectTimeout == 0 {
		opts.disconnectTimeout = time.Hour
	}

	upstream := &mockMAAS{deployStatuses: opts.deployStatuses}
	upstreamServer := httptest.NewServer(upstream.handler())
	t.Cleanup(upstreamServer.Close)

	client, err := maas.NewClient(upstreamServer.URL, "consumer:token:secret", 5*time.Second)
	require.NoError(t, err)

	store, err := cache.NewStore(cache.Config{
		Enabled:    true,
		Strategy:   opts.cacheStrategy,
		MaxSize:    opts.cacheMaxSize,
		DefaultTTL: 300 * time.Second,
		Clock:      opts.cacheClock,
	})
	require.NoError(t, err)

	tracker := progress.NewTracker(progress.Options{
		BufferSize:        100,
		HeartbeatInterval: time.Hour,
		DisconnectTimeout: opts.disconnectTimeout,
	})
	t.Cleanup(tracker.Shutdown)

	toolRegistry := mcp.NewToolRegistry()
	require.NoError(t, tools.RegisterAll(toolRegistry, tools.Deps{
		Client:       client,
		Tracker:      tracker,
		Cache:        store,
		PollInterval: 5 * time.Millisecond,
		MaxPolls:     2000,
	}))

	resourceRegistry := mcp.NewResourceRegistry(store)
	require.NoError(t, resources.RegisterAll(resourceRegistry, client))

	dispatcher := mcp.NewDispatcher(toolRegistry, resourceRegistry, "maas-mcp-server", "e2e")
	server := httptest.NewServer(api.NewServer(api.Config{
		Addr:       ":0",
		Dispatcher: dispatcher,
		Tracker:    tracker,
	}).Handler())
	t.Cleanup(server.Close)

	return &harness{
		upstream: upstream,
		tracker:  tracker,
		store:    store,
		server:   server,
	}
}

// rpc posts one JSON-RPC request and returns the decoded response plus the
// HTTP response headers.
func (h *harness) rpc(t *testing.T, id any, method string, params any) (*mcp.Response, http.Header) {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := h.server.Client().Post(h.server.URL+"/mcp", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out mcp.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return &out, resp.Header
}

// toolCall invokes tools/call and decodes the result envelope.
func (h *harness) toolCall(t *testing.T, name string, args map[string]any) *mcp.ToolResult {
	t.Helper()
	resp, _ := h.rpc(t, 1, "tools/call", map[string]any{"name": name, "arguments": args})
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result mcp.ToolResult
	require.NoError(t, json.Unmarshal(raw, &result))
	return &result
}

// tryToolCall is the goroutine-safe variant of toolCall: it returns errors
// instead of failing the test, so in-flight long-running calls can be awaited
// from a channel.
func (h *harness) tryToolCall(name string, args map[string]any) (*mcp.ToolResult, error) {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	if err != nil {
		return nil, err
	}
	resp, err := h.server.Client().Post(h.server.URL+"/mcp", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out mcp.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(out.Result)
	if err != nil {
		return nil, err
	}
	var result mcp.ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type sseFrame struct {
	id    string
	event string
	data  string
}

// openSSE attaches to an operation's event stream and returns a frame reader
// plus a closer that simulates the client dropping the connection.
func (h *harness) openSSE(t *testing.T, operationID, lastEventID string) (*bufio.Reader, func()) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/mcp/events/"+operationID, nil)
	require.NoError(t, err)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	closed := false
	closer := func() {
		if !closed {
			closed = true
			resp.Body.Close()
		}
	}
	t.Cleanup(closer)
	return bufio.NewReader(resp.Body), closer
}

// readFrame blocks until one complete SSE frame has been read.
func readFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	var f sseFrame
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return f
		case strings.HasPrefix(line, "id: "):
			f.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			f.data = strings.TrimPrefix(line, "data: ")
		}
	}
}
