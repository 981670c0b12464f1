package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/progress"
)

type sseFrame struct {
	id    string
	event string
	data  string
}

// readFrame reads one SSE frame, blocking until the blank separator line.
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

func startSSE(t *testing.T, ts *httptest.Server, path string, header map[string]string) *bufio.Reader {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func TestSSEStreamReplayAndLive(t *testing.T) {
	s, tracker := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	reporter, _, err := tracker.StartOperation("op-sse")
	require.NoError(t, err)
	require.NoError(t, reporter.Progress(25, "halfway there", nil))

	reader := startSSE(t, ts, "/mcp/events/op-sse", nil)

	// Replay: initial status, in_progress transition, progress.
	first := readFrame(t, reader)
	assert.Equal(t, "status", first.event)
	assert.Contains(t, first.id, "op-sse:status:")

	second := readFrame(t, reader)
	assert.Equal(t, "status", second.event)

	third := readFrame(t, reader)
	assert.Equal(t, "progress", third.event)
	var ev progress.Event
	require.NoError(t, json.Unmarshal([]byte(third.data), &ev))
	require.NotNil(t, ev.Progress)
	assert.Equal(t, 25.0, ev.Progress.Percentage)

	// Live: completion arrives after the subscription attached.
	require.NoError(t, reporter.Complete(map[string]any{"ok": true}, "done"))
	status := readFrame(t, reader)
	assert.Equal(t, "status", status.event)
	completion := readFrame(t, reader)
	assert.Equal(t, "completion", completion.event)
}

func TestSSELastEventIDReplay(t *testing.T) {
	s, tracker := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	reporter, _, err := tracker.StartOperation("op-replay")
	require.NoError(t, err)
	require.NoError(t, reporter.Progress(10, "step one", nil))
	require.NoError(t, reporter.Progress(20, "step two", nil))

	events, err := tracker.GetEvents("op-replay")
	require.NoError(t, err)
	// Resume after the first progress event; only the second should replay.
	var resumeFrom string
	for _, ev := range events {
		if ev.Kind == progress.EventProgress && ev.Progress.Percentage == 10 {
			resumeFrom = ev.ID
		}
	}
	require.NotEmpty(t, resumeFrom)

	reader := startSSE(t, ts, "/mcp/events/op-replay", map[string]string{"Last-Event-ID": resumeFrom})
	frame := readFrame(t, reader)
	assert.Equal(t, "progress", frame.event)

	var ev progress.Event
	require.NoError(t, json.Unmarshal([]byte(frame.data), &ev))
	assert.Equal(t, 20.0, ev.Progress.Percentage)
}

func TestSSEProgressTokenFraming(t *testing.T) {
	s, tracker := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	reporter, _, err := tracker.StartOperation("op-token")
	require.NoError(t, err)
	require.NoError(t, reporter.Progress(40, "deploying", nil))

	reader := startSSE(t, ts, "/mcp/events/op-token?progressToken=op-token", nil)

	readFrame(t, reader) // status initializing
	readFrame(t, reader) // status in_progress
	frame := readFrame(t, reader)
	require.Equal(t, "progress", frame.event)

	var notification mcp.Request
	require.NoError(t, json.Unmarshal([]byte(frame.data), &notification))
	assert.Equal(t, mcp.MethodProgress, notification.Method)

	var params mcp.ProgressParams
	require.NoError(t, json.Unmarshal(notification.Params, &params))
	assert.Equal(t, "op-token", params.ProgressToken)
	assert.Equal(t, 40.0, params.Progress)
	assert.Equal(t, "deploying", params.Message)
}

func TestSSEUnknownOperation(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL + "/mcp/events/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSSESubscriberCountDecrementsOnDisconnect(t *testing.T) {
	s, tracker := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	_, _, err := tracker.StartOperation("op-count")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/mcp/events/op-count", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tracker.SubscriberCount("op-count") == 1
	}, 2*time.Second, 5*time.Millisecond)

	resp.Body.Close()
	require.Eventually(t, func() bool {
		return tracker.SubscriberCount("op-count") == 0
	}, 2*time.Second, 5*time.Millisecond)
}
