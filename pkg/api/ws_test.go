package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/progress"
)

// wsMessage is the loose shape of any server message in the WS protocol.
type wsMessage struct {
	Type        string          `json:"type"`
	OperationID string          `json:"operation_id"`
	Message     string          `json:"message"`
	Event       *progress.Event `json:"event"`
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/mcp/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg wsMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func sendWS(t *testing.T, conn *websocket.Conn, msg wsClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// collectWS reads messages until pred returns true, failing on timeout.
func collectWS(t *testing.T, conn *websocket.Conn, pred func(wsMessage) bool) []wsMessage {
	t.Helper()
	var msgs []wsMessage
	for i := 0; i < 50; i++ {
		msg := readWS(t, conn)
		msgs = append(msgs, msg)
		if pred(msg) {
			return msgs
		}
	}
	t.Fatal("predicate never satisfied")
	return nil
}

func TestWSSubscribeAndStream(t *testing.T) {
	s, tracker := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	reporter, _, err := tracker.StartOperation("op-ws")
	require.NoError(t, err)
	require.NoError(t, reporter.Progress(30, "working", nil))

	conn := dialWS(t, ts)
	hello := readWS(t, conn)
	assert.Equal(t, "connection.established", hello.Type)

	sendWS(t, conn, wsClientMessage{Action: "subscribe", OperationID: "op-ws"})

	// Confirmation and replayed events may interleave; collect until both
	// have arrived.
	var confirmed, replayed bool
	collectWS(t, conn, func(m wsMessage) bool {
		if m.Type == "subscription.confirmed" && m.OperationID == "op-ws" {
			confirmed = true
		}
		if m.Type == "event" && m.Event != nil && m.Event.Kind == progress.EventProgress {
			replayed = true
		}
		return confirmed && replayed
	})

	// Live event after subscription.
	require.NoError(t, reporter.Complete("done", "all good"))
	collectWS(t, conn, func(m wsMessage) bool {
		return m.Type == "event" && m.Event != nil && m.Event.Kind == progress.EventCompletion
	})
}

func TestWSSubscribeUnknownOperation(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts)
	readWS(t, conn) // connection.established

	sendWS(t, conn, wsClientMessage{Action: "subscribe", OperationID: "missing"})
	msg := readWS(t, conn)
	assert.Equal(t, "subscription.error", msg.Type)
	assert.Equal(t, "missing", msg.OperationID)
}

func TestWSPing(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts)
	readWS(t, conn)

	sendWS(t, conn, wsClientMessage{Action: "ping"})
	msg := readWS(t, conn)
	assert.Equal(t, "pong", msg.Type)
}

func TestWSCatchup(t *testing.T) {
	s, tracker := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	reporter, _, err := tracker.StartOperation("op-catchup")
	require.NoError(t, err)
	require.NoError(t, reporter.Progress(10, "one", nil))
	require.NoError(t, reporter.Progress(20, "two", nil))

	events, err := tracker.GetEvents("op-catchup")
	require.NoError(t, err)
	var resumeFrom string
	for _, ev := range events {
		if ev.Kind == progress.EventProgress && ev.Progress.Percentage == 10 {
			resumeFrom = ev.ID
		}
	}
	require.NotEmpty(t, resumeFrom)

	conn := dialWS(t, ts)
	readWS(t, conn)

	sendWS(t, conn, wsClientMessage{Action: "catchup", OperationID: "op-catchup", LastEventID: resumeFrom})

	first := readWS(t, conn)
	require.Equal(t, "catchup", first.Type)
	require.NotNil(t, first.Event)
	assert.Equal(t, 20.0, first.Event.Progress.Percentage)

	done := readWS(t, conn)
	assert.Equal(t, "catchup.complete", done.Type)
}

func TestWSUnsubscribeClosesStream(t *testing.T) {
	s, tracker := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	_, _, err := tracker.StartOperation("op-unsub")
	require.NoError(t, err)

	conn := dialWS(t, ts)
	readWS(t, conn)

	sendWS(t, conn, wsClientMessage{Action: "subscribe", OperationID: "op-unsub"})
	collectWS(t, conn, func(m wsMessage) bool { return m.Type == "subscription.confirmed" })

	require.Eventually(t, func() bool {
		return tracker.SubscriberCount("op-unsub") == 1
	}, 2*time.Second, 5*time.Millisecond)

	sendWS(t, conn, wsClientMessage{Action: "unsubscribe", OperationID: "op-unsub"})
	collectWS(t, conn, func(m wsMessage) bool { return m.Type == "stream.closed" })

	require.Eventually(t, func() bool {
		return tracker.SubscriberCount("op-unsub") == 0
	}, 2*time.Second, 5*time.Millisecond)
}
