package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/progress"
)

// wsClientMessage is the message protocol a WebSocket client speaks:
// subscribe/unsubscribe to operation streams, catchup by last event ID, and
// ping.
type wsClientMessage struct {
	Action      string `json:"action"`
	OperationID string `json:"operation_id,omitempty"`
	LastEventID string `json:"last_event_id,omitempty"`
}

// wsEventMessage frames one tracker event on the socket.
type wsEventMessage struct {
	Type        string         `json:"type"`
	OperationID string         `json:"operation_id"`
	Event       progress.Event `json:"event"`
}

// wsManager multiplexes operation event streams over WebSocket connections.
// One connection may subscribe to any number of operations; each subscription
// runs its own forwarder goroutine off a tracker subscription.
type wsManager struct {
	tracker      *progress.Tracker
	writeTimeout time.Duration

	mu          sync.RWMutex
	connections map[string]*wsConnection
}

// wsConnection is one WebSocket client. subscriptions are mutated only from
// the connection's read loop; forwarder goroutines remove their own entry on
// stream close, so subsMu guards the map.
type wsConnection struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex // serializes socket writes across forwarders

	subsMu sync.Mutex
	subs   map[string]*progress.Subscription
}

func newWSManager(tracker *progress.Tracker, writeTimeout time.Duration) *wsManager {
	return &wsManager{
		tracker:      tracker,
		writeTimeout: writeTimeout,
		connections:  make(map[string]*wsConnection),
	}
}

// HandleConnection owns the lifecycle of one upgraded connection. Blocks
// until the socket closes.
func (m *wsManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &wsConnection{
		id:     uuid.NewString(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*progress.Subscription),
	}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.id,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg wsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", c.id, "error", err)
			continue
		}
		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of open WebSocket connections.
func (m *wsManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *wsManager) handleClientMessage(c *wsConnection, msg *wsClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.OperationID == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "operation_id is required for subscribe"})
			return
		}
		if err := m.subscribe(c, msg.OperationID, msg.LastEventID); err != nil {
			m.sendJSON(c, map[string]string{
				"type":         "subscription.error",
				"operation_id": msg.OperationID,
				"message":      err.Error(),
			})
			return
		}
		m.sendJSON(c, map[string]string{
			"type":         "subscription.confirmed",
			"operation_id": msg.OperationID,
		})

	case "unsubscribe":
		if msg.OperationID == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "operation_id is required for unsubscribe"})
			return
		}
		m.unsubscribe(c, msg.OperationID)

	case "catchup":
		if msg.OperationID == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "operation_id is required for catchup"})
			return
		}
		m.handleCatchup(c, msg.OperationID, msg.LastEventID)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// subscribe opens a tracker subscription for the operation and starts its
// forwarder. Resubscribing to the same operation replaces the old stream so
// the client can reset its replay position.
func (m *wsManager) subscribe(c *wsConnection, operationID, lastEventID string) error {
	sub, err := m.tracker.Subscribe(operationID, c.ctx, lastEventID)
	if err != nil {
		return err
	}

	c.subsMu.Lock()
	if old, exists := c.subs[operationID]; exists {
		old.Close()
	}
	c.subs[operationID] = sub
	c.subsMu.Unlock()

	go m.forward(c, operationID, sub)
	return nil
}

// forward relays one subscription's events onto the socket until the stream
// closes, then tells the client.
func (m *wsManager) forward(c *wsConnection, operationID string, sub *progress.Subscription) {
	for ev := range sub.Events() {
		m.sendJSON(c, wsEventMessage{Type: "event", OperationID: operationID, Event: ev})
	}

	c.subsMu.Lock()
	// Only drop the map entry if it is still ours; a resubscribe may have
	// replaced it already.
	if c.subs[operationID] == sub {
		delete(c.subs, operationID)
	}
	c.subsMu.Unlock()

	m.sendJSON(c, map[string]string{
		"type":         "stream.closed",
		"operation_id": operationID,
	})
}

func (m *wsManager) unsubscribe(c *wsConnection, operationID string) {
	c.subsMu.Lock()
	sub, exists := c.subs[operationID]
	delete(c.subs, operationID)
	c.subsMu.Unlock()
	if exists {
		sub.Close()
	}
}

// handleCatchup replays stored events after lastEventID without opening a
// live subscription. An empty lastEventID replays the whole retained history.
func (m *wsManager) handleCatchup(c *wsConnection, operationID, lastEventID string) {
	events, err := m.tracker.GetEvents(operationID)
	if err != nil {
		m.sendJSON(c, map[string]string{
			"type":         "error",
			"operation_id": operationID,
			"message":      err.Error(),
		})
		return
	}

	start := 0
	if lastEventID != "" {
		for i, ev := range events {
			if ev.ID == lastEventID {
				start = i + 1
				break
			}
		}
	}
	for _, ev := range events[start:] {
		m.sendJSON(c, wsEventMessage{Type: "catchup", OperationID: operationID, Event: ev})
	}
	m.sendJSON(c, map[string]string{
		"type":         "catchup.complete",
		"operation_id": operationID,
	})
}

func (m *wsManager) register(c *wsConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.id] = c
}

func (m *wsManager) unregister(c *wsConnection) {
	c.subsMu.Lock()
	for id, sub := range c.subs {
		sub.Close()
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	m.mu.Lock()
	delete(m.connections, c.id)
	m.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

// sendJSON marshals and sends a message with the write timeout.
func (m *wsManager) sendJSON(c *wsConnection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message", "connection_id", c.id, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Warn("Failed to send WebSocket message", "connection_id", c.id, "error", err)
	}
}
