// Package progress implements the long-running operation engine: operation
// lifecycle tracking, event fan-out to subscribers, reconnection replay from
// a bounded per-operation ring, subscriber-driven cancellation, and
// per-subscription heartbeats.
package progress

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is an operation lifecycle state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusInProgress   Status = "in_progress"
	StatusPaused       Status = "paused"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Terminal reports whether the status is absorbing: once reached, no further
// reporter transitions are accepted.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// EventKind discriminates event payloads.
type EventKind string

const (
	EventStatus     EventKind = "status"
	EventProgress   EventKind = "progress"
	EventLog        EventKind = "log"
	EventHeartbeat  EventKind = "heartbeat"
	EventCompletion EventKind = "completion"
	EventError      EventKind = "error"
)

var validKinds = map[EventKind]bool{
	EventStatus:     true,
	EventProgress:   true,
	EventLog:        true,
	EventHeartbeat:  true,
	EventCompletion: true,
	EventError:      true,
}

// LogLevel classifies log events.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// StatusPayload describes a status transition.
type StatusPayload struct {
	Previous Status         `json:"previous"` // empty on the initial event
	Current  Status         `json:"current"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// ProgressPayload carries a progress update.
type ProgressPayload struct {
	Status     Status         `json:"status"` // always in_progress
	Percentage float64        `json:"percentage"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// LogPayload carries a handler log line routed to subscribers.
type LogPayload struct {
	Level   LogLevel       `json:"level"`
	Message string         `json:"message"`
	Source  string         `json:"source"` // emitting component, e.g. "deploy"
	Details map[string]any `json:"details,omitempty"`
}

// HeartbeatPayload keeps streams alive; never stored in ring or history.
type HeartbeatPayload struct {
	Sequence uint64 `json:"sequence"`
}

// CompletionPayload carries the final result of a successful operation.
type CompletionPayload struct {
	Result         any     `json:"result,omitempty"`
	Message        string  `json:"message,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// ErrorPayload carries a failure. Recoverable is advisory for clients;
// a failed operation is terminal regardless.
type ErrorPayload struct {
	Message     string         `json:"message"`
	Code        int            `json:"code"`
	Details     map[string]any `json:"details,omitempty"`
	Recoverable bool           `json:"recoverable"`
}

// Event is the variant record fanned out to subscribers. Exactly one payload
// pointer is set, matching Kind.
type Event struct {
	ID          string    `json:"id"`
	OperationID string    `json:"operation_id"`
	Kind        EventKind `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`

	Status     *StatusPayload     `json:"status,omitempty"`
	Progress   *ProgressPayload   `json:"progress,omitempty"`
	Log        *LogPayload        `json:"log,omitempty"`
	Heartbeat  *HeartbeatPayload  `json:"heartbeat,omitempty"`
	Completion *CompletionPayload `json:"completion,omitempty"`
	Error      *ErrorPayload      `json:"error,omitempty"`
}

// FormatEventID builds the wire event ID
// "{operationID}:{kind}:{timestampNanos}:{sequence}". The (timestampNanos,
// sequence) pair totally orders events of one operation.
func FormatEventID(operationID string, kind EventKind, ts time.Time, seq uint64) string {
	return fmt.Sprintf("%s:%s:%d:%d", operationID, kind, ts.UnixNano(), seq)
}

// ParseEventID splits an event ID back into its components. Operation IDs may
// themselves contain colons, so parsing anchors on the last three separators.
func ParseEventID(id string) (operationID string, kind EventKind, ts time.Time, seq uint64, err error) {
	rest, seqStr, ok := cutLast(id)
	if !ok {
		return "", "", time.Time{}, 0, fmt.Errorf("malformed event id %q", id)
	}
	rest, nanosStr, ok := cutLast(rest)
	if !ok {
		return "", "", time.Time{}, 0, fmt.Errorf("malformed event id %q", id)
	}
	opID, kindStr, ok := cutLast(rest)
	if !ok || opID == "" {
		return "", "", time.Time{}, 0, fmt.Errorf("malformed event id %q", id)
	}

	seq, err = strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return "", "", time.Time{}, 0, fmt.Errorf("malformed event id %q: bad sequence: %w", id, err)
	}
	nanos, err := strconv.ParseInt(nanosStr, 10, 64)
	if err != nil {
		return "", "", time.Time{}, 0, fmt.Errorf("malformed event id %q: bad timestamp: %w", id, err)
	}
	k := EventKind(kindStr)
	if !validKinds[k] {
		return "", "", time.Time{}, 0, fmt.Errorf("malformed event id %q: unknown kind %q", id, kindStr)
	}
	return opID, k, time.Unix(0, nanos), seq, nil
}

// cutLast splits s at its last colon.
func cutLast(s string) (before, after string, found bool) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}
