package progress

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
)

// Operation is a read-only snapshot of one tracked operation.
type Operation struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Progress  float64   `json:"progress"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Result    any       `json:"result,omitempty"`     // set only when complete
	Error     string    `json:"error,omitempty"`      // set only when failed
	ErrorCode int       `json:"error_code,omitempty"` // set only when failed
	Events    []Event   `json:"events,omitempty"`     // full history, heartbeats excluded
}

// operation is the mutable record behind a snapshot. All field mutation and
// event emission happen under mu, which totally orders the operation's events.
type operation struct {
	mu       sync.Mutex
	id       string
	status   Status
	progress float64
	started  time.Time
	updated  time.Time
	result   any
	errMsg   string
	errCode  int
	events   []Event

	closed bool // cleaned up; no further emission

	subsMu sync.RWMutex
	subs   map[string]*subscriber

	scope context.Context // operation cancellation scope
}

// subscriber is the dispatcher-facing side of a subscription.
type subscriber struct {
	id string
	in chan Event
}

func (o *operation) addSubscriber(s *subscriber) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	o.subs[s.id] = s
}

func (o *operation) removeSubscriber(id string) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	delete(o.subs, id)
}

// Subscription is a live event stream for one operation. Events arrive in
// emission order, modulo drops when the consumer falls behind; a dropped
// window can be recovered by reconnecting with the last processed event ID.
type Subscription struct {
	ID          string
	OperationID string

	events <-chan Event
	cancel context.CancelFunc
}

// Events returns the delivery channel. It is closed when the caller scope or
// the operation scope fires, or when Close is called.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
}

// Options configures a Tracker. Zero values take defaults.
type Options struct {
	// BufferSize sizes the per-operation ring, the fan-out channel, and
	// subscription delivery channels. Default 100.
	BufferSize int
	// HeartbeatInterval is the per-subscription heartbeat period. Default 30s.
	HeartbeatInterval time.Duration
	// DisconnectTimeout is the drain-cancel grace period. Default 30s.
	DisconnectTimeout time.Duration
	// Clock drives heartbeats and the drain timer. Default real clock.
	Clock clockwork.Clock
}

// Tracker is the operation state machine and event bus. It owns the ring
// store, the cancellation manager, and the heartbeat emitter.
type Tracker struct {
	mu       sync.RWMutex
	ops      map[string]*operation
	shutdown bool

	ring    *RingStore
	cancels *CancellationManager
	clock   clockwork.Clock

	bufferSize int
	seq        atomic.Uint64 // event sequence for ring-inserted events

	hbInterval time.Duration
	hbSeq      atomic.Uint64
	hbMu       sync.Mutex
	hbTargets  map[string]heartbeatTarget
	hbStop     chan struct{}
	hbOnce     sync.Once
}

// NewTracker creates a tracker and starts its heartbeat loop.
func NewTracker(opts Options) *Tracker {
	if opts.BufferSize < 1 {
		opts.BufferSize = 100
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.DisconnectTimeout <= 0 {
		opts.DisconnectTimeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	t := &Tracker{
		ops:        make(map[string]*operation),
		ring:       NewRingStore(opts.BufferSize),
		clock:      opts.Clock,
		bufferSize: opts.BufferSize,
		hbInterval: opts.HeartbeatInterval,
		hbTargets:  make(map[string]heartbeatTarget),
		hbStop:     make(chan struct{}),
	}
	// Drain-timer fires route through the tracker so the terminal status and
	// error events are emitted alongside the scope cancellation.
	t.cancels = NewCancellationManager(opts.DisconnectTimeout, opts.Clock, func(id string) {
		if err := t.CancelOperation(id); err != nil {
			slog.Warn("Drain cancel failed", "operation_id", id, "error", err)
		}
	})
	go t.runHeartbeats()
	return t
}

// StartOperation registers a new operation and returns its reporter and
// cancellation scope. Fails with OperationExists on id collision.
func (t *Tracker) StartOperation(id string) (*Reporter, context.Context, error) {
	t.mu.Lock()
	if t.shutdown {
		t.mu.Unlock()
		return nil, nil, errdefs.New(errdefs.KindInternalError, "tracker is shut down")
	}
	if _, exists := t.ops[id]; exists {
		t.mu.Unlock()
		return nil, nil, errdefs.OperationExists(id)
	}

	now := t.clock.Now()
	op := &operation{
		id:      id,
		status:  StatusInitializing,
		started: now,
		updated: now,
		subs:    make(map[string]*subscriber),
	}
	op.scope = t.cancels.Register(id)
	t.ops[id] = op
	t.mu.Unlock()

	op.mu.Lock()
	ev := t.newEvent(id, EventStatus, now)
	ev.Status = &StatusPayload{Previous: "", Current: StatusInitializing, Message: "operation started"}
	t.emitLocked(op, ev)
	op.mu.Unlock()

	slog.Info("Operation started", "operation_id", id)
	return &Reporter{tracker: t, op: op}, op.scope, nil
}

// GetOperation returns a copied snapshot of the operation.
func (t *Tracker) GetOperation(id string) (Operation, error) {
	t.mu.RLock()
	op, ok := t.ops[id]
	t.mu.RUnlock()
	if !ok {
		return Operation{}, errdefs.NotFound("operation %q not found", id)
	}

	op.mu.Lock()
	defer op.mu.Unlock()
	return Operation{
		ID:        op.id,
		Status:    op.status,
		Progress:  op.progress,
		StartedAt: op.started,
		UpdatedAt: op.updated,
		Result:    op.result,
		Error:     op.errMsg,
		ErrorCode: op.errCode,
		Events:    append([]Event(nil), op.events...),
	}, nil
}

// GetEvents returns a copy of the operation's full event history. The history
// is append-only and unbounded, unlike the replay ring.
func (t *Tracker) GetEvents(id string) ([]Event, error) {
	t.mu.RLock()
	op, ok := t.ops[id]
	t.mu.RUnlock()
	if !ok {
		return nil, errdefs.NotFound("operation %q not found", id)
	}

	op.mu.Lock()
	defer op.mu.Unlock()
	return append([]Event(nil), op.events...), nil
}

// Subscribe opens an event stream for the operation. The stream closes when
// callerCtx or the operation scope fires. When lastEventID is non-empty,
// buffered events after it are delivered before any live event; an unknown id
// triggers a full ring replay.
func (t *Tracker) Subscribe(id string, callerCtx context.Context, lastEventID string) (*Subscription, error) {
	t.mu.RLock()
	op, ok := t.ops[id]
	shutdown := t.shutdown
	t.mu.RUnlock()
	if !ok {
		return nil, errdefs.NotFound("operation %q not found", id)
	}
	if shutdown {
		return nil, errdefs.New(errdefs.KindInternalError, "tracker is shut down")
	}

	sub := &subscriber{
		id: uuid.New().String(),
		in: make(chan Event, t.bufferSize),
	}

	// Snapshot and register under the operation lock. Emission holds the same
	// lock, so no event can slip between the ring snapshot and the subscriber
	// registration: the replay and the live stream meet without gap or
	// duplicate.
	op.mu.Lock()
	replay := t.ring.After(id, lastEventID)
	op.addSubscriber(sub)
	op.mu.Unlock()

	merged, cancel := context.WithCancel(callerCtx)
	stop := context.AfterFunc(op.scope, cancel)

	// The delivery channel is sized so the replay enqueues without blocking;
	// live events buffered during replay drain afterwards, preserving
	// replay-before-live order.
	out := make(chan Event, t.bufferSize+len(replay))

	t.cancels.ClientConnected(id)
	t.registerHeartbeat(sub.id, id, sub.in)

	go func() {
		defer func() {
			stop()
			cancel()
			t.unregisterHeartbeat(sub.id)
			op.removeSubscriber(sub.id)
			t.cancels.ClientDisconnected(id)
			close(out)
		}()

		forward := func(ev Event) {
			select {
			case out <- ev:
			default:
				slog.Warn("Subscription channel full, dropping event",
					"operation_id", id, "subscription_id", sub.id, "kind", ev.Kind)
			}
		}

		for _, ev := range replay {
			out <- ev
		}
		for {
			select {
			case ev := <-sub.in:
				forward(ev)
			case <-merged.Done():
				// Flush events already buffered so terminal status and error
				// events emitted just before the scope fired still arrive.
				for {
					select {
					case ev := <-sub.in:
						forward(ev)
					default:
						return
					}
				}
			}
		}
	}()

	slog.Debug("Subscription opened",
		"operation_id", id, "subscription_id", sub.id, "replayed", len(replay))
	return &Subscription{
		ID:          sub.id,
		OperationID: id,
		events:      out,
		cancel:      cancel,
	}, nil
}

// CancelOperation cancels the operation's scope and, when the operation is
// not already terminal, emits the terminal status and error events. The
// events are emitted before the scope fires so attached subscribers receive
// them ahead of their stream closing. Idempotent: repeated calls cancel once
// and emit once.
func (t *Tracker) CancelOperation(id string) error {
	t.mu.RLock()
	op, ok := t.ops[id]
	t.mu.RUnlock()
	if !ok {
		return errdefs.NotFound("operation %q not found", id)
	}

	fire, performed := t.cancels.markCancelled(id)
	if !performed {
		return nil
	}
	defer fire()

	op.mu.Lock()
	defer op.mu.Unlock()
	if op.status.Terminal() {
		return nil
	}
	now := t.clock.Now()
	prev := op.status

	st := t.newEvent(id, EventStatus, now)
	st.Status = &StatusPayload{Previous: prev, Current: StatusCancelled, Message: "operation cancelled"}
	t.emitLocked(op, st)

	cancelErr := errdefs.Cancelled("operation cancelled")
	er := t.newEvent(id, EventError, now)
	er.Error = &ErrorPayload{
		Message:     cancelErr.Message,
		Code:        errdefs.NumericCode(cancelErr),
		Recoverable: false,
	}
	t.emitLocked(op, er)

	op.status = StatusCancelled
	op.progress = 100
	slog.Info("Operation cancelled", "operation_id", id, "previous_status", prev)
	return nil
}

// CleanupOperation stops further emission, cancels the scope, and drops all
// bookkeeping for the operation, including its replay ring.
func (t *Tracker) CleanupOperation(id string) error {
	t.mu.Lock()
	op, ok := t.ops[id]
	if ok {
		delete(t.ops, id)
	}
	t.mu.Unlock()
	if !ok {
		return errdefs.NotFound("operation %q not found", id)
	}

	op.mu.Lock()
	op.closed = true
	op.mu.Unlock()

	t.ring.CleanupOperation(id)
	t.cancels.Cleanup(id)
	slog.Info("Operation cleaned up", "operation_id", id)
	return nil
}

// Shutdown cancels all operations, stops further emission, and stops the
// heartbeat loop. New operations and subscriptions are refused afterwards.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	t.shutdown = true
	ops := make([]*operation, 0, len(t.ops))
	for _, op := range t.ops {
		ops = append(ops, op)
	}
	t.mu.Unlock()

	t.hbOnce.Do(func() { close(t.hbStop) })
	t.cancels.Shutdown()

	for _, op := range ops {
		op.mu.Lock()
		op.closed = true
		op.mu.Unlock()
	}
	slog.Info("Progress tracker shut down", "operations", len(ops))
}

// SubscriberCount reports the live subscriber count for an operation.
func (t *Tracker) SubscriberCount(id string) int {
	return t.cancels.SubscriberCount(id)
}

// newEvent allocates an event shell with a unique, parseable ID.
func (t *Tracker) newEvent(operationID string, kind EventKind, ts time.Time) Event {
	seq := t.seq.Add(1)
	return Event{
		ID:          FormatEventID(operationID, kind, ts, seq),
		OperationID: operationID,
		Kind:        kind,
		Timestamp:   ts,
	}
}

// emitLocked appends the event to the history, inserts it into the ring, and
// offers it to every live subscriber without blocking. A subscriber whose
// buffer is full misses the event; reconnecting with the last processed event
// ID recovers the gap from the ring. Caller holds op.mu.
func (t *Tracker) emitLocked(op *operation, ev Event) {
	if op.closed {
		slog.Warn("Event emitted after cleanup, dropping",
			"operation_id", op.id, "kind", ev.Kind)
		return
	}
	op.events = append(op.events, ev)
	op.updated = ev.Timestamp
	t.ring.Add(ev)

	op.subsMu.RLock()
	subs := make([]*subscriber, 0, len(op.subs))
	for _, s := range op.subs {
		subs = append(subs, s)
	}
	op.subsMu.RUnlock()

	for _, s := range subs {
		select {
		case s.in <- ev:
		default:
			slog.Warn("Subscriber buffer full, dropping event",
				"operation_id", op.id, "subscription_id", s.id, "kind", ev.Kind)
		}
	}
}
