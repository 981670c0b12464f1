package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// opScope is one operation's cancellation scope and subscriber bookkeeping.
type opScope struct {
	ctx         context.Context
	cancel      context.CancelFunc
	subscribers int
	drainTimer  clockwork.Timer // armed while subscribers == 0 and not cancelled
	cancelled   bool
}

// CancellationManager owns per-operation cancellation scopes and
// reference-counts subscribers. When the last subscriber disconnects, a
// one-shot drain timer is armed; if no subscriber returns before it fires,
// the operation is cancelled. Momentary reconnects disarm the timer.
type CancellationManager struct {
	mu      sync.Mutex
	ops     map[string]*opScope
	timeout time.Duration
	clock   clockwork.Clock

	// onDrain, when set, receives the operation ID after a drain timer fires
	// and the zero-subscriber re-check passes. It runs outside the manager
	// lock so it may call back into Cancel. Nil means cancel directly.
	onDrain func(operationID string)
}

// NewCancellationManager creates a manager with the given drain timeout.
func NewCancellationManager(timeout time.Duration, clock clockwork.Clock, onDrain func(string)) *CancellationManager {
	return &CancellationManager{
		ops:     make(map[string]*opScope),
		timeout: timeout,
		clock:   clock,
		onDrain: onDrain,
	}
}

// Register creates the operation's cancellation scope and returns its
// context. Registering an id twice returns the existing scope.
func (m *CancellationManager) Register(operationID string) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sc, ok := m.ops[operationID]; ok {
		slog.Warn("Operation already registered with cancellation manager",
			"operation_id", operationID)
		return sc.ctx
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.ops[operationID] = &opScope{ctx: ctx, cancel: cancel}
	return ctx
}

// Context returns the operation's cancellation context, or nil if unknown.
func (m *CancellationManager) Context(operationID string) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc, ok := m.ops[operationID]
	if !ok {
		return nil
	}
	return sc.ctx
}

// ClientConnected increments the subscriber count and disarms any pending
// drain timer. Unknown operations log a warning and are otherwise ignored.
func (m *CancellationManager) ClientConnected(operationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc, ok := m.ops[operationID]
	if !ok {
		slog.Warn("Client connected for unknown operation", "operation_id", operationID)
		return
	}
	sc.subscribers++
	if sc.drainTimer != nil {
		sc.drainTimer.Stop()
		sc.drainTimer = nil
	}
}

// ClientDisconnected decrements the subscriber count. When it reaches zero
// and the operation is not cancelled, the drain timer is armed.
func (m *CancellationManager) ClientDisconnected(operationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc, ok := m.ops[operationID]
	if !ok {
		slog.Warn("Client disconnected for unknown operation", "operation_id", operationID)
		return
	}
	if sc.subscribers > 0 {
		sc.subscribers--
	}
	if sc.subscribers == 0 && !sc.cancelled && sc.drainTimer == nil {
		sc.drainTimer = m.clock.AfterFunc(m.timeout, func() {
			m.drainFired(operationID)
		})
	}
}

// drainFired re-checks the zero-subscriber condition at fire time and, if it
// still holds, triggers cancellation.
func (m *CancellationManager) drainFired(operationID string) {
	m.mu.Lock()
	sc, ok := m.ops[operationID]
	if !ok || sc.cancelled || sc.subscribers > 0 {
		m.mu.Unlock()
		return
	}
	sc.drainTimer = nil
	cb := m.onDrain
	m.mu.Unlock()

	slog.Info("All subscribers gone past disconnect timeout, cancelling operation",
		"operation_id", operationID, "timeout", m.timeout)
	if cb != nil {
		cb(operationID)
		return
	}
	m.Cancel(operationID)
}

// Cancel cancels the operation's scope immediately regardless of subscriber
// count. Idempotent; reports whether this call performed the cancellation.
func (m *CancellationManager) Cancel(operationID string) bool {
	cancel, ok := m.markCancelled(operationID)
	if !ok {
		return false
	}
	cancel()
	return true
}

// markCancelled claims the cancellation: it flips the cancelled flag and
// disarms the drain timer, but leaves firing the context to the caller. This
// lets the tracker emit the terminal events before subscriptions observe the
// scope closing. Returns false when the operation is unknown or already
// cancelled.
func (m *CancellationManager) markCancelled(operationID string) (context.CancelFunc, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc, ok := m.ops[operationID]
	if !ok {
		slog.Warn("Cancel requested for unknown operation", "operation_id", operationID)
		return nil, false
	}
	if sc.cancelled {
		return nil, false
	}
	sc.cancelled = true
	if sc.drainTimer != nil {
		sc.drainTimer.Stop()
		sc.drainTimer = nil
	}
	return sc.cancel, true
}

// SubscriberCount returns the current subscriber count, or 0 if unknown.
func (m *CancellationManager) SubscriberCount(operationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc, ok := m.ops[operationID]
	if !ok {
		return 0
	}
	return sc.subscribers
}

// Cleanup cancels (if needed) and removes the operation's bookkeeping.
func (m *CancellationManager) Cleanup(operationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc, ok := m.ops[operationID]
	if !ok {
		return
	}
	if sc.drainTimer != nil {
		sc.drainTimer.Stop()
	}
	if !sc.cancelled {
		sc.cancelled = true
		sc.cancel()
	}
	delete(m.ops, operationID)
}

// Shutdown cancels every scope and clears all state.
func (m *CancellationManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sc := range m.ops {
		if sc.drainTimer != nil {
			sc.drainTimer.Stop()
		}
		if !sc.cancelled {
			sc.cancelled = true
			sc.cancel()
		}
		delete(m.ops, id)
	}
}
