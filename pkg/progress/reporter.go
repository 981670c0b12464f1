package progress

import (
	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
)

// Reporter emits events for one operation. It is returned by StartOperation
// and is the only mutation path besides the tracker's cancel. All methods are
// safe for concurrent use; terminal statuses are absorbing and any guarded
// call after them fails with OperationFinalized.
type Reporter struct {
	tracker *Tracker
	op      *operation
}

// OperationID returns the id of the tracked operation.
func (r *Reporter) OperationID() string {
	return r.op.id
}

// Progress emits a progress event. If the operation was not yet in_progress,
// the status transition is emitted first, atomically with the progress event.
// Percentages are clamped to [current, 100] so emitted values never decrease.
func (r *Reporter) Progress(pct float64, message string, details map[string]any) error {
	op := r.op
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.status.Terminal() || op.closed {
		return errdefs.OperationFinalized(op.id)
	}

	now := r.tracker.clock.Now()
	if op.status != StatusInProgress {
		st := r.tracker.newEvent(op.id, EventStatus, now)
		st.Status = &StatusPayload{Previous: op.status, Current: StatusInProgress, Message: message}
		r.tracker.emitLocked(op, st)
		op.status = StatusInProgress
	}

	if pct < op.progress {
		pct = op.progress
	}
	if pct > 100 {
		pct = 100
	}

	ev := r.tracker.newEvent(op.id, EventProgress, now)
	ev.Progress = &ProgressPayload{
		Status:     StatusInProgress,
		Percentage: pct,
		Message:    message,
		Details:    details,
	}
	r.tracker.emitLocked(op, ev)
	op.progress = pct
	return nil
}

// Log emits a log event. Permitted in any state, including terminal; it never
// touches status or progress.
func (r *Reporter) Log(level LogLevel, message, source string, details map[string]any) error {
	op := r.op
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.closed {
		return errdefs.OperationFinalized(op.id)
	}

	ev := r.tracker.newEvent(op.id, EventLog, r.tracker.clock.Now())
	ev.Log = &LogPayload{Level: level, Message: message, Source: source, Details: details}
	r.tracker.emitLocked(op, ev)
	return nil
}

// UpdateStatus transitions the operation to a new non-terminal status. The
// previous status on the emitted event is read from the record. Guard
// violations (terminal operation, unchanged status) fail with
// OperationFinalized. Terminal targets must go through Complete, Fail, or the
// tracker's cancel path so result and error invariants hold.
func (r *Reporter) UpdateStatus(status Status, message string, details map[string]any) error {
	op := r.op
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.status.Terminal() || op.closed || status == op.status {
		return errdefs.OperationFinalized(op.id)
	}
	if status.Terminal() {
		return errdefs.InvalidParameters("terminal status transitions require Complete, Fail, or cancel")
	}

	ev := r.tracker.newEvent(op.id, EventStatus, r.tracker.clock.Now())
	ev.Status = &StatusPayload{Previous: op.status, Current: status, Message: message, Details: details}
	r.tracker.emitLocked(op, ev)
	op.status = status
	return nil
}

// Complete finalizes the operation successfully: emits the terminal status
// transition followed by the completion event, sets progress to 100 and
// stores the result.
func (r *Reporter) Complete(result any, message string) error {
	op := r.op
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.status.Terminal() || op.closed {
		return errdefs.OperationFinalized(op.id)
	}

	now := r.tracker.clock.Now()
	prev := op.status

	st := r.tracker.newEvent(op.id, EventStatus, now)
	st.Status = &StatusPayload{Previous: prev, Current: StatusComplete, Message: message}
	r.tracker.emitLocked(op, st)

	done := r.tracker.newEvent(op.id, EventCompletion, now)
	done.Completion = &CompletionPayload{
		Result:         result,
		Message:        message,
		ElapsedSeconds: now.Sub(op.started).Seconds(),
	}
	r.tracker.emitLocked(op, done)

	op.status = StatusComplete
	op.progress = 100
	op.result = result
	op.errMsg = ""
	op.errCode = 0
	return nil
}

// Fail finalizes the operation with an error: emits the terminal status
// transition followed by the error event. The message must be non-empty and
// the code non-negative; empty or negative inputs are normalized.
func (r *Reporter) Fail(message string, code int, details map[string]any, recoverable bool) error {
	op := r.op
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.status.Terminal() || op.closed {
		return errdefs.OperationFinalized(op.id)
	}
	if message == "" {
		message = "operation failed"
	}
	if code <= 0 {
		code = 500
	}

	now := r.tracker.clock.Now()
	prev := op.status

	st := r.tracker.newEvent(op.id, EventStatus, now)
	st.Status = &StatusPayload{Previous: prev, Current: StatusFailed, Message: message}
	r.tracker.emitLocked(op, st)

	ev := r.tracker.newEvent(op.id, EventError, now)
	ev.Error = &ErrorPayload{Message: message, Code: code, Details: details, Recoverable: recoverable}
	r.tracker.emitLocked(op, ev)

	op.status = StatusFailed
	op.progress = 100
	op.errMsg = message
	op.errCode = code
	return nil
}
