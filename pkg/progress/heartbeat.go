package progress

import "log/slog"

// heartbeatTarget is one registered subscription's delivery buffer.
type heartbeatTarget struct {
	operationID string
	in          chan<- Event
}

func (t *Tracker) registerHeartbeat(subscriptionID, operationID string, in chan<- Event) {
	t.hbMu.Lock()
	defer t.hbMu.Unlock()
	t.hbTargets[subscriptionID] = heartbeatTarget{operationID: operationID, in: in}
}

func (t *Tracker) unregisterHeartbeat(subscriptionID string) {
	t.hbMu.Lock()
	defer t.hbMu.Unlock()
	delete(t.hbTargets, subscriptionID)
}

// runHeartbeats periodically offers a heartbeat event to every registered
// subscription. Heartbeats are per-subscription: they bypass the ring and the
// operation history, existing only to keep streams alive and let clients
// detect dead connections.
func (t *Tracker) runHeartbeats() {
	ticker := t.clock.NewTicker(t.hbInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.hbStop:
			return
		case <-ticker.Chan():
			t.emitHeartbeats()
		}
	}
}

func (t *Tracker) emitHeartbeats() {
	t.hbMu.Lock()
	targets := make(map[string]heartbeatTarget, len(t.hbTargets))
	for id, tgt := range t.hbTargets {
		targets[id] = tgt
	}
	t.hbMu.Unlock()

	now := t.clock.Now()
	for subID, tgt := range targets {
		seq := t.hbSeq.Add(1)
		ev := Event{
			ID:          FormatEventID(tgt.operationID, EventHeartbeat, now, seq),
			OperationID: tgt.operationID,
			Kind:        EventHeartbeat,
			Timestamp:   now,
			Heartbeat:   &HeartbeatPayload{Sequence: seq},
		}
		select {
		case tgt.in <- ev:
		default:
			slog.Warn("Heartbeat dropped, subscription buffer full",
				"operation_id", tgt.operationID, "subscription_id", subID)
		}
	}
}
