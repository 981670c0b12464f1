package progress

import "sync"

// eventRing is one operation's bounded circular event buffer plus an
// id → position index for after-id lookup. Positions are absolute insert
// counters; slot = position % capacity.
type eventRing struct {
	mu      sync.RWMutex
	entries []Event
	index   map[string]uint64
	next    uint64 // absolute position of the next insert
	count   int    // live entries, <= capacity
}

func newEventRing(capacity int) *eventRing {
	return &eventRing{
		entries: make([]Event, capacity),
		index:   make(map[string]uint64, capacity),
	}
}

func (r *eventRing) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.next % uint64(len(r.entries))
	if r.count == len(r.entries) {
		// Overflow: overwrite oldest and purge its index entry.
		delete(r.index, r.entries[slot].ID)
	} else {
		r.count++
	}
	r.entries[slot] = ev
	r.index[ev.ID] = r.next
	r.next++
}

// after returns buffered events strictly after lastEventID in insertion
// order. An empty or unknown id returns everything buffered: the client has
// lost synchronization and a full replay is the safe default.
func (r *eventRing) after(lastEventID string) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	oldest := r.next - uint64(r.count)
	from := oldest
	if lastEventID != "" {
		if pos, ok := r.index[lastEventID]; ok {
			from = pos + 1
		}
	}
	if from >= r.next {
		return nil
	}

	out := make([]Event, 0, r.next-from)
	for pos := from; pos < r.next; pos++ {
		out = append(out, r.entries[pos%uint64(len(r.entries))])
	}
	return out
}

func (r *eventRing) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// RingStore holds the per-operation rings. The store lock guards only the
// map; each ring serializes its own reads and writes.
type RingStore struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*eventRing
}

// NewRingStore creates a store whose rings hold capacity events each.
func NewRingStore(capacity int) *RingStore {
	if capacity < 1 {
		capacity = 1
	}
	return &RingStore{
		capacity: capacity,
		rings:    make(map[string]*eventRing),
	}
}

// Add inserts an event into its operation's ring, creating the ring on first
// use. Overflow overwrites the oldest entry without blocking.
func (s *RingStore) Add(ev Event) {
	s.mu.Lock()
	ring, ok := s.rings[ev.OperationID]
	if !ok {
		ring = newEventRing(s.capacity)
		s.rings[ev.OperationID] = ring
	}
	s.mu.Unlock()

	ring.add(ev)
}

// After returns the operation's buffered events strictly after lastEventID.
// Unknown operations and unknown ids degrade to a full (possibly empty) replay.
func (s *RingStore) After(operationID, lastEventID string) []Event {
	s.mu.RLock()
	ring, ok := s.rings[operationID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return ring.after(lastEventID)
}

// CleanupOperation drops the operation's ring entirely.
func (s *RingStore) CleanupOperation(operationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, operationID)
}
