package cache

import (
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
)

// timeBased stamps each entry with its insert time and checks the TTL lazily
// on get; there is no background sweeper. When an insert would exceed maxSize,
// the entry with the oldest insert time is evicted.
type timeBased struct {
	mu      sync.Mutex
	entries map[string]Entry
	maxSize int
	clock   clockwork.Clock
}

func newTimeBased(maxSize int, clock clockwork.Clock) *timeBased {
	return &timeBased{
		entries: make(map[string]Entry),
		maxSize: maxSize,
		clock:   clock,
	}
}

func (c *timeBased) get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	if e.expired(c.clock.Now()) {
		delete(c.entries, key)
		return Entry{}, false
	}
	return e, true
}

func (c *timeBased) set(key string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = e
}

// evictOldestLocked removes the entry with the oldest insert time. Caller
// holds c.mu.
func (c *timeBased) evictOldestLocked() {
	var oldestKey string
	var oldest Entry
	first := true
	for k, e := range c.entries {
		if first || e.InsertedAt.Before(oldest.InsertedAt) {
			oldestKey, oldest = k, e
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

func (c *timeBased) delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *timeBased) invalidateByPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *timeBased) clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

func (c *timeBased) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
