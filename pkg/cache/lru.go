package cache

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// lruCache tracks recency on both get and set via hashicorp's fixed-capacity
// LRU. TTLs are still honored on get: an expired entry is removed and
// reported as a miss even if it is the most recently used.
type lruCache struct {
	inner *lru.Cache[string, Entry]
	clock clockwork.Clock
}

func newLRU(maxSize int, clock clockwork.Clock) (*lruCache, error) {
	inner, err := lru.New[string, Entry](maxSize)
	if err != nil {
		return nil, err
	}
	return &lruCache{inner: inner, clock: clock}, nil
}

func (c *lruCache) get(key string) (Entry, bool) {
	e, ok := c.inner.Get(key)
	if !ok {
		return Entry{}, false
	}
	if e.expired(c.clock.Now()) {
		c.inner.Remove(key)
		return Entry{}, false
	}
	return e, true
}

func (c *lruCache) set(key string, e Entry) {
	c.inner.Add(key, e)
}

func (c *lruCache) delete(key string) {
	c.inner.Remove(key)
}

func (c *lruCache) invalidateByPrefix(prefix string) int {
	n := 0
	for _, k := range c.inner.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.inner.Remove(k)
			n++
		}
	}
	return n
}

func (c *lruCache) clear() {
	c.inner.Purge()
}

func (c *lruCache) size() int {
	return c.inner.Len()
}
