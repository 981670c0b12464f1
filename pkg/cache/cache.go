// Package cache implements the shared resource cache: a Store facade with
// per-resource-type TTL overrides and cache-header rendering over pluggable
// eviction strategies (time-based or LRU).
package cache

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Strategy names accepted by Config.Strategy.
const (
	StrategyTimeBased = "time-based"
	StrategyLRU       = "lru"
)

// Entry is one cached value with its metadata. Entries are immutable after
// insert; Set replaces the whole entry.
type Entry struct {
	Value        any
	ResourceType string
	InsertedAt   time.Time
	TTL          time.Duration
}

// expired reports whether the entry is past its TTL at now. A zero TTL means
// the entry is always expired.
func (e Entry) expired(now time.Time) bool {
	return now.Sub(e.InsertedAt) >= e.TTL
}

// Age returns the whole seconds elapsed since insertion.
func (e Entry) Age(now time.Time) int {
	return int(now.Sub(e.InsertedAt) / time.Second)
}

// Policy is a resource's cache-control policy. TTL zero means "resolve from
// the per-type override or the store default" at insert time.
type Policy struct {
	Enabled        bool
	TTL            time.Duration
	Private        bool
	MustRevalidate bool
	Immutable      bool
}

// ControlHeader renders the Cache-Control value for the policy with the
// resolved TTL.
func ControlHeader(ttl time.Duration, p Policy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "max-age=%d", int(ttl/time.Second))
	if p.Private {
		b.WriteString(", private")
	}
	if p.MustRevalidate {
		b.WriteString(", must-revalidate")
	}
	if p.Immutable {
		b.WriteString(", immutable")
	}
	return b.String()
}

// strategy is the interface both eviction strategies implement. Expiry is
// checked inside get so callers never observe stale entries.
type strategy interface {
	get(key string) (Entry, bool)
	set(key string, e Entry)
	delete(key string)
	invalidateByPrefix(prefix string) int
	clear()
	size() int
}

// Config configures a Store.
type Config struct {
	Enabled    bool
	Strategy   string // StrategyTimeBased or StrategyLRU
	MaxSize    int
	DefaultTTL time.Duration
	Clock      clockwork.Clock // nil means real clock
}

// Store is the process-wide resource cache. Keys are request fingerprints
// (see Fingerprint); values carry the resource type used for per-type TTL
// resolution and prefix invalidation.
type Store struct {
	enabled    bool
	strat      strategy
	defaultTTL time.Duration
	clock      clockwork.Clock

	ttlMu    sync.RWMutex
	typeTTLs map[string]time.Duration
}

// NewStore builds a store for the configured strategy. Unknown strategy names
// are an error so misconfiguration fails at boot, not at first use.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxSize < 1 {
		cfg.MaxSize = 1
	}

	var strat strategy
	var err error
	switch cfg.Strategy {
	case StrategyTimeBased, "":
		strat = newTimeBased(cfg.MaxSize, cfg.Clock)
	case StrategyLRU:
		strat, err = newLRU(cfg.MaxSize, cfg.Clock)
		if err != nil {
			return nil, fmt.Errorf("create lru cache: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown cache strategy %q", cfg.Strategy)
	}

	return &Store{
		enabled:    cfg.Enabled,
		strat:      strat,
		defaultTTL: cfg.DefaultTTL,
		clock:      cfg.Clock,
		typeTTLs:   make(map[string]time.Duration),
	}, nil
}

// Enabled reports whether caching is on. When off, Get always misses and Set
// is a no-op, so resource reads skip header emission entirely.
func (s *Store) Enabled() bool {
	return s.enabled
}

// ResourceTTL resolves the TTL for a resource type: explicit override first,
// store default otherwise.
func (s *Store) ResourceTTL(resourceType string) time.Duration {
	s.ttlMu.RLock()
	defer s.ttlMu.RUnlock()
	if ttl, ok := s.typeTTLs[resourceType]; ok {
		return ttl
	}
	return s.defaultTTL
}

// SetResourceTTL installs a per-type TTL override.
func (s *Store) SetResourceTTL(resourceType string, ttl time.Duration) {
	s.ttlMu.Lock()
	s.typeTTLs[resourceType] = ttl
	s.ttlMu.Unlock()
}

// Get returns the cached entry for the key, if present and unexpired.
func (s *Store) Get(key string) (Entry, bool) {
	if !s.enabled {
		return Entry{}, false
	}
	return s.strat.get(key)
}

// Set inserts a value for the key. The entry TTL is resolved at insert time:
// policy TTL when set, otherwise the per-type override or the store default.
func (s *Store) Set(key string, value any, resourceType string, p Policy) {
	if !s.enabled || !p.Enabled {
		return
	}
	ttl := p.TTL
	if ttl == 0 {
		ttl = s.ResourceTTL(resourceType)
	}
	s.strat.set(key, Entry{
		Value:        value,
		ResourceType: resourceType,
		InsertedAt:   s.clock.Now(),
		TTL:          ttl,
	})
}

// ResolveTTL returns the TTL the store would stamp on an insert under the
// given policy, for header rendering on cache misses.
func (s *Store) ResolveTTL(resourceType string, p Policy) time.Duration {
	if p.TTL != 0 {
		return p.TTL
	}
	return s.ResourceTTL(resourceType)
}

// Delete removes a single key.
func (s *Store) Delete(key string) {
	s.strat.delete(key)
}

// InvalidateByPrefix removes every entry whose key starts with prefix and
// returns the number removed. Mutating tools call this with a resource-type
// prefix (e.g. "Machine:") after changing upstream state.
func (s *Store) InvalidateByPrefix(prefix string) int {
	n := s.strat.invalidateByPrefix(prefix)
	if n > 0 {
		slog.Debug("Cache entries invalidated", "prefix", prefix, "count", n)
	}
	return n
}

// InvalidateType removes every entry tagged with the resource type.
func (s *Store) InvalidateType(resourceType string) int {
	return s.InvalidateByPrefix(resourceType + ":")
}

// Clear drops all entries.
func (s *Store) Clear() {
	s.strat.clear()
}

// Size returns the live entry count.
func (s *Store) Size() int {
	return s.strat.size()
}

// Now exposes the store clock so callers compute ages consistently with
// insertion timestamps.
func (s *Store) Now() time.Time {
	return s.clock.Now()
}
