package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/reqflow/clock"
)

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock sets the clock used for expiry.
func WithClock(c clock.Clock) MemoryOption {
	return func(m *MemoryCache) { m.clock = clock.OrReal(c) }
}

// WithSweepInterval sets how often Lookup and Store sweep expired entries.
// Zero disables opportunistic sweeping.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *MemoryCache) { m.sweepEvery = d }
}

// MemoryCache is an in-memory cache implementation.
type MemoryCache struct {
	clock      clock.Clock
	sweepEvery time.Duration

	mu        sync.RWMutex
	entries   map[Key]Entry
	lastSweep time.Time
	hits      int64
	misses    int64
}

// NewMemoryCache creates an in-memory cache. By default it sweeps at most
// once a minute.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	m := &MemoryCache{
		clock:      clock.Real(),
		sweepEvery: time.Minute,
		entries:    make(map[Key]Entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastSweep = m.clock.Now()
	return m
}

// Lookup returns the live entry for key. Expired entries are removed lazily.
func (m *MemoryCache) Lookup(ctx context.Context, key Key) (Entry, bool) {
	m.maybeSweep(ctx)

	now := m.clock.Now()
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if ok && now.Before(e.ExpiresAt) {
		m.mu.Lock()
		m.hits++
		m.mu.Unlock()
		return e, true
	}

	m.mu.Lock()
	if ok {
		if cur, still := m.entries[key]; still && !now.Before(cur.ExpiresAt) {
			delete(m.entries, key)
		}
	}
	m.misses++
	m.mu.Unlock()
	return Entry{}, false
}

// Store records a copy of payload. A non-positive ttl stores nothing.
func (m *MemoryCache) Store(ctx context.Context, key Key, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.maybeSweep(ctx)

	now := m.clock.Now()
	m.mu.Lock()
	m.entries[key] = Entry{
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	m.mu.Unlock()
	return nil
}

// Invalidate removes every entry matching key.
func (m *MemoryCache) Invalidate(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key.Method != "" && key.Query != "" {
		delete(m.entries, key)
		return nil
	}
	for k := range m.entries {
		if k.Matches(key) {
			delete(m.entries, k)
		}
	}
	return nil
}

// InvalidateAll removes every entry.
func (m *MemoryCache) InvalidateAll(_ context.Context) error {
	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
	return nil
}

// Sweep removes expired entries.
func (m *MemoryCache) Sweep(_ context.Context) int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(now)
}

func (m *MemoryCache) maybeSweep(_ context.Context) {
	if m.sweepEvery <= 0 {
		return
	}
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Sub(m.lastSweep) < m.sweepEvery {
		return
	}
	m.sweepLocked(now)
}

func (m *MemoryCache) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.ExpiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	m.lastSweep = now
	return removed
}

// Stats returns hit, miss and size counters.
func (m *MemoryCache) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Hits: m.hits, Misses: m.misses, Entries: len(m.entries)}
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Stats contains cache statistics.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

var _ Cache = (*MemoryCache)(nil)
