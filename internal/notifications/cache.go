package notifications

import (
	"context"
	"sync"
	"time"
)

// PreferenceCache serves the per-tenant preference list the fan-out resolves
// its always-notified audience from. The cache is never invalidated on
// preference writes: a preference change may take up to the TTL to be
// visible. Concurrent rebuilds are harmless; last write wins.
type PreferenceCache interface {
	Get(ctx context.Context, tenantID string) ([]Preference, bool)
	Set(ctx context.Context, tenantID string, prefs []Preference)
}

// TTLCache is the default in-process implementation.
type TTLCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]ttlEntry

	// now is swappable for tests.
	now func() time.Time
}

type ttlEntry struct {
	prefs     []Preference
	expiresAt time.Time
}

func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:     ttl,
		entries: make(map[string]ttlEntry),
		now:     time.Now,
	}
}

func (c *TTLCache) Get(_ context.Context, tenantID string) ([]Preference, bool) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.prefs, true
}

func (c *TTLCache) Set(_ context.Context, tenantID string, prefs []Preference) {
	c.mu.Lock()
	c.entries[tenantID] = ttlEntry{prefs: prefs, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
