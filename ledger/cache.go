/*
cache.go - TTL-bound read-through settings cache

PURPOSE:
  High-frequency callers (display-mode lookups, feature gating) read
  settings through this cache instead of hitting the store on every
  message. Entries expire after a short TTL and every settings mutation
  invalidates the tenant's entry.

CONSISTENCY NOTE:
  Fee computation does NOT read through this cache - AddTransaction reads
  settings inside its database transaction so a concurrent rate change
  cannot produce a half-applied fee. The cache only bounds staleness for
  read paths where a few seconds of lag is acceptable.

SEE ALSO:
  - store.go: GetSettings, the backing read
  - engine.go: setter operations call Invalidate
*/
package ledger

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 4096
	defaultCacheTTL  = 30 * time.Second
)

// SettingsCache is a read-through, TTL-bound cache over Store.GetSettings.
type SettingsCache struct {
	store Store
	lru   *expirable.LRU[TenantID, *Settings]
}

// NewSettingsCache creates a cache with the given TTL. Zero ttl uses the
// default.
func NewSettingsCache(store Store, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &SettingsCache{
		store: store,
		lru:   expirable.NewLRU[TenantID, *Settings](defaultCacheSize, nil, ttl),
	}
}

// Get returns the tenant's settings, reading through to the store on a
// miss or after expiry.
func (c *SettingsCache) Get(ctx context.Context, id TenantID) (*Settings, error) {
	if s, ok := c.lru.Get(id); ok {
		return s, nil
	}
	s, err := c.store.GetSettings(ctx, id)
	if err != nil {
		return nil, err
	}
	c.lru.Add(id, s)
	return s, nil
}

// Invalidate drops the tenant's entry. Called by every settings mutation
// so the next read observes the new rates immediately.
func (c *SettingsCache) Invalidate(id TenantID) {
	c.lru.Remove(id)
}
