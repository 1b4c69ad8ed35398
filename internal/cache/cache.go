// Package cache holds recently served lead query results so repeated UI
// polls do not hammer the database. Entries expire on a TTL and the whole
// cache is invalidated after any write.
package cache

import (
	"fmt"
	"sync"
	"time"

	"leadflow/internal/database"
	"leadflow/internal/models"
)

// entry is one cached query result with expiration
type entry struct {
	leads     []models.Lead
	expiresAt time.Time
}

// LeadCache is an in-memory TTL cache of lead query results
type LeadCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]entry
}

// New creates a lead cache. A non-positive TTL disables caching entirely:
// Get always misses and Set is a no-op.
func New(ttl time.Duration) *LeadCache {
	return &LeadCache{
		ttl:   ttl,
		items: make(map[string]entry),
	}
}

// Key derives the cache key for a lead query filter
func Key(filter database.LeadFilter) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d",
		filter.BrandID, filter.AccountID, filter.CampaignID,
		filter.ProviderLeadID, filter.Category, filter.Limit)
}

// Get retrieves a cached query result
func (c *LeadCache) Get(key string) ([]models.Lead, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it
		if current, ok := c.items[key]; ok && time.Now().After(current.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return item.leads, true
}

// Set stores a query result
func (c *LeadCache) Set(key string, leads []models.Lead) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry{
		leads:     leads,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate drops every cached result. Called after writes (a finished
// backfill, an account removal) since any filter may now be stale.
func (c *LeadCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]entry)
}
