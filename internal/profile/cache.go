package profile

import (
	"context"
	"sync"
	"time"
)

// SubscriptionCache caches subscription status lookups for a bounded time.
// Entries expire after the TTL and can be invalidated eagerly when a status
// change is known (for example from a billing webhook upstream).
type SubscriptionCache struct {
	repo *Repository
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[int64]cacheEntry
}

type cacheEntry struct {
	status  string
	expires time.Time
}

// NewSubscriptionCache wraps repo with a TTL cache.
func NewSubscriptionCache(repo *Repository, ttl time.Duration) *SubscriptionCache {
	return &SubscriptionCache{
		repo:    repo,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]cacheEntry),
	}
}

// Status returns the user's subscription status, from cache when fresh.
func (c *SubscriptionCache) Status(ctx context.Context, userID int64) (string, error) {
	c.mu.Lock()
	entry, ok := c.entries[userID]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expires) {
		return entry.status, nil
	}

	p, err := c.repo.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.entries[userID] = cacheEntry{status: p.SubscriptionStatus, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return p.SubscriptionStatus, nil
}

// Invalidate drops a user's cached status.
func (c *SubscriptionCache) Invalidate(userID int64) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}
