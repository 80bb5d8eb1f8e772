package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a key/value cache with per-entry TTL. Values are raw upstream bodies and are
// stored and returned byte-for-byte.
type Store interface {
	// Get returns the value if present and not expired. (zero, false, nil) on miss.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, expiring ttl after now.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Exists reports whether an unexpired entry is present without refreshing it.
	Exists(ctx context.Context, key string) (bool, error)
}

// InMemoryStore implements Store using a map with TTL-based expiration.
// Expired entries are removed on Get. Safe for concurrent use.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// Get returns the cached value for key if present and not expired.
// Expired entries are deleted.
func (c *InMemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}

	if e.expired(c.now()) {
		c.mu.Lock()
		// re-check: a concurrent Set may have replaced it
		if cur, ok := c.data[key]; ok && cur.expired(c.now()) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return "", false, nil
	}

	return e.value, true, nil
}

// Set stores value with the given TTL. Last write wins.
func (c *InMemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Exists reports whether key holds an unexpired entry. It never mutates the store.
func (c *InMemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[key]
	return ok && !e.expired(c.now()), nil
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
