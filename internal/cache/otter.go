package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// OtterStore is a bounded in-process Store backed by otter (W-TinyLFU eviction).
// Per-entry expiry is tracked alongside the value; maxTTL caps how long otter keeps
// any entry.
type OtterStore struct {
	cache *otter.Cache[string, entry]
}

// NewOtterStore creates a store holding at most maxEntries values.
func NewOtterStore(maxEntries int, maxTTL time.Duration) (*OtterStore, error) {
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize:      maxEntries,
		ExpiryCalculator: otter.ExpiryWriting[string, entry](maxTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create otter cache: %w", err)
	}
	return &OtterStore{cache: c}, nil
}

// Get returns the value if present and not expired.
func (s *OtterStore) Get(_ context.Context, key string) (string, bool, error) {
	e, ok := s.cache.GetIfPresent(key)
	if !ok {
		return "", false, nil
	}
	if e.expired(time.Now()) {
		s.cache.Invalidate(key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value with per-entry TTL.
func (s *OtterStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	s.cache.Set(key, entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// Exists checks presence without recording an access in the eviction policy.
func (s *OtterStore) Exists(_ context.Context, key string) (bool, error) {
	e, ok := s.cache.GetEntryQuietly(key)
	if !ok {
		return false, nil
	}
	return !e.Value.expired(time.Now()), nil
}
