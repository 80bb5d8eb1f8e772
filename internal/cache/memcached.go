package cache

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "forecast:"

// maxRelativeExp is the largest expiration memcached treats as relative seconds.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedStore implements Store using memcached. Values are stored as the raw body bytes.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). Zero timeout or maxIdleConns
// keep the client defaults.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key escapes k so zip codes with spaces stay valid memcached keys.
func (c *MemcachedStore) key(k string) string {
	return keyPrefix + url.QueryEscape(k)
}

// Get implements Store.Get. Returns false, nil on cache miss.
func (c *MemcachedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if ctx.Err() != nil {
		return "", false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(item.Value), true, nil
}

// Set implements Store.Set. TTLs outside memcached's relative range fall back to one hour.
func (c *MemcachedStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      []byte(value),
		Expiration: expirationSeconds(ttl),
	})
}

// Exists implements Store.Exists. memcached Get does not extend expiry.
func (c *MemcachedStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

// expirationSeconds converts ttl to memcached's Expiration. Sub-second TTLs round up
// to one second; TTLs past 30 days are sent as an absolute Unix time, which is how
// memcached interprets values above maxRelativeExp.
func expirationSeconds(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 3600
	}
	sec := int64((ttl + time.Second - 1) / time.Second)
	if sec > maxRelativeExp {
		return int32(time.Now().Add(ttl).Unix())
	}
	return int32(sec)
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedStore) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedStore) Close() error {
	return c.client.Close()
}
