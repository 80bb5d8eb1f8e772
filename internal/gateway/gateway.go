// Package gateway fronts an expensive producer with a TTL cache: Fetch returns the
// cached value for a key when one is present and unexpired, otherwise it runs the
// producer once, stores the result and returns it.
package gateway

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/forecast-service/internal/cache"
	"github.com/kjstillabower/forecast-service/internal/observability"
)

// Producer computes the value for a missing key.
type Producer func(ctx context.Context) (string, error)

// Gateway is a cache-aside front for a cache.Store.
type Gateway struct {
	store    cache.Store
	logger   *zap.Logger
	stampede *stampedeTracker
	group    *singleflight.Group // nil unless coalescing is enabled
	label    func(key string) string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithCoalescing collapses concurrent misses for the same key into a single producer call.
// The shared producer call is not cancelled with the caller that started it, so the
// producer must bound its own run time (the weather client applies its timeout).
func WithCoalescing() Option {
	return func(g *Gateway) { g.group = &singleflight.Group{} }
}

// WithMetricLabel sets how keys map to the bounded label used on per-key metrics.
func WithMetricLabel(fn func(key string) string) Option {
	return func(g *Gateway) { g.label = fn }
}

// New returns a Gateway over store.
func New(store cache.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:    store,
		stampede: newStampedeTracker(),
		label:    func(string) string { return "other" },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Exists reports whether an unexpired entry is present for key. It does not invoke
// any producer and does not change the entry's TTL.
func (g *Gateway) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := g.store.Exists(ctx, key)
	g.observe("exists", start, err)
	return ok, err
}

// Fetch returns the cached value for key, or on a miss runs produce, stores the
// result for ttl and returns it.
//
// A producer error is returned as-is and nothing is stored. Backend read errors are
// treated as misses and backend write errors are logged; in both cases the caller
// still gets the produced value.
func (g *Gateway) Fetch(ctx context.Context, key string, ttl time.Duration, produce Producer) (string, error) {
	logger := observability.LoggerFromContext(ctx, g.logger)

	getStart := time.Now()
	cached, ok, err := g.store.Get(ctx, key)
	g.observe("get", getStart, err)
	if err != nil {
		logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
	} else if ok {
		observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
		logger.Debug("cache hit", zap.String("key", key))
		return cached, nil
	}
	observability.CacheLookupsTotal.WithLabelValues("miss").Inc()

	if n := g.stampede.begin(key); n > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(g.label(key)).Inc()
		logger.Debug("concurrent cache miss", zap.String("key", key), zap.Int("concurrent", n))
	}
	defer g.stampede.end(key)

	logger.Debug("cache miss, invoking producer", zap.String("key", key))
	if g.group == nil {
		return g.produceAndStore(ctx, key, ttl, produce)
	}

	// The shared call outlives any one caller's cancellation; each caller still
	// stops waiting when its own ctx ends.
	ch := g.group.DoChan(key, func() (interface{}, error) {
		return g.produceAndStore(context.WithoutCancel(ctx), key, ttl, produce)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			observability.RequestCoalescingHitsTotal.Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (g *Gateway) produceAndStore(ctx context.Context, key string, ttl time.Duration, produce Producer) (string, error) {
	value, err := produce(ctx)
	if err != nil {
		return "", err
	}

	setStart := time.Now()
	setErr := g.store.Set(ctx, key, value, ttl)
	g.observe("set", setStart, setErr)
	if setErr != nil {
		observability.LoggerFromContext(ctx, g.logger).Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
	}
	return value, nil
}

func (g *Gateway) observe(op string, start time.Time, err error) {
	d := time.Since(start).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(op, categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues(op, "error").Observe(d)
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues(op, "success").Observe(d)
}

// categorizeCacheError returns a stable label for cache error metrics.
func categorizeCacheError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
