//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/forecast-service/internal/cache"
	"github.com/kjstillabower/forecast-service/internal/client"
	"github.com/kjstillabower/forecast-service/internal/gateway"
	"github.com/kjstillabower/forecast-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		t.Skip("API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultBaseURL
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationService builds a ForecastService against the live API.
// Memcached falls back to the in-memory store when unreachable.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.ForecastService, cache.Store) {
	t.Helper()
	var store cache.Store = cache.NewInMemoryStore()
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			store = mc
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
		}
	}

	return service.NewForecastService(SetupIntegrationClient(t, cfg), gateway.New(store), service.DefaultTTL, nil), store
}

// SetupIntegrationClient creates a weatherstack client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.WeatherstackClient {
	t.Helper()
	c, err := client.NewWeatherstackClient(client.Config{APIKey: cfg.APIKey}, client.WithBaseURL(cfg.APIURL))
	if err != nil {
		t.Fatalf("NewWeatherstackClient() error = %v", err)
	}
	return c
}
