package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/forecast-service/internal/models"
)

type mockForecastFetcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockForecastFetcher) CurrentByZipcode(ctx context.Context, zipcode string) (models.Forecast, error) {
	m.mu.Lock()
	m.calls = append(m.calls, zipcode)
	m.mu.Unlock()
	if m.err != nil {
		return models.Forecast{}, m.err
	}
	return models.Forecast{Zipcode: zipcode}, nil
}

func (m *mockForecastFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestCacheWarmer_Warm_Success(t *testing.T) {
	fetcher := &mockForecastFetcher{}
	warmer := NewCacheWarmer(fetcher, nil)

	if err := warmer.Warm(context.Background(), []string{"27332", "10001"}); err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	if n := fetcher.callCount(); n != 2 {
		t.Errorf("fetcher calls = %d, want 2", n)
	}
}

func TestCacheWarmer_Warm_EmptyZipcodes(t *testing.T) {
	warmer := NewCacheWarmer(&mockForecastFetcher{}, nil)
	ctx := context.Background()

	if err := warmer.Warm(ctx, nil); err != nil {
		t.Fatalf("Warm(nil) error = %v, want nil", err)
	}
	if err := warmer.Warm(ctx, []string{}); err != nil {
		t.Fatalf("Warm([]) error = %v, want nil", err)
	}
}

func TestCacheWarmer_Warm_FetcherError(t *testing.T) {
	fetcher := &mockForecastFetcher{err: errors.New("api down")}
	warmer := NewCacheWarmer(fetcher, nil)

	err := warmer.Warm(context.Background(), []string{"27332"})
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "warm 27332: api down") {
		t.Errorf("Warm() error = %q, want it to name the failed zip code", err)
	}
}

func TestCacheWarmer_WarmPeriodic_StopsOnCancel(t *testing.T) {
	fetcher := &mockForecastFetcher{}
	warmer := NewCacheWarmer(fetcher, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	err := warmer.WarmPeriodic(ctx, []string{"27332"}, 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WarmPeriodic() error = %v, want context.DeadlineExceeded", err)
	}
	if n := fetcher.callCount(); n < 2 {
		t.Errorf("fetcher calls = %d, want initial warm plus at least one tick", n)
	}
}
