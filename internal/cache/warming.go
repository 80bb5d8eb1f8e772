package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-service/internal/models"
	"github.com/kjstillabower/forecast-service/internal/observability"
)

// ForecastFetcher is implemented by the service layer. Declared here so the warmer
// does not import the service package.
type ForecastFetcher interface {
	CurrentByZipcode(ctx context.Context, zipcode string) (models.Forecast, error)
}

// CacheWarmer prefetches forecasts for a fixed list of zip codes.
type CacheWarmer struct {
	fetcher ForecastFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer. logger may be nil.
func NewCacheWarmer(fetcher ForecastFetcher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches every zip code concurrently through the fetcher, which populates the
// cache on miss. Returns an aggregated error if any zip code failed.
func (w *CacheWarmer) Warm(ctx context.Context, zipcodes []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("zipcodes", len(zipcodes)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(zipcodes))
	for _, zip := range zipcodes {
		wg.Add(1)
		go func(zip string) {
			defer wg.Done()
			if _, err := w.fetcher.CurrentByZipcode(ctx, zip); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", zip, err)
			}
		}(zip)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete", zap.Int("zipcodes", len(zipcodes)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs Warm immediately and then every interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, zipcodes []string, interval time.Duration) error {
	if err := w.Warm(ctx, zipcodes); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, zipcodes); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
