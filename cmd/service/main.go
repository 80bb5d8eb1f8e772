package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/forecast-service/internal/cache"
	"github.com/kjstillabower/forecast-service/internal/client"
	"github.com/kjstillabower/forecast-service/internal/config"
	"github.com/kjstillabower/forecast-service/internal/gateway"
	httphandler "github.com/kjstillabower/forecast-service/internal/http"
	"github.com/kjstillabower/forecast-service/internal/observability"
	"github.com/kjstillabower/forecast-service/internal/service"
	"github.com/kjstillabower/forecast-service/internal/traffic"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	weatherClient, err := client.NewWeatherstackClient(
		client.Config{APIKey: cfg.APIKey},
		client.WithBaseURL(cfg.WeatherAPIURL),
		client.WithTimeout(cfg.WeatherAPITimeout),
		client.WithStrictStatus(cfg.StrictStatus),
		client.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	var store cache.Store
	var memcacheCloser *cache.MemcachedStore
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		store = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "otter":
		oc, err := cache.NewOtterStore(cfg.CacheMaxEntries, cfg.CacheTTL)
		if err != nil {
			logger.Fatal("otter cache", zap.Error(err))
		}
		store = oc
		logger.Info("cache backend: otter", zap.Int("max_entries", cfg.CacheMaxEntries))
	default:
		store = cache.NewInMemoryStore()
		logger.Info("cache backend: in_memory")
	}

	gwOpts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithMetricLabel(func(key string) string {
			return observability.ZipcodeLabel(service.ZipcodeFromKey(key))
		}),
	}
	if cfg.CoalesceMisses {
		gwOpts = append(gwOpts, gateway.WithCoalescing())
	}
	gw := gateway.New(store, gwOpts...)
	forecastService := service.NewForecastService(weatherClient, gw, cfg.CacheTTL, logger)

	tracker := traffic.NewTracker(0)
	observability.RegisterTrafficGauges(tracker, cfg.DegradedWindow)
	if len(cfg.TrackedZipcodes) > 0 {
		observability.SetTrackedZipcodes(cfg.TrackedZipcodes)
	}

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(forecastService, tracker, healthConfig, logger, cfg.ZipcodeMinLength, cfg.ZipcodeMaxLength)

	warmCtx, stopWarming := context.WithCancel(context.Background())
	defer stopWarming()
	if len(cfg.WarmZipcodes) > 0 {
		warmer := cache.NewCacheWarmer(forecastService, logger)
		initCtx, initCancel := context.WithTimeout(warmCtx, 30*time.Second)
		if err := warmer.Warm(initCtx, cfg.WarmZipcodes); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		initCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(warmCtx, cfg.WarmZipcodes, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	inFlight := &httphandler.InFlightTracker{}
	router := newRouter(handler, logger, limiter, tracker, inFlight, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetDraining(true)
	stopWarming()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inFlight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// newRouter mounts /health, /metrics and the rate-limited, time-bounded /forecast routes.
func newRouter(
	handler *httphandler.Handler,
	logger *zap.Logger,
	limiter *rate.Limiter,
	tracker *traffic.Tracker,
	inFlight *httphandler.InFlightTracker,
	requestTimeout time.Duration,
) *mux.Router {
	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware(inFlight))
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	forecastRouter := router.PathPrefix("/forecast").Subrouter()
	forecastRouter.Use(httphandler.RateLimitMiddleware(limiter, tracker))
	forecastRouter.Use(httphandler.TimeoutMiddleware(requestTimeout))
	forecastRouter.HandleFunc("", handler.GetForecast).Methods("GET")
	forecastRouter.HandleFunc("/{zipcode}", handler.GetForecast).Methods("GET")
	return router
}
