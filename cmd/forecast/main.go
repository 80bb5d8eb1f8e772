// Command forecast prints current conditions for a single zip code using the
// same configuration and cache gateway as the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-service/internal/cache"
	"github.com/kjstillabower/forecast-service/internal/client"
	"github.com/kjstillabower/forecast-service/internal/config"
	"github.com/kjstillabower/forecast-service/internal/gateway"
	"github.com/kjstillabower/forecast-service/internal/observability"
	"github.com/kjstillabower/forecast-service/internal/service"
	"github.com/kjstillabower/forecast-service/internal/validation"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("forecast", flag.ContinueOnError)
	fs.SetOutput(stderr)
	zipcode := fs.String("zipcode", "", "zip code to look up (required)")
	raw := fs.Bool("raw", false, "print the upstream JSON body unmodified")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	zip, err := validation.ValidateZipcode(*zipcode, cfg.ZipcodeMinLength, cfg.ZipcodeMaxLength)
	if err != nil {
		fmt.Fprintf(stderr, "zipcode: %v\n", err)
		fs.Usage()
		return 2
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = observability.FlushTelemetry(logger) }()

	weatherClient, err := client.NewWeatherstackClient(
		client.Config{APIKey: cfg.APIKey},
		client.WithBaseURL(cfg.WeatherAPIURL),
		client.WithTimeout(cfg.WeatherAPITimeout),
		client.WithStrictStatus(cfg.StrictStatus),
		client.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintf(stderr, "weather client: %v\n", err)
		return 1
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "cache: %v\n", err)
		return 1
	}
	defer closeStore()

	svc := service.NewForecastService(weatherClient, gateway.New(store, gateway.WithLogger(logger)), cfg.CacheTTL, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	forecast, err := svc.CurrentByZipcode(ctx, zip)
	if err != nil {
		logger.Debug("lookup failed", zap.Error(err))
		fmt.Fprintln(stderr, "Unable to fetch weather data. Please check your zipcode and try again.")
		return 1
	}

	if *raw {
		fmt.Fprintln(stdout, string(forecast.Raw))
		return 0
	}
	writeSummary(stdout, zip, forecast.FromCache, forecast.Raw)
	return 0
}

// openStore returns the configured cache. Only memcached is shared with the service;
// the local backends live for this process only.
func openStore(cfg *config.Config) (cache.Store, func(), error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		return mc, func() { _ = mc.Close() }, nil
	case "otter":
		oc, err := cache.NewOtterStore(cfg.CacheMaxEntries, cfg.CacheTTL)
		if err != nil {
			return nil, nil, err
		}
		return oc, func() {}, nil
	default:
		return cache.NewInMemoryStore(), func() {}, nil
	}
}

// writeSummary prints a short human-readable view of a weatherstack body.
func writeSummary(w io.Writer, zipcode string, fromCache bool, body []byte) {
	r := gjson.ParseBytes(body)
	place := r.Get("location.name").String()
	if region := r.Get("location.region").String(); region != "" {
		place += ", " + region
	}
	unit := "F"
	switch r.Get("request.unit").String() {
	case "m":
		unit = "C"
	case "s":
		unit = "K"
	}
	source := "live"
	if fromCache {
		source = "cached"
	}

	fmt.Fprintf(w, "%s (%s) [%s]\n", zipcode, place, source)
	fmt.Fprintf(w, "  %s, %s°%s (feels like %s°%s)\n",
		r.Get("current.weather_descriptions.0").String(),
		r.Get("current.temperature").String(), unit,
		r.Get("current.feelslike").String(), unit)
	fmt.Fprintf(w, "  humidity %s%%, wind %s %s\n",
		r.Get("current.humidity").String(),
		r.Get("current.wind_speed").String(),
		r.Get("current.wind_dir").String())
	if t := r.Get("current.observation_time"); t.Exists() {
		fmt.Fprintf(w, "  observed %s local\n", t.String())
	}
}
