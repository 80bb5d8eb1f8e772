package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-service/internal/client"
	"github.com/kjstillabower/forecast-service/internal/gateway"
	"github.com/kjstillabower/forecast-service/internal/models"
	"github.com/kjstillabower/forecast-service/internal/observability"
)

// DefaultTTL is how long a zip code's body stays cached.
const DefaultTTL = 30 * time.Minute

const keyPrefix = "weather/"

// ErrMalformedResponse is returned when the cached or fetched body is not valid JSON.
var ErrMalformedResponse = errors.New("malformed response")

// ForecastService answers current conditions by zip code through the cache gateway.
type ForecastService struct {
	client  client.WeatherClient
	gateway *gateway.Gateway
	ttl     time.Duration
	logger  *zap.Logger
}

// NewForecastService wires the client behind the gateway. A non-positive ttl uses DefaultTTL.
// logger may be nil.
func NewForecastService(weatherClient client.WeatherClient, gw *gateway.Gateway, ttl time.Duration, logger *zap.Logger) *ForecastService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ForecastService{
		client:  weatherClient,
		gateway: gw,
		ttl:     ttl,
		logger:  logger,
	}
}

// Key returns the cache key for zipcode. The zip code is used verbatim.
func Key(zipcode string) string {
	return keyPrefix + zipcode
}

// ZipcodeFromKey is the inverse of Key, used for metric labels.
func ZipcodeFromKey(key string) string {
	return strings.TrimPrefix(key, keyPrefix)
}

// CurrentByZipcode returns current conditions for zipcode, from cache when a copy
// younger than the TTL exists. Upstream errors come back wrapping client.ErrUpstream;
// a body that is not JSON returns ErrMalformedResponse.
func (s *ForecastService) CurrentByZipcode(ctx context.Context, zipcode string) (models.Forecast, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	key := Key(zipcode)
	start := time.Now()
	observability.RecordForecastQuery(zipcode)

	fromCache, err := s.gateway.Exists(ctx, key)
	if err != nil {
		// telemetry only; Fetch decides hit or miss on its own
		logger.Debug("cache exists check failed", zap.String("zipcode", zipcode), zap.Error(err))
		fromCache = false
	}

	body, err := s.gateway.Fetch(ctx, key, s.ttl, func(ctx context.Context) (string, error) {
		return s.client.CurrentByZipcode(ctx, zipcode)
	})
	if err != nil {
		logger.Error("forecast API error",
			zap.String("zipcode", zipcode),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
		return models.Forecast{}, err
	}

	forecast, err := parseForecast(body)
	if err != nil {
		observability.MalformedResponsesTotal.Inc()
		logger.Error("forecast API error",
			zap.String("zipcode", zipcode),
			zap.String("category", string(client.ErrorCategoryParsing)),
			zap.Error(err))
		return models.Forecast{}, err
	}
	forecast.Zipcode = zipcode
	forecast.FromCache = fromCache

	logger.Debug("forecast served", zap.String("zipcode", zipcode), zap.Bool("cached", fromCache), zap.Duration("duration", time.Since(start)))
	return forecast, nil
}

// parseForecast decodes body into a Forecast, keeping body as Raw. Only a body that is
// not JSON at all is malformed; fields whose JSON type does not match the typed view
// are left at their zero value and Raw still carries them.
func parseForecast(body string) (models.Forecast, error) {
	raw := []byte(body)
	if !json.Valid(raw) {
		return models.Forecast{}, fmt.Errorf("%w: body is not valid JSON", ErrMalformedResponse)
	}
	var f models.Forecast
	if err := json.Unmarshal(raw, &f); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return models.Forecast{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	f.Raw = json.RawMessage(raw)
	return f, nil
}
