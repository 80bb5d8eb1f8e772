package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-service/internal/observability"
)

// DefaultBaseURL is the weatherstack API root.
const DefaultBaseURL = "http://api.weatherstack.com"

const (
	currentEndpoint = "/current"
	// units=f: Fahrenheit. Fixed because the cache key does not include units.
	unitsFahrenheit = "f"
	defaultTimeout  = 5 * time.Second
)

var (
	// ErrUpstream covers network failures, timeouts, unreadable bodies and, in strict
	// mode, non-2xx statuses and weatherstack error envelopes.
	ErrUpstream = errors.New("upstream failure")
	// ErrInvalidAPIKey is returned by the constructor when no access key is configured.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// WeatherClient fetches the raw current-conditions body for a zip code.
type WeatherClient interface {
	CurrentByZipcode(ctx context.Context, zipcode string) (string, error)
}

// Config is the explicit client configuration.
type Config struct {
	APIKey string
}

// Option configures a WeatherstackClient.
type Option func(*WeatherstackClient)

// WithBaseURL overrides DefaultBaseURL (tests, proxies).
func WithBaseURL(baseURL string) Option {
	return func(c *WeatherstackClient) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithTimeout sets the per-request timeout. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *WeatherstackClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *WeatherstackClient) { c.httpClient = hc }
}

// WithLogger sets the fallback logger used when the request context carries none.
func WithLogger(logger *zap.Logger) Option {
	return func(c *WeatherstackClient) { c.logger = logger }
}

// WithStrictStatus makes non-2xx responses and weatherstack error envelopes fail with
// ErrUpstream instead of being returned (and cached) as-is.
func WithStrictStatus(strict bool) Option {
	return func(c *WeatherstackClient) { c.strict = strict }
}

// WeatherstackClient calls GET {base}/current?access_key=..&units=f&query=<zip>.
// One request per call, no retries.
type WeatherstackClient struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	strict     bool
}

// NewWeatherstackClient validates cfg and returns a client.
func NewWeatherstackClient(cfg Config, opts ...Option) (*WeatherstackClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	c := &WeatherstackClient{
		apiKey:  cfg.APIKey,
		baseURL: DefaultBaseURL,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// BuildURL returns the request URL for zipcode. The zip code is query-escaped.
func (c *WeatherstackClient) BuildURL(zipcode string) string {
	return c.baseURL + currentEndpoint +
		"?access_key=" + url.QueryEscape(c.apiKey) +
		"&units=" + unitsFahrenheit +
		"&query=" + url.QueryEscape(zipcode)
}

// redactedURL is BuildURL with the access key masked, for logs.
func (c *WeatherstackClient) redactedURL(zipcode string) string {
	return strings.Replace(c.BuildURL(zipcode), "access_key="+url.QueryEscape(c.apiKey), "access_key=REDACTED", 1)
}

// CurrentByZipcode returns the raw response body for zipcode, unmodified.
// Transport failures and timeouts return ErrUpstream. Unless strict mode is on,
// the body is returned whatever the HTTP status.
func (c *WeatherstackClient) CurrentByZipcode(ctx context.Context, zipcode string) (string, error) {
	logger := observability.LoggerFromContext(ctx, c.logger)
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logger.Info("weather API request", zap.String("url", c.redactedURL(zipcode)))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.BuildURL(zipcode), nil)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return "", fmt.Errorf("%w: request timeout: %w", ErrUpstream, err)
		}
		return "", fmt.Errorf("%w: http request failed: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	logger.Info("weather API response",
		zap.Int("status", resp.StatusCode),
		zap.Any("headers", resp.Header),
		zap.Duration("duration", time.Since(start)))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response body: %w", ErrUpstream, err)
	}

	if c.strict {
		if err := checkResponse(resp.StatusCode, body); err != nil {
			return "", err
		}
	}
	return string(body), nil
}

// checkResponse rejects non-2xx statuses and the {"success":false,"error":{...}}
// envelope weatherstack sends with HTTP 200.
func checkResponse(statusCode int, body []byte) error {
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstream, statusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil // left to the caller's parser
	}
	r := gjson.ParseBytes(body)
	if r.Get("success").Exists() && !r.Get("success").Bool() {
		return fmt.Errorf("%w: weatherstack error %d (%s): %s", ErrUpstream,
			r.Get("error.code").Int(), r.Get("error.type").String(), r.Get("error.info").String())
	}
	return nil
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}
