package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-service/internal/models"
	"github.com/kjstillabower/forecast-service/internal/observability"
	"github.com/kjstillabower/forecast-service/internal/traffic"
	"github.com/kjstillabower/forecast-service/internal/validation"
)

// upstreamUnavailableMessage is the only error text callers see for failed lookups.
const upstreamUnavailableMessage = "Unable to fetch weather data. Please check your zipcode and try again."

// ForecastProvider answers current conditions by zip code. Implemented by service.ForecastService.
type ForecastProvider interface {
	CurrentByZipcode(ctx context.Context, zipcode string) (models.Forecast, error)
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	forecasts        ForecastProvider
	tracker          *traffic.Tracker
	healthConfig     *HealthConfig
	logger           *zap.Logger
	zipMinLen        int
	zipMaxLen        int
	draining         atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. tracker and healthConfig may be nil.
func NewHandler(
	forecasts ForecastProvider,
	tracker *traffic.Tracker,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	zipMinLen, zipMaxLen int,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		forecasts:    forecasts,
		tracker:      tracker,
		healthConfig: healthConfig,
		logger:       logger,
		zipMinLen:    zipMinLen,
		zipMaxLen:    zipMaxLen,
	}
}

// SetDraining marks the service as shutting down. /health reports shutting-down afterwards.
func (h *Handler) SetDraining(v bool) {
	h.draining.Store(v)
}

// forecastResponse carries the upstream body as received rather than a typed view of it.
type forecastResponse struct {
	Zipcode   string          `json:"zipcode"`
	FromCache bool            `json:"fromCache"`
	Forecast  json.RawMessage `json:"forecast"`
}

// GetForecast handles GET /forecast?zipcode= and GET /forecast/{zipcode}.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["zipcode"]
	if raw == "" {
		raw = r.URL.Query().Get("zipcode")
	}
	zipcode, err := validation.ValidateZipcode(raw, h.zipMinLen, h.zipMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ZIPCODE", err.Error())
		return
	}

	forecast, err := h.forecasts.CurrentByZipcode(r.Context(), zipcode)
	if err != nil {
		if h.tracker != nil {
			h.tracker.RecordError()
		}
		writeServiceError(w, r)
		return
	}
	if h.tracker != nil {
		h.tracker.RecordSuccess()
	}
	writeJSON(w, http.StatusOK, forecastResponse{
		Zipcode:   forecast.Zipcode,
		FromCache: forecast.FromCache,
		Forecast:  forecast.Raw,
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "forecast-service",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if h.draining.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil || h.tracker == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := h.tracker.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope: code, message and the request correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError writes 503 with the generic message. The service layer has
// already logged the underlying error.
func writeServiceError(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", upstreamUnavailableMessage)
}

// routeTemplate maps a request path to its route label so metrics stay low-cardinality.
func routeTemplate(path string) string {
	switch {
	case path == "/health", path == "/metrics", path == "/forecast":
		return path
	case strings.HasPrefix(path, "/forecast/"):
		return "/forecast/{zipcode}"
	default:
		return "other"
	}
}
