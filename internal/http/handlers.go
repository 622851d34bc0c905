package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/commute-dashboard/internal/degraded"
	"github.com/kjstillabower/commute-dashboard/internal/flags"
	"github.com/kjstillabower/commute-dashboard/internal/idle"
	"github.com/kjstillabower/commute-dashboard/internal/lifecycle"
	"github.com/kjstillabower/commute-dashboard/internal/observability"
	"github.com/kjstillabower/commute-dashboard/internal/overload"
	"github.com/kjstillabower/commute-dashboard/internal/service"
	"github.com/kjstillabower/commute-dashboard/internal/validation"
)

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	StartTime              time.Time
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// FlagsPing, when set, checks the mock flag database.
	FlagsPing func() error
}

// Services are the feed services behind the dashboard routes.
type Services struct {
	Alerts  *service.AlertService
	Weather *service.WeatherService
	Aqi     *service.AqiService
	Proxy   *service.AqiProxy
	Flags   *flags.Flags
	// Refresh reloads a feed after its mock flag changes, keyed by flag.
	Refresh map[string]func(context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc              Services
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(svc Services, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:          svc,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// feedFlags maps the feed names accepted by PUT /dashboard/mock-data/{feed} to flag keys.
var feedFlags = map[string]string{
	"alerts":  flags.MockAlerts,
	"weather": flags.MockWeather,
	"aqi":     flags.MockAqi,
}

// GetAlerts handles GET /dashboard/alerts. The response is always 200; a snapshot that
// could not be loaded is empty and marked unavailable.
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	idle.RecordRequest()
	observability.RecordDashboardQuery("alerts", "")
	snap, err := h.svc.Alerts.Current(r.Context())
	recordOutcome(r, "alerts", err)
	writeJSON(w, http.StatusOK, snap)
}

// GetAlertSummary handles GET /dashboard/alerts/summary.
func (h *Handler) GetAlertSummary(w http.ResponseWriter, r *http.Request) {
	idle.RecordRequest()
	observability.RecordDashboardQuery("alerts_summary", "")
	summary, err := h.svc.Alerts.Summary(r.Context())
	recordOutcome(r, "alerts", err)
	writeJSON(w, http.StatusOK, summary)
}

// GetWeather handles GET /dashboard/weather/{location}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	key, ok := locationKey(w, r)
	if !ok {
		return
	}
	idle.RecordRequest()
	observability.RecordDashboardQuery("weather", key)
	data, err := h.svc.Weather.Current(r.Context(), key)
	if err != nil {
		writeFeedError(w, r, "weather", err, "Unable to fetch weather data")
		return
	}
	degraded.RecordSuccess()
	writeJSON(w, http.StatusOK, data)
}

// GetAqi handles GET /dashboard/aqi/{location}.
func (h *Handler) GetAqi(w http.ResponseWriter, r *http.Request) {
	key, ok := locationKey(w, r)
	if !ok {
		return
	}
	idle.RecordRequest()
	observability.RecordDashboardQuery("aqi", key)
	data, err := h.svc.Aqi.Current(r.Context(), key)
	if err != nil {
		writeFeedError(w, r, "aqi", err, "Unable to fetch air quality data")
		return
	}
	degraded.RecordSuccess()
	writeJSON(w, http.StatusOK, data)
}

// GetMockData handles GET /dashboard/mock-data.
func (h *Handler) GetMockData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Flags.All())
}

// PutMockData handles PUT /dashboard/mock-data/{feed} with body {"enabled": bool}.
// {feed} is a feed name (alerts, weather, aqi) or a flag key. The feed is refreshed
// after the flag is saved so the next read reflects the new source.
func (h *Handler) PutMockData(w http.ResponseWriter, r *http.Request) {
	feed := mux.Vars(r)["feed"]
	key, ok := feedFlags[feed]
	if !ok {
		if !flags.Known(feed) {
			writeError(w, r, http.StatusNotFound, "UNKNOWN_FEED", "unknown feed: "+feed)
			return
		}
		key = feed
	}

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", `body must be {"enabled": true|false}`)
		return
	}

	logger := observability.LoggerFrom(r.Context(), h.logger)
	if err := h.svc.Flags.Set(r.Context(), key, *body.Enabled); err != nil {
		logger.Error("mock flag write failed", zap.String("flag", key), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "FLAG_WRITE_FAILED", "Unable to save mock data setting")
		return
	}
	logger.Info("mock flag changed", zap.String("flag", key), zap.Bool("enabled", *body.Enabled))

	if refresh := h.svc.Refresh[key]; refresh != nil {
		if err := refresh(r.Context()); err != nil {
			logger.Warn("refresh after mock flag change failed", zap.String("flag", key), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, h.svc.Flags.All())
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
		checks["upstreams"] = "unhealthy"
	} else {
		checks["upstreams"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	if h.healthConfig != nil && h.healthConfig.FlagsPing != nil {
		if h.healthConfig.FlagsPing() == nil {
			checks["flags"] = "healthy"
		} else {
			checks["flags"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > idle > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	cfg := h.healthConfig
	if cfg == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	// Overloaded: requests in the window exceed the configured share of rate-limit capacity.
	if overload.Exceeded(cfg.RateLimitRPS, cfg.OverloadWindow, cfg.OverloadThresholdPct) {
		return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
	}
	// Idle: only once the process has outlived its minimum lifespan.
	if cfg.IdleWindow > 0 && cfg.MinimumLifespan > 0 && time.Since(cfg.StartTime) >= cfg.MinimumLifespan {
		if idle.RequestCount(cfg.IdleWindow) < cfg.IdleThresholdReqPerMin {
			return healthResult{"idle", http.StatusOK, "low_traffic"}
		}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		errs, total := degraded.ErrorRate(cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(cfg.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// locationKey validates the {location} path variable, writing a 400 when it is malformed.
func locationKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := validation.ValidateLocationKey(mux.Vars(r)["location"], validation.MaxLocationKeyLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return "", false
	}
	return key, true
}

// recordOutcome feeds the degraded error rate and logs failed reads at DEBUG.
func recordOutcome(r *http.Request, feed string, err error) {
	if err == nil {
		degraded.RecordSuccess()
		return
	}
	degraded.RecordError()
	observability.LoggerFrom(r.Context(), zap.NewNop()).Debug("feed unavailable",
		zap.String("feed", feed), zap.Error(err))
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeFeedError maps a per-location feed error: unknown keys are 404, anything else is
// an upstream failure with no snapshot to fall back on (503).
func writeFeedError(w http.ResponseWriter, r *http.Request, feed string, err error, message string) {
	if errors.Is(err, service.ErrUnknownLocation) {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_LOCATION", "location is not configured")
		return
	}
	recordOutcome(r, feed, err)
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", message)
}

