package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/commute-dashboard/internal/observability"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration
	CORSOrigin     string
}

// NewRouter mounts the dashboard, proxy, health and metrics routes. Dashboard and proxy
// routes are rate limited and bounded by RequestTimeout.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	dashboard := router.PathPrefix("/dashboard").Subrouter()
	dashboard.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		dashboard.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	dashboard.HandleFunc("/alerts", h.GetAlerts).Methods(http.MethodGet)
	dashboard.HandleFunc("/alerts/summary", h.GetAlertSummary).Methods(http.MethodGet)
	dashboard.HandleFunc("/weather/{location}", h.GetWeather).Methods(http.MethodGet)
	dashboard.HandleFunc("/aqi/{location}", h.GetAqi).Methods(http.MethodGet)
	dashboard.HandleFunc("/mock-data", h.GetMockData).Methods(http.MethodGet)
	dashboard.HandleFunc("/mock-data/{feed}", h.PutMockData).Methods(http.MethodPut)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/aqi", h.ProxyAqi).Methods(http.MethodGet, http.MethodPost)

	return CORSMiddleware(cfg.CORSOrigin)(router)
}
