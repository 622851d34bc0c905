package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/commute-dashboard/internal/aqi"
	"github.com/kjstillabower/commute-dashboard/internal/client"
	"github.com/kjstillabower/commute-dashboard/internal/observability"
	"github.com/kjstillabower/commute-dashboard/internal/service"
)

var errMaxAgeNotInteger = errors.New("maxAgeMinutes must be an integer")

// proxyBody is the optional POST body of /api/aqi. maxAgeMinutes may be a number or a
// numeric string.
type proxyBody struct {
	Sensor        string          `json:"sensor"`
	PMField       string          `json:"pmField"`
	MaxAgeMinutes json.RawMessage `json:"maxAgeMinutes"`
}

// ProxyAqi handles GET|POST /api/aqi. Query parameters take precedence over the JSON
// body; an unparseable body is ignored. Errors use the flat {"error": msg} shape.
func (h *Handler) ProxyAqi(w http.ResponseWriter, r *http.Request) {
	req, err := readingRequest(r)
	if err != nil {
		writeProxyError(w, http.StatusBadRequest, err.Error())
		return
	}

	reading, err := h.svc.Proxy.Reading(r.Context(), req)
	if err != nil {
		status, msg := proxyErrorStatus(err, req)
		if status >= http.StatusInternalServerError {
			observability.LoggerFrom(r.Context(), h.logger).Warn("aqi proxy failed",
				zap.String("sensor", req.Sensor),
				zap.String("category", string(client.CategorizeError(err))),
				zap.Error(err))
		}
		writeProxyError(w, status, msg)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, reading)
}

func readingRequest(r *http.Request) (service.ReadingRequest, error) {
	var body proxyBody
	if r.Method == http.MethodPost && r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	q := r.URL.Query()
	req := service.ReadingRequest{
		Sensor:  firstNonEmpty(q.Get("sensor"), body.Sensor),
		PMField: firstNonEmpty(q.Get("pmField"), body.PMField),
	}

	raw := q.Get("maxAgeMinutes")
	if raw == "" && len(body.MaxAgeMinutes) > 0 && string(body.MaxAgeMinutes) != "null" {
		raw = string(body.MaxAgeMinutes)
	}
	if raw == "" {
		return req, nil
	}
	n, err := parseMinutes(raw)
	if err != nil {
		return req, err
	}
	req.MaxAgeMinutes = &n
	return req, nil
}

// parseMinutes accepts an integer, an integral JSON number or a quoted integer.
func parseMinutes(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, errMaxAgeNotInteger
	}
	return int(f), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// proxyErrorStatus maps proxy errors to a status and client-facing message.
func proxyErrorStatus(err error, req service.ReadingRequest) (int, string) {
	switch {
	case errors.Is(err, service.ErrProxyNotConfigured):
		return http.StatusInternalServerError, "Server is not configured with PURPLEAIR_API_KEY"
	case errors.Is(err, aqi.ErrUnknownSensor):
		return http.StatusBadRequest, "Unrecognized sensor identifier: " + strings.TrimSpace(req.Sensor)
	case errors.Is(err, client.ErrInvalidRequest):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), client.ErrInvalidRequest.Error()+": ")
	case errors.Is(err, service.ErrNoNumericValue):
		field := req.PMField
		if field == "" {
			field = aqi.DefaultPMField
		}
		return http.StatusNotFound, fmt.Sprintf("No numeric value for %s", field)
	case errors.Is(err, client.ErrNoReading):
		return http.StatusNotFound, "No fresh reading available for this sensor (empty result)."
	default:
		return http.StatusBadGateway, "PurpleAir request failed"
	}
}

func writeProxyError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, map[string]string{"error": msg})
}
