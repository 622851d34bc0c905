// Package overload reports rate-limited request volume used by the health check.
// Dashboard reads, flag toggles and proxy calls all count toward the same window.
package overload

import (
	"time"

	"github.com/kjstillabower/commute-dashboard/internal/traffic"
)

// RecordDenial records a request rejected with 429 by the rate limiter.
func RecordDenial() {
	traffic.RecordDenied()
}

// RequestCount returns requests (success + error + denied) within window.
func RequestCount(window time.Duration) int {
	return traffic.RequestCount(window)
}

// DenialCount returns 429 denials within window.
func DenialCount(window time.Duration) int {
	return traffic.DenialCount(window)
}

// Threshold is the request count above which the process reports itself overloaded:
// thresholdPct percent of what the limiter admits over window.
func Threshold(rateLimitRPS int, window time.Duration, thresholdPct int) float64 {
	return float64(rateLimitRPS) * window.Seconds() * float64(thresholdPct) / 100
}

// Exceeded reports whether requests within window are above Threshold. Without a
// rate limit or a window there is no capacity to compare against and it returns false.
func Exceeded(rateLimitRPS int, window time.Duration, thresholdPct int) bool {
	if rateLimitRPS <= 0 || window <= 0 {
		return false
	}
	return float64(RequestCount(window)) > Threshold(rateLimitRPS, window, thresholdPct)
}

// Reset clears all recorded data. For tests only.
func Reset() {
	traffic.Reset()
}
