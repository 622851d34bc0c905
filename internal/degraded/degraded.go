// Package degraded reports the dashboard read error rate used by the health check.
package degraded

import (
	"time"

	"github.com/kjstillabower/commute-dashboard/internal/traffic"
)

// RecordSuccess records a dashboard read that was served with feed data.
func RecordSuccess() {
	traffic.RecordSuccess()
}

// RecordError records a dashboard read that could not be served.
func RecordError() {
	traffic.RecordError()
}

// ErrorRate returns (errorCount, totalCount) within the window. totalCount = successes + errors.
func ErrorRate(window time.Duration) (errors, total int) {
	return traffic.ErrorRate(window)
}

// Reset clears all recorded data. For tests only.
func Reset() {
	traffic.Reset()
}
