package alerts

import (
	"slices"

	"github.com/kjstillabower/commute-dashboard/internal/models"
)

const effectDetailAnnouncement = "ANNOUNCEMENT"

// AdjustSeverity returns a new slice where each alert may be downgraded one step.
// Triggers: an OTHER_EFFECT announcement, or active periods that miss day entirely.
// Alerts that were already adjusted pass through unchanged.
func AdjustSeverity(in []models.Alert, day Day) []models.Alert {
	out := make([]models.Alert, len(in))
	for i, alert := range in {
		out[i] = adjust(alert, day)
	}
	return out
}

func adjust(alert models.Alert, day Day) models.Alert {
	if alert.Adjusted {
		return alert
	}
	alert.Adjusted = true
	if !shouldDowngrade(alert, day) {
		return alert
	}
	current := alert.Severity()
	next := current.Downgrade()
	if next != current {
		alert.OriginalSeverity = current
		alert.SeverityLevel = next
	}
	return alert
}

func shouldDowngrade(alert models.Alert, day Day) bool {
	if alert.Effect == models.EffectOther && alert.EffectDetail.HasText(effectDetailAnnouncement) {
		return true
	}
	return !day.Overlaps(alert.ActivePeriod)
}

// SortBySeverity returns a copy sorted most urgent first. Ties keep their input order.
func SortBySeverity(in []models.Alert) []models.Alert {
	out := slices.Clone(in)
	if out == nil {
		out = []models.Alert{}
	}
	slices.SortStableFunc(out, func(a, b models.Alert) int {
		return a.Severity().Rank() - b.Severity().Rank()
	})
	return out
}

// Process runs the full pipeline: filter by route, adjust severity, sort.
func Process(feed *models.FeedMessage, routeID string, day Day) []models.Alert {
	return SortBySeverity(AdjustSeverity(Filter(feed, routeID), day))
}
