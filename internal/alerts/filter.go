// Package alerts filters, re-ranks and summarizes transit service alerts.
// Every function here is pure: inputs are never modified.
package alerts

import "github.com/kjstillabower/commute-dashboard/internal/models"

// Cause-detail codes that mark planned, non-disruptive work.
const (
	causeDetailSpecialEvent         = "SPECIAL_EVENT"
	causeDetailScheduledMaintenance = "SCHEDULED_MAINTENANCE"
)

// Filter returns the alerts in feed that affect routeID, in feed order.
// Entities without an alert, accessibility notices and planned events are dropped.
func Filter(feed *models.FeedMessage, routeID string) []models.Alert {
	if feed == nil {
		return []models.Alert{}
	}
	out := make([]models.Alert, 0, len(feed.Entity))
	for _, entity := range feed.Entity {
		if entity.Alert == nil {
			continue
		}
		alert := *entity.Alert
		if alert.Effect == models.EffectAccessibilityIssue {
			continue
		}
		if text, ok := alert.CauseDetail.FirstText(); ok {
			if text == causeDetailSpecialEvent || text == causeDetailScheduledMaintenance {
				continue
			}
		}
		if !affectsRoute(alert, routeID) {
			continue
		}
		alert.EntityID = entity.ID
		out = append(out, alert)
	}
	return out
}

func affectsRoute(alert models.Alert, routeID string) bool {
	for _, ie := range alert.InformedEntity {
		if ie.RouteID == routeID {
			return true
		}
	}
	return false
}
