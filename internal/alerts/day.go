package alerts

import (
	"time"

	"github.com/kjstillabower/commute-dashboard/internal/models"
)

// maxSafeInteger stands in for a missing active_period end.
const maxSafeInteger int64 = 1<<53 - 1

// Day is a local calendar day as a half-open [Start, End) window in epoch seconds.
type Day struct {
	Start int64
	End   int64
}

// DayOf returns the midnight-to-midnight window containing t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	midnight := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	next := midnight.AddDate(0, 0, 1)
	return Day{Start: midnight.Unix(), End: next.Unix()}
}

// Overlaps reports whether any active period intersects the day.
// An empty list overlaps. Missing bounds default to 0 and maxSafeInteger.
func (d Day) Overlaps(periods []models.ActivePeriod) bool {
	if len(periods) == 0 {
		return true
	}
	for _, p := range periods {
		start := int64(0)
		if p.Start != nil {
			start = *p.Start
		}
		end := maxSafeInteger
		if p.End != nil {
			end = *p.End
		}
		if start < d.End && end > d.Start {
			return true
		}
	}
	return false
}
