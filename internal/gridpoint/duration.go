package gridpoint

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// durationPattern covers the subset of ISO 8601 durations NWS emits.
// The T designator is required and the match is not anchored.
var durationPattern = regexp.MustCompile(`P(?:(\d+)D)?T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)

// ParseDuration converts "P1DT2H30M" style durations. Absent components are zero;
// an empty or non-matching string yields 0, as does a total beyond time.Duration's range.
func ParseDuration(s string) time.Duration {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	var total time.Duration
	for i, unit := range durationUnits {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil || n > int64(math.MaxInt64-total)/int64(unit) {
			return 0
		}
		total += time.Duration(n) * unit
	}
	return total
}

var durationUnits = [...]time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}

// Interval is a half-open validity window [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in the window. The start is inclusive.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// ParseValidTime splits "<start>/<duration>" into an Interval.
func ParseValidTime(validTime string) (Interval, error) {
	startStr, durStr, _ := strings.Cut(validTime, "/")
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid validTime %q: %w", validTime, err)
	}
	return Interval{Start: start, End: start.Add(ParseDuration(durStr))}, nil
}
