// Package idle tracks dashboard viewer activity. A view is considered visible while
// dashboard reads keep arriving; pollers pause their upstream fetches otherwise.
package idle

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var defaultTracker Tracker

// RecordRequest records a dashboard read. Call from handlers for traffic that counts as viewer activity.
func RecordRequest() {
	defaultTracker.RecordRequest()
}

// RequestCount returns the number of requests within the given window ending at now.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// Visible reports whether any request arrived within window.
func Visible(window time.Duration) bool {
	return defaultTracker.RequestCount(window) > 0
}

// Reset clears all recorded requests. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains a sliding window of request timestamps. The zero value uses the real clock.
type Tracker struct {
	mu    sync.Mutex
	times []time.Time
	clock clockwork.Clock
}

// NewTracker creates a Tracker on clock.
func NewTracker(clock clockwork.Clock) *Tracker {
	return &Tracker{clock: clock}
}

func (t *Tracker) now() time.Time {
	if t.clock == nil {
		return time.Now()
	}
	return t.clock.Now()
}

// RecordRequest records a request at the current time.
func (t *Tracker) RecordRequest() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.times = append(t.times, now)
	t.pruneLocked(now)
}

// RequestCount returns the number of requests within the given window ending at now.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	cutoff := now.Add(-window)
	t.pruneLocked(now)
	n := 0
	for _, ts := range t.times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// Reset clears all recorded requests.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.times = nil
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-30 * time.Minute)
	i := 0
	for ; i < len(t.times) && t.times[i].Before(cutoff); i++ {
	}
	if i > 0 {
		t.times = append(t.times[:0], t.times[i:]...)
	}
}

// Watch samples t every interval and calls onChange when visibility over window flips.
// The first sample is always reported. Blocks until ctx is done.
func (t *Tracker) Watch(ctx context.Context, clock clockwork.Clock, window, interval time.Duration, onChange func(visible bool)) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	last := t.RequestCount(window) > 0
	onChange(last)

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if v := t.RequestCount(window) > 0; v != last {
				last = v
				onChange(v)
			}
		}
	}
}

// Watch runs Tracker.Watch on the package-level tracker.
func Watch(ctx context.Context, clock clockwork.Clock, window, interval time.Duration, onChange func(visible bool)) {
	defaultTracker.Watch(ctx, clock, window, interval, onChange)
}
