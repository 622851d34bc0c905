// Package service orchestrates the dashboard feeds. Each service fetches from its
// upstream (or the embedded fixtures when the feed's mock flag is on), runs the pure
// display pipeline and keeps the result as a cached snapshot.
package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/commute-dashboard/internal/alerts"
	"github.com/kjstillabower/commute-dashboard/internal/cache"
	"github.com/kjstillabower/commute-dashboard/internal/client"
	"github.com/kjstillabower/commute-dashboard/internal/flags"
	"github.com/kjstillabower/commute-dashboard/internal/models"
	"github.com/kjstillabower/commute-dashboard/internal/observability"
)

// MockSwitch reports whether a feed's mock-data flag is on. Implemented by *flags.Flags.
type MockSwitch interface {
	Enabled(key string) bool
}

// AlertSnapshot is the processed alert list for the configured route.
type AlertSnapshot struct {
	Alerts    []models.Alert `json:"alerts"`
	FetchedAt time.Time      `json:"fetchedAt"`
	Mock      bool           `json:"mock,omitempty"`
	Stale     bool           `json:"stale,omitempty"`
	// Unavailable is set when no snapshot could be loaded; Alerts is then empty.
	Unavailable bool `json:"unavailable,omitempty"`
}

// AlertSink receives a snapshot whenever the processed alert set changes.
type AlertSink interface {
	Publish(ctx context.Context, snap AlertSnapshot) error
}

// AlertServiceOptions configures NewAlertService.
type AlertServiceOptions struct {
	RouteID      string
	Location     *time.Location
	TTL          time.Duration
	PollInterval time.Duration
	FetchTimeout time.Duration
	Clock        clockwork.Clock
	Logger       *zap.Logger
	// Sink is optional.
	Sink AlertSink
}

// AlertService serves the filtered, severity-adjusted alerts for one route.
type AlertService struct {
	live    client.FeedFetcher
	mock    client.FeedFetcher
	flags   MockSwitch
	routeID string
	loc     *time.Location
	clock   clockwork.Clock
	store   *snapshotStore[AlertSnapshot]
	sink    AlertSink
	logger  *zap.Logger

	publishMu     sync.Mutex
	lastPublished string
}

// NewAlertService creates an AlertService. mock replaces live while the useMockAlerts flag is on.
func NewAlertService(live, mock client.FeedFetcher, switches MockSwitch, c cache.Cache, opts AlertServiceOptions) *AlertService {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &AlertService{
		live:    live,
		mock:    mock,
		flags:   switches,
		routeID: opts.RouteID,
		loc:     loc,
		clock:   clock,
		store:   newSnapshotStore[AlertSnapshot]("alerts", c, opts.TTL, opts.PollInterval, opts.FetchTimeout, clock, logger),
		sink:    opts.Sink,
		logger:  logger,
	}
}

// RouteID returns the route the service filters for.
func (s *AlertService) RouteID() string {
	return s.routeID
}

func (s *AlertService) source() (client.FeedFetcher, bool) {
	if s.flags != nil && s.flags.Enabled(flags.MockAlerts) && s.mock != nil {
		return s.mock, true
	}
	return s.live, false
}

func (s *AlertService) fetch(ctx context.Context, src client.FeedFetcher, mock bool) (AlertSnapshot, error) {
	feed, err := src.FetchFeed(ctx)
	if err != nil {
		logFetchFailure(ctx, s.logger, observability.UpstreamTransit, s.routeID, err)
		return AlertSnapshot{}, err
	}
	now := s.clock.Now()
	processed := alerts.Process(feed, s.routeID, alerts.DayOf(now, s.loc))
	if processed == nil {
		processed = []models.Alert{}
	}
	snap := AlertSnapshot{Alerts: processed, FetchedAt: now, Mock: mock}
	observability.SetAlertCounts(countBySeverity(processed))
	if !mock {
		s.publish(ctx, snap)
	}
	return snap, nil
}

// FetchAndProcess fetches the feed and runs filter, adjust and sort. It never fails:
// a failed fetch is logged and yields an empty list.
func (s *AlertService) FetchAndProcess(ctx context.Context) []models.Alert {
	src, mock := s.source()
	snap, err := s.fetch(ctx, src, mock)
	if err != nil {
		return []models.Alert{}
	}
	return snap.Alerts
}

// Refresh replaces the cached snapshot. On failure the prior snapshot is kept.
func (s *AlertService) Refresh(ctx context.Context) error {
	src, mock := s.source()
	_, err := s.store.refresh(ctx, sourceKey(s.routeID, mock), func(ctx context.Context) (AlertSnapshot, error) {
		return s.fetch(ctx, src, mock)
	})
	return err
}

// Current returns the cached snapshot, loading it when missing or expired. When nothing
// can be loaded the snapshot is empty and marked unavailable, and the error is returned.
func (s *AlertService) Current(ctx context.Context) (AlertSnapshot, error) {
	src, mock := s.source()
	snap, stale, err := s.store.current(ctx, sourceKey(s.routeID, mock), func(ctx context.Context) (AlertSnapshot, error) {
		return s.fetch(ctx, src, mock)
	})
	if err != nil {
		return AlertSnapshot{Alerts: []models.Alert{}, Unavailable: true}, err
	}
	snap.Stale = stale
	return snap, nil
}

// Summary condenses the current snapshot into the one-line dashboard status.
func (s *AlertService) Summary(ctx context.Context) (alerts.Summary, error) {
	snap, err := s.Current(ctx)
	return alerts.Summarize(snap.Alerts, alerts.DayOf(s.clock.Now(), s.loc)), err
}

func (s *AlertService) publish(ctx context.Context, snap AlertSnapshot) {
	if s.sink == nil {
		return
	}
	fp := fingerprint(snap.Alerts)

	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	if fp == s.lastPublished {
		return
	}
	if err := s.sink.Publish(ctx, snap); err != nil {
		observability.AlertPublishTotal.WithLabelValues("error").Inc()
		observability.LoggerFrom(ctx, s.logger).Warn("alert publish failed", zap.Error(err))
		return
	}
	observability.AlertPublishTotal.WithLabelValues("success").Inc()
	s.lastPublished = fp
}

// fingerprint identifies an alert set by entity id and displayed severity.
func fingerprint(list []models.Alert) string {
	parts := make([]string, 0, len(list))
	for _, a := range list {
		parts = append(parts, a.EntityID+":"+string(a.Severity()))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func countBySeverity(list []models.Alert) map[string]int {
	counts := map[string]int{
		string(models.SeveritySevere):  0,
		string(models.SeverityWarning): 0,
		string(models.SeverityInfo):    0,
		string(models.SeverityUnknown): 0,
	}
	for _, a := range list {
		counts[string(a.Severity())]++
	}
	return counts
}
