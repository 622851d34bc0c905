package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/commute-dashboard/internal/cache"
	"github.com/kjstillabower/commute-dashboard/internal/client"
	"github.com/kjstillabower/commute-dashboard/internal/flags"
	"github.com/kjstillabower/commute-dashboard/internal/gridpoint"
	"github.com/kjstillabower/commute-dashboard/internal/models"
	"github.com/kjstillabower/commute-dashboard/internal/observability"
)

// ErrUnknownLocation is returned for a location key that is not configured.
var ErrUnknownLocation = errors.New("unknown location")

// Location is a configured weather location.
type Location struct {
	Key       string
	Name      string
	Latitude  float64
	Longitude float64
}

// FeedServiceOptions configures the per-location feed services.
type FeedServiceOptions struct {
	Location     *time.Location
	TTL          time.Duration
	// PollInterval is the feed's poll interval. Snapshots stay fresh at least this long
	// and are not refetched sooner.
	PollInterval time.Duration
	FetchTimeout time.Duration
	Clock        clockwork.Clock
	Logger       *zap.Logger
}

func (o FeedServiceOptions) withDefaults() FeedServiceOptions {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

type gridRef struct {
	url  string
	city string
}

// WeatherService serves NWS gridpoint forecasts for the configured locations.
type WeatherService struct {
	live      client.GridpointFetcher
	mock      client.GridpointFetcher
	flags     MockSwitch
	locations map[string]Location
	keys      []string
	loc       *time.Location
	clock     clockwork.Clock
	store     *snapshotStore[models.WeatherData]
	logger    *zap.Logger

	gridMu sync.Mutex
	grids  map[string]gridRef
}

// NewWeatherService creates a WeatherService. mock replaces live while useMockWeather is on.
func NewWeatherService(live, mock client.GridpointFetcher, switches MockSwitch, c cache.Cache, locations []Location, opts FeedServiceOptions) *WeatherService {
	opts = opts.withDefaults()
	s := &WeatherService{
		live:      live,
		mock:      mock,
		flags:     switches,
		locations: make(map[string]Location, len(locations)),
		loc:       opts.Location,
		clock:     opts.Clock,
		store:     newSnapshotStore[models.WeatherData]("weather", c, opts.TTL, opts.PollInterval, opts.FetchTimeout, opts.Clock, opts.Logger),
		logger:    opts.Logger,
		grids:     make(map[string]gridRef),
	}
	for _, l := range locations {
		s.locations[l.Key] = l
		s.keys = append(s.keys, l.Key)
	}
	return s
}

// Keys returns the configured location keys in configuration order.
func (s *WeatherService) Keys() []string {
	return append([]string(nil), s.keys...)
}

func (s *WeatherService) source() (client.GridpointFetcher, bool) {
	if s.flags != nil && s.flags.Enabled(flags.MockWeather) && s.mock != nil {
		return s.mock, true
	}
	return s.live, false
}

// grid resolves the gridpoint URL for a location. Live lookups are remembered since a
// coordinate's grid cell does not change.
func (s *WeatherService) grid(ctx context.Context, src client.GridpointFetcher, mock bool, l Location) (gridRef, error) {
	if !mock {
		s.gridMu.Lock()
		ref, ok := s.grids[l.Key]
		s.gridMu.Unlock()
		if ok {
			return ref, nil
		}
	}
	point, err := src.GetPoint(ctx, l.Latitude, l.Longitude)
	if err != nil {
		return gridRef{}, err
	}
	ref := gridRef{url: point.GridURL(), city: point.City()}
	if ref.city == "" {
		ref.city = l.Name
	}
	if !mock {
		s.gridMu.Lock()
		s.grids[l.Key] = ref
		s.gridMu.Unlock()
	}
	return ref, nil
}

func (s *WeatherService) fetch(ctx context.Context, key string, src client.GridpointFetcher, mock bool) (models.WeatherData, error) {
	l, ok := s.locations[key]
	if !ok {
		return models.WeatherData{}, fmt.Errorf("%w: %q", ErrUnknownLocation, key)
	}
	ref, err := s.grid(ctx, src, mock, l)
	if err != nil {
		logFetchFailure(ctx, s.logger, observability.UpstreamNWS, key, err)
		return models.WeatherData{}, err
	}
	resp, err := src.GetGridpoint(ctx, ref.url)
	if err != nil {
		logFetchFailure(ctx, s.logger, observability.UpstreamNWS, key, err)
		return models.WeatherData{}, err
	}
	now := s.clock.Now()
	data := gridpoint.Extract(resp, ref.city, now, s.loc)
	data.Location = key
	data.FetchedAt = now
	data.Mock = mock
	return data, nil
}

// FetchWeather fetches and extracts the forecast for key. Any failure yields nil.
func (s *WeatherService) FetchWeather(ctx context.Context, key string) *models.WeatherData {
	src, mock := s.source()
	data, err := s.fetch(ctx, key, src, mock)
	if err != nil {
		return nil
	}
	return &data
}

// Refresh replaces the cached snapshot for key. On failure the prior snapshot is kept.
func (s *WeatherService) Refresh(ctx context.Context, key string) error {
	if _, ok := s.locations[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLocation, key)
	}
	src, mock := s.source()
	_, err := s.store.refresh(ctx, sourceKey(key, mock), func(ctx context.Context) (models.WeatherData, error) {
		return s.fetch(ctx, key, src, mock)
	})
	return err
}

// Current returns the cached snapshot for key, loading it when missing or expired and
// falling back to a stale snapshot when the load fails.
func (s *WeatherService) Current(ctx context.Context, key string) (models.WeatherData, error) {
	if _, ok := s.locations[key]; !ok {
		return models.WeatherData{}, fmt.Errorf("%w: %q", ErrUnknownLocation, key)
	}
	src, mock := s.source()
	data, stale, err := s.store.current(ctx, sourceKey(key, mock), func(ctx context.Context) (models.WeatherData, error) {
		return s.fetch(ctx, key, src, mock)
	})
	if err != nil {
		return models.WeatherData{}, err
	}
	data.Stale = stale
	return data, nil
}
