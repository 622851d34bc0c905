package service

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/commute-dashboard/internal/aqi"
	"github.com/kjstillabower/commute-dashboard/internal/cache"
	"github.com/kjstillabower/commute-dashboard/internal/flags"
	"github.com/kjstillabower/commute-dashboard/internal/models"
	"github.com/kjstillabower/commute-dashboard/internal/observability"
)

// AqiSource returns a sensor reading. Implemented by client.AqiClient, AqiProxy and
// fixtures.Aqi.
type AqiSource interface {
	GetReading(ctx context.Context, sensor string) (models.AqiReading, error)
}

// AqiService serves AQI display records for location keys mapped to sensor keys.
type AqiService struct {
	live     AqiSource
	mock     AqiSource
	flags    MockSwitch
	upstream string
	sensors  map[string]string
	keys     []string
	clock    clockwork.Clock
	store    *snapshotStore[models.AqiData]
	logger   *zap.Logger
}

// NewAqiService creates an AqiService. sensors maps location key to sensor key, in
// keys order. upstream labels failure metrics (aqi or purpleair).
func NewAqiService(live, mock AqiSource, switches MockSwitch, c cache.Cache, upstream string, keys []string, sensors map[string]string, opts FeedServiceOptions) *AqiService {
	opts = opts.withDefaults()
	if upstream == "" {
		upstream = observability.UpstreamAqi
	}
	return &AqiService{
		live:     live,
		mock:     mock,
		flags:    switches,
		upstream: upstream,
		sensors:  sensors,
		keys:     append([]string(nil), keys...),
		clock:    opts.Clock,
		store:    newSnapshotStore[models.AqiData]("aqi", c, opts.TTL, opts.PollInterval, opts.FetchTimeout, opts.Clock, opts.Logger),
		logger:   opts.Logger,
	}
}

// Keys returns the configured location keys.
func (s *AqiService) Keys() []string {
	return append([]string(nil), s.keys...)
}

func (s *AqiService) source() (AqiSource, bool) {
	if s.flags != nil && s.flags.Enabled(flags.MockAqi) && s.mock != nil {
		return s.mock, true
	}
	return s.live, false
}

func (s *AqiService) sensor(key string) (string, error) {
	sensor, ok := s.sensors[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLocation, key)
	}
	return sensor, nil
}

func (s *AqiService) fetch(ctx context.Context, key string, src AqiSource, mock bool) (models.AqiData, error) {
	sensor, err := s.sensor(key)
	if err != nil {
		return models.AqiData{}, err
	}
	reading, err := src.GetReading(ctx, sensor)
	if err != nil {
		logFetchFailure(ctx, s.logger, s.upstream, key, err)
		return models.AqiData{}, err
	}
	data := aqi.Project(reading)
	data.Location = key
	data.FetchedAt = s.clock.Now()
	data.Mock = mock
	return data, nil
}

// FetchAqi fetches and projects the reading for key. Any failure yields nil.
func (s *AqiService) FetchAqi(ctx context.Context, key string) *models.AqiData {
	src, mock := s.source()
	data, err := s.fetch(ctx, key, src, mock)
	if err != nil {
		return nil
	}
	return &data
}

// Refresh replaces the cached snapshot for key. On failure the prior snapshot is kept.
func (s *AqiService) Refresh(ctx context.Context, key string) error {
	if _, err := s.sensor(key); err != nil {
		return err
	}
	src, mock := s.source()
	_, err := s.store.refresh(ctx, sourceKey(key, mock), func(ctx context.Context) (models.AqiData, error) {
		return s.fetch(ctx, key, src, mock)
	})
	return err
}

// Current returns the cached snapshot for key with the same fallback as WeatherService.Current.
func (s *AqiService) Current(ctx context.Context, key string) (models.AqiData, error) {
	if _, err := s.sensor(key); err != nil {
		return models.AqiData{}, err
	}
	src, mock := s.source()
	data, stale, err := s.store.current(ctx, sourceKey(key, mock), func(ctx context.Context) (models.AqiData, error) {
		return s.fetch(ctx, key, src, mock)
	})
	if err != nil {
		return models.AqiData{}, err
	}
	data.Stale = stale
	return data, nil
}
