package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/commute-dashboard/internal/aqi"
	"github.com/kjstillabower/commute-dashboard/internal/client"
	"github.com/kjstillabower/commute-dashboard/internal/models"
)

var (
	// ErrProxyNotConfigured means no PurpleAir API key was configured.
	ErrProxyNotConfigured = errors.New("server is not configured with PURPLEAIR_API_KEY")
	// ErrMissingSensor means the request named no sensor.
	ErrMissingSensor = errors.New("missing required parameter: sensor")
	// ErrNoNumericValue means the sensor row lacked a numeric PM2.5 value.
	ErrNoNumericValue = errors.New("no numeric PM2.5 value returned for sensor")
)

// SensorReader returns one PurpleAir sensor row. Implemented by client.PurpleAirClient.
type SensorReader interface {
	GetSensorRow(ctx context.Context, sensorIndex int, pmField string, maxAgeMinutes int) (client.SensorRow, error)
}

// ReadingRequest is the AQI proxy query. Missing fields take the aqi package defaults.
type ReadingRequest struct {
	Sensor        string `json:"sensor"`
	PMField       string `json:"pmField"`
	MaxAgeMinutes *int   `json:"maxAgeMinutes"`
}

// AqiProxy computes AQI readings from PurpleAir PM2.5 values.
type AqiProxy struct {
	reader SensorReader
	clock  clockwork.Clock
}

// NewAqiProxy creates an AqiProxy. A nil reader makes every request fail with
// ErrProxyNotConfigured.
func NewAqiProxy(reader SensorReader, clock clockwork.Clock) *AqiProxy {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AqiProxy{reader: reader, clock: clock}
}

// Reading validates req, queries the sensor and converts its PM2.5 value.
// Validation failures wrap client.ErrInvalidRequest.
func (p *AqiProxy) Reading(ctx context.Context, req ReadingRequest) (models.AqiReading, error) {
	if p.reader == nil {
		return models.AqiReading{}, ErrProxyNotConfigured
	}
	sensor := strings.TrimSpace(req.Sensor)
	if sensor == "" {
		return models.AqiReading{}, fmt.Errorf("%w: %w", client.ErrInvalidRequest, ErrMissingSensor)
	}
	index, err := aqi.ResolveSensor(sensor)
	if err != nil {
		return models.AqiReading{}, fmt.Errorf("%w: %w", client.ErrInvalidRequest, err)
	}
	pmField, err := aqi.ValidatePMField(req.PMField)
	if err != nil {
		return models.AqiReading{}, fmt.Errorf("%w: %w", client.ErrInvalidRequest, err)
	}
	maxAge := aqi.DefaultMaxAgeMinutes
	if req.MaxAgeMinutes != nil {
		maxAge = *req.MaxAgeMinutes
	}
	if err := aqi.ValidateMaxAge(maxAge); err != nil {
		return models.AqiReading{}, fmt.Errorf("%w: %w", client.ErrInvalidRequest, err)
	}

	row, err := p.reader.GetSensorRow(ctx, index, pmField, maxAge)
	if err != nil {
		return models.AqiReading{}, err
	}
	pm25, ok := row.Float(pmField)
	if !ok {
		return models.AqiReading{}, fmt.Errorf("%w: %w", client.ErrNoReading, ErrNoNumericValue)
	}
	var lastSeen *int64
	if v, ok := row.Int64("last_seen"); ok {
		lastSeen = &v
	}
	if v, ok := row.Int64("sensor_index"); ok {
		index = int(v)
	}
	return aqi.NewReading(sensor, index, pmField, pm25, lastSeen, p.clock.Now()), nil
}

// GetReading reads sensor with the default PM field and age.
func (p *AqiProxy) GetReading(ctx context.Context, sensor string) (models.AqiReading, error) {
	return p.Reading(ctx, ReadingRequest{Sensor: sensor})
}
