package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/commute-dashboard/internal/models"
	"github.com/kjstillabower/commute-dashboard/internal/observability"
)

// AqiClient reads sensor readings through an AQI proxy exposing GET aqi?sensor=<key>.
type AqiClient struct {
	get     getter
	baseURL string
}

func NewAqiClient(baseURL string, timeout time.Duration) (*AqiClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("aqi proxy url is required")
	}
	return &AqiClient{
		get:     newGetter(observability.UpstreamAqi, timeout, http.Header{"Accept": {"application/json"}}),
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (c *AqiClient) GetReading(ctx context.Context, sensor string) (models.AqiReading, error) {
	body, err := c.get.get(ctx, c.baseURL+"/aqi?sensor="+url.QueryEscape(sensor))
	if err != nil {
		return models.AqiReading{}, err
	}
	var reading models.AqiReading
	if err := json.Unmarshal(body, &reading); err != nil {
		return models.AqiReading{}, fmt.Errorf("%w: aqi: %v", ErrMalformedPayload, err)
	}
	return reading, nil
}

// PurpleAirClient queries the PurpleAir sensors endpoint.
type PurpleAirClient struct {
	get     getter
	baseURL string
}

func NewPurpleAirClient(baseURL, apiKey string, timeout time.Duration) (*PurpleAirClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: PURPLEAIR_API_KEY is required", ErrInvalidAPIKey)
	}
	headers := http.Header{
		"Accept":    {"application/json"},
		"X-API-Key": {apiKey},
	}
	return &PurpleAirClient{
		get:     newGetter(observability.UpstreamPurpleAir, timeout, headers),
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// SensorRow is one PurpleAir data row keyed by field name.
type SensorRow map[string]any

// Float returns a numeric field.
func (r SensorRow) Float(field string) (float64, bool) {
	switch v := r[field].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int64 returns a numeric field truncated to an integer.
func (r SensorRow) Int64(field string) (int64, bool) {
	f, ok := r.Float(field)
	return int64(f), ok
}

type sensorsResponse struct {
	Fields []string `json:"fields"`
	Data   [][]any  `json:"data"`
}

// GetSensorRow returns sensor_index, last_seen and pmField for one sensor.
// ErrNoReading means the sensor had no reading within maxAgeMinutes.
func (c *PurpleAirClient) GetSensorRow(ctx context.Context, sensorIndex int, pmField string, maxAgeMinutes int) (SensorRow, error) {
	params := url.Values{}
	params.Set("fields", strings.Join([]string{"sensor_index", "last_seen", pmField}, ","))
	params.Set("show_only", strconv.Itoa(sensorIndex))
	params.Set("max_age", strconv.Itoa(maxAgeMinutes*60))

	body, err := c.get.get(ctx, c.baseURL+"/v1/sensors?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var resp sensorsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: purpleair: %v", ErrMalformedPayload, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: sensor %d", ErrNoReading, sensorIndex)
	}

	row := resp.Data[0]
	out := make(SensorRow, len(resp.Fields))
	for i, f := range resp.Fields {
		if i < len(row) {
			out[f] = row[i]
		} else {
			out[f] = nil
		}
	}
	return out, nil
}
