package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/commute-dashboard/internal/gridpoint"
	"github.com/kjstillabower/commute-dashboard/internal/observability"
)

// GridpointFetcher is the two-step NWS lookup: point metadata, then the gridpoint series.
type GridpointFetcher interface {
	GetPoint(ctx context.Context, lat, lon float64) (gridpoint.PointResponse, error)
	GetGridpoint(ctx context.Context, gridURL string) (*gridpoint.Response, error)
}

// NWSClient talks to api.weather.gov. NWS rejects requests without a User-Agent.
type NWSClient struct {
	get     getter
	baseURL string
}

func NewNWSClient(baseURL, userAgent string, timeout time.Duration) (*NWSClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("nws base url is required")
	}
	if userAgent == "" {
		return nil, fmt.Errorf("nws user agent is required")
	}
	headers := http.Header{
		"Accept":     {"application/json"},
		"User-Agent": {userAgent},
	}
	return &NWSClient{
		get:     newGetter(observability.UpstreamNWS, timeout, headers),
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// GetPoint resolves a coordinate to its gridpoint URL and nearest city.
func (c *NWSClient) GetPoint(ctx context.Context, lat, lon float64) (gridpoint.PointResponse, error) {
	url := fmt.Sprintf("%s/points/%s,%s", c.baseURL, formatCoord(lat), formatCoord(lon))
	body, err := c.get.get(ctx, url)
	if err != nil {
		return gridpoint.PointResponse{}, err
	}
	var point gridpoint.PointResponse
	if err := json.Unmarshal(body, &point); err != nil {
		return gridpoint.PointResponse{}, fmt.Errorf("%w: point: %v", ErrMalformedPayload, err)
	}
	if point.GridURL() == "" {
		return gridpoint.PointResponse{}, fmt.Errorf("%w: point has no forecastGridData", ErrMalformedPayload)
	}
	return point, nil
}

// GetGridpoint fetches the raw forecast time series at gridURL.
func (c *NWSClient) GetGridpoint(ctx context.Context, gridURL string) (*gridpoint.Response, error) {
	body, err := c.get.get(ctx, gridURL)
	if err != nil {
		return nil, err
	}
	var resp gridpoint.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: gridpoint: %v", ErrMalformedPayload, err)
	}
	return &resp, nil
}

// formatCoord trims to four decimals; NWS redirects more precise coordinates.
func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
