// Package fixtures serves canned upstream payloads for mock-data mode.
// The fixture types satisfy the same interfaces as the live clients.
package fixtures

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/commute-dashboard/internal/gridpoint"
	"github.com/kjstillabower/commute-dashboard/internal/models"
)

//go:embed data/*.json
var files embed.FS

// gridpointBaseDate is the first forecast day in data/gridpoint.json.
var gridpointBaseDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func decode(name string, v any) error {
	raw, err := files.ReadFile("data/" + name)
	if err != nil {
		return fmt.Errorf("fixture %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("fixture %s: %w", name, err)
	}
	return nil
}

// Raw returns the bytes of a fixture file such as "alerts.json".
func Raw(name string) ([]byte, error) {
	return files.ReadFile("data/" + name)
}

// Feed is the canned service-alerts feed.
type Feed struct{}

func (Feed) FetchFeed(ctx context.Context) (*models.FeedMessage, error) {
	var feed models.FeedMessage
	if err := decode("alerts.json", &feed); err != nil {
		return nil, err
	}
	return &feed, nil
}

// Weather is the canned NWS point and gridpoint pair. Gridpoint samples are shifted
// so the first forecast day is the clock's current UTC date.
type Weather struct {
	Clock clockwork.Clock
}

func (w Weather) now() time.Time {
	if w.Clock == nil {
		return time.Now()
	}
	return w.Clock.Now()
}

func (w Weather) GetPoint(ctx context.Context, lat, lon float64) (gridpoint.PointResponse, error) {
	var point gridpoint.PointResponse
	err := decode("point.json", &point)
	return point, err
}

func (w Weather) GetGridpoint(ctx context.Context, gridURL string) (*gridpoint.Response, error) {
	var resp gridpoint.Response
	if err := decode("gridpoint.json", &resp); err != nil {
		return nil, err
	}
	now := w.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	rebase(&resp.Properties, today.Sub(gridpointBaseDate))
	return &resp, nil
}

func rebase(p *gridpoint.Properties, offset time.Duration) {
	for _, s := range []*gridpoint.Series{
		&p.Temperature, &p.MaxTemperature, &p.MinTemperature,
		&p.SkyCover, &p.WindSpeed, &p.ProbabilityOfPrecipitation,
	} {
		for i := range s.Values {
			s.Values[i].ValidTime = shiftValidTime(s.Values[i].ValidTime, offset)
		}
	}
	for i := range p.Weather.Values {
		p.Weather.Values[i].ValidTime = shiftValidTime(p.Weather.Values[i].ValidTime, offset)
	}
}

func shiftValidTime(validTime string, offset time.Duration) string {
	start, dur, ok := strings.Cut(validTime, "/")
	t, err := time.Parse(time.RFC3339, start)
	if err != nil || !ok {
		return validTime
	}
	return t.Add(offset).Format(time.RFC3339) + "/" + dur
}

// Aqi is the canned AQI proxy reading. The requested sensor is echoed back.
type Aqi struct {
	Clock clockwork.Clock
}

func (a Aqi) GetReading(ctx context.Context, sensor string) (models.AqiReading, error) {
	var r models.AqiReading
	if err := decode("aqi.json", &r); err != nil {
		return models.AqiReading{}, err
	}
	r.Sensor = sensor
	if a.Clock != nil {
		r.FetchedAt = a.Clock.Now().Unix()
	}
	return r, nil
}
