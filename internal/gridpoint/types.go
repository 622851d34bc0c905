// Package gridpoint extracts point-in-time and daily values from NWS gridpoint forecasts.
package gridpoint

import "time"

// Sample is one numeric gridpoint value. Value is nil when NWS reports null.
type Sample struct {
	ValidTime string   `json:"validTime"`
	Value     *float64 `json:"value"`
}

// Series is a named numeric time series with its unit of measure.
type Series struct {
	UOM    string   `json:"uom"`
	Values []Sample `json:"values"`
}

type Visibility struct {
	UnitCode string   `json:"unitCode"`
	Value    *float64 `json:"value"`
}

// Condition is one categorical weather phenomenon such as "rain_showers".
type Condition struct {
	Coverage   *string    `json:"coverage"`
	Weather    *string    `json:"weather"`
	Intensity  *string    `json:"intensity"`
	Visibility Visibility `json:"visibility"`
	Attributes []string   `json:"attributes"`
}

type WeatherSample struct {
	ValidTime string      `json:"validTime"`
	Value     []Condition `json:"value"`
}

type WeatherSeries struct {
	Values []WeatherSample `json:"values"`
}

type Properties struct {
	UpdateTime                 string        `json:"updateTime,omitempty"`
	Temperature                Series        `json:"temperature"`
	MaxTemperature             Series        `json:"maxTemperature"`
	MinTemperature             Series        `json:"minTemperature"`
	SkyCover                   Series        `json:"skyCover"`
	WindSpeed                  Series        `json:"windSpeed"`
	ProbabilityOfPrecipitation Series        `json:"probabilityOfPrecipitation"`
	Weather                    WeatherSeries `json:"weather"`
}

// Response is the body of GET {forecastGridData}.
type Response struct {
	Properties Properties `json:"properties"`
}

// PointResponse is the body of GET /points/{lat},{lon}.
type PointResponse struct {
	Properties struct {
		ForecastGridData string `json:"forecastGridData"`
		RelativeLocation struct {
			Properties struct {
				City  string `json:"city"`
				State string `json:"state"`
			} `json:"properties"`
		} `json:"relativeLocation"`
	} `json:"properties"`
}

func (p PointResponse) City() string {
	return p.Properties.RelativeLocation.Properties.City
}

func (p PointResponse) GridURL() string {
	return p.Properties.ForecastGridData
}

// SampleAt returns the first sample whose interval contains at.
// Samples with an unparseable validTime are skipped.
func SampleAt(values []Sample, at time.Time) (Sample, bool) {
	for _, s := range values {
		iv, err := ParseValidTime(s.ValidTime)
		if err != nil {
			continue
		}
		if iv.Contains(at) {
			return s, true
		}
	}
	return Sample{}, false
}

// WeatherAt is SampleAt for the categorical weather series.
func WeatherAt(values []WeatherSample, at time.Time) (WeatherSample, bool) {
	for _, s := range values {
		iv, err := ParseValidTime(s.ValidTime)
		if err != nil {
			continue
		}
		if iv.Contains(at) {
			return s, true
		}
	}
	return WeatherSample{}, false
}

// isoDate is the UTC calendar date used to group samples into a day.
func isoDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// sameDate calls fn for every non-null sample whose interval starts on at's date.
func sameDate(values []Sample, at time.Time, fn func(start time.Time, v float64)) {
	day := isoDate(at)
	for _, s := range values {
		if s.Value == nil {
			continue
		}
		iv, err := ParseValidTime(s.ValidTime)
		if err != nil || isoDate(iv.Start) != day {
			continue
		}
		fn(iv.Start, *s.Value)
	}
}
