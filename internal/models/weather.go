package models

import "time"

// WeatherData is a display snapshot for one location at one instant.
type WeatherData struct {
	Location        string  `json:"location"`
	City            string  `json:"city"`
	Temperature     float64 `json:"temperature"`
	TemperatureUnit string  `json:"temperatureUnit"`
	ShortForecast   string  `json:"shortForecast"`
	Icon            string  `json:"icon"`
	IconColor       string  `json:"iconColor,omitempty"`

	MinTemperature *float64 `json:"minTemperature,omitempty"`
	MaxTemperature *float64 `json:"maxTemperature,omitempty"`

	AverageWindSpeed *float64 `json:"averageWindSpeed,omitempty"`
	MaxWindSpeed     *float64 `json:"maxWindSpeed,omitempty"`
	WindSpeedUnit    string   `json:"windSpeedUnit,omitempty"`

	ProbabilityOfPrecipitation *float64   `json:"probabilityOfPrecipitation,omitempty"`
	PrecipitationType          string     `json:"precipitationType,omitempty"`
	PrecipitationStartTime     *time.Time `json:"precipitationStartTime,omitempty"`

	FetchedAt time.Time `json:"fetchedAt"`
	Mock      bool      `json:"mock,omitempty"`  // built from bundled fixtures
	Stale     bool      `json:"stale,omitempty"` // served from a snapshot older than the cache TTL
}
