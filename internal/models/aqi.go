package models

import "time"

// AqiData is the display projection of one air-quality sensor reading.
type AqiData struct {
	Location  string    `json:"location,omitempty"`
	AQI       float64   `json:"aqi"`
	Category  string    `json:"category"`
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	ClassName string    `json:"className"`
	FetchedAt time.Time `json:"fetchedAt"`
	Mock      bool      `json:"mock,omitempty"`
	Stale     bool      `json:"stale,omitempty"`
}

// AqiReading is the payload served by the AQI proxy endpoint.
type AqiReading struct {
	Sensor      string  `json:"sensor"`
	SensorIndex int     `json:"sensor_index"`
	PMField     string  `json:"pm_field"`
	PM25        float64 `json:"pm25"`
	AQI         float64 `json:"aqi"`
	Category    string  `json:"category"`
	LastSeen    *int64  `json:"last_seen"`
	FetchedAt   int64   `json:"fetched_at"`
}
