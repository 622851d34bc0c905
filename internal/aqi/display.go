package aqi

import (
	"strings"
	"time"

	"github.com/kjstillabower/commute-dashboard/internal/models"
)

// Display is the icon and color pair for a category.
type Display struct {
	Icon  string
	Color string
}

// UnknownDisplay marks readings whose category is not in the table.
var UnknownDisplay = Display{Icon: "aqi-unknown", Color: "#9e9e9e"}

var categoryDisplay = map[string]Display{
	"good":                           {Icon: "aqi-good", Color: "#00e400"},
	"moderate":                       {Icon: "aqi-moderate", Color: "#ffff00"},
	"unhealthy for sensitive groups": {Icon: "aqi-usg", Color: "#ff7e00"},
	"unhealthy":                      {Icon: "aqi-unhealthy", Color: "#ff0000"},
	"very unhealthy":                 {Icon: "aqi-very-unhealthy", Color: "#8f3f97"},
	"hazardous":                      {Icon: "aqi-hazardous", Color: "#7e0023"},
}

// DisplayFor looks up a category case-insensitively.
func DisplayFor(category string) (Display, bool) {
	d, ok := categoryDisplay[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		return UnknownDisplay, false
	}
	return d, true
}

// ClassName is the CSS class of the category circle, e.g. "aqi-circle-very-unhealthy".
func ClassName(category string) string {
	if _, ok := DisplayFor(category); !ok {
		return "aqi-circle-unknown"
	}
	return "aqi-circle-" + strings.Join(strings.Fields(strings.ToLower(category)), "-")
}

// Project maps a proxy reading onto the display record.
func Project(r models.AqiReading) models.AqiData {
	d, _ := DisplayFor(r.Category)
	return models.AqiData{
		AQI:       r.AQI,
		Category:  r.Category,
		Icon:      d.Icon,
		Color:     d.Color,
		ClassName: ClassName(r.Category),
	}
}

// NewReading builds the proxy response for a raw PM2.5 value. AQI is rounded to 0.1
// before the category is chosen.
func NewReading(sensor string, index int, pmField string, pm25 float64, lastSeen *int64, now time.Time) models.AqiReading {
	value := Round1(FromPM25(pm25))
	return models.AqiReading{
		Sensor:      sensor,
		SensorIndex: index,
		PMField:     pmField,
		PM25:        pm25,
		AQI:         value,
		Category:    CategoryFor(value),
		LastSeen:    lastSeen,
		FetchedAt:   now.Unix(),
	}
}
