// Package aqi converts PM2.5 readings to the US EPA air quality index and
// projects readings onto dashboard display records.
package aqi

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EPA category names.
const (
	CategoryGood                        = "Good"
	CategoryModerate                    = "Moderate"
	CategoryUnhealthyForSensitiveGroups = "Unhealthy for Sensitive Groups"
	CategoryUnhealthy                   = "Unhealthy"
	CategoryVeryUnhealthy               = "Very Unhealthy"
	CategoryHazardous                   = "Hazardous"
)

// PM2.5 field variants accepted by the proxy.
const (
	PMFieldAlt = "pm2.5_alt"
	PMFieldAtm = "pm2.5_atm"

	DefaultPMField       = PMFieldAlt
	DefaultMaxAgeMinutes = 60
)

var (
	ErrUnknownSensor  = errors.New("unrecognized sensor identifier")
	ErrInvalidPMField = errors.New("pmField must be 'pm2.5_alt' or 'pm2.5_atm'")
	ErrInvalidMaxAge  = errors.New("maxAgeMinutes must be >= 0")
)

type breakpoint struct {
	pmLow, pmHigh   float64
	aqiLow, aqiHigh float64
}

var pm25Breakpoints = []breakpoint{
	{0.0, 12.0, 0, 50},
	{12.0, 35.4, 50, 100},
	{35.4, 55.4, 100, 150},
	{55.4, 150.4, 150, 200},
	{150.4, 250.4, 200, 300},
	{250.4, 350.4, 300, 400},
	{350.4, 500.4, 400, 500},
}

func lerp(out0, out1, in0, in1, v float64) float64 {
	x := math.Min(math.Max(v, in0), in1)
	return out0 + ((x-in0)/(in1-in0))*(out1-out0)
}

// FromPM25 returns the unrounded AQI for a PM2.5 concentration in µg/m³.
// Negative readings give 0 and readings above the top breakpoint give 501.
func FromPM25(pm25 float64) float64 {
	if pm25 < 0 {
		return 0
	}
	for _, bp := range pm25Breakpoints {
		if pm25 <= bp.pmHigh {
			return lerp(bp.aqiLow, bp.aqiHigh, bp.pmLow, bp.pmHigh, pm25)
		}
	}
	return 501
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// CategoryFor returns the EPA category for an AQI value.
func CategoryFor(aqi float64) string {
	switch {
	case aqi <= 50:
		return CategoryGood
	case aqi <= 100:
		return CategoryModerate
	case aqi <= 150:
		return CategoryUnhealthyForSensitiveGroups
	case aqi <= 200:
		return CategoryUnhealthy
	case aqi <= 300:
		return CategoryVeryUnhealthy
	default:
		return CategoryHazardous
	}
}

// ValidatePMField accepts "" (meaning the default) or one of the two known fields.
func ValidatePMField(field string) (string, error) {
	switch field {
	case "":
		return DefaultPMField, nil
	case PMFieldAlt, PMFieldAtm:
		return field, nil
	default:
		return "", ErrInvalidPMField
	}
}

// ValidateMaxAge rejects negative ages.
func ValidateMaxAge(minutes int) error {
	if minutes < 0 {
		return ErrInvalidMaxAge
	}
	return nil
}

// SensorNames maps friendly sensor names to PurpleAir sensor indexes.
var SensorNames = map[string]int{
	"finn-hill":     156415,
	"juanita":       102160,
	"sunnyvale":     68619,
	"san-francisco": 36529,
	"adelaide":      95971,
	"london":        146146,
	"des-moines":    115301,
	"santa-monica":  92539,
	"bengaluru":     42325,
	"san-diego":     78279,
	"san-rafael":    63895,
	"fremont":       86205,
	"melbourne":     46649,
	"sydney":        104206,
}

// ResolveSensor accepts a friendly name or a numeric sensor index.
func ResolveSensor(sensor string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(sensor))
	if idx, ok := SensorNames[s]; ok {
		return idx, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSensor, sensor)
	}
	return n, nil
}
