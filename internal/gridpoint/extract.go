package gridpoint

import (
	"strings"
	"time"

	"github.com/kjstillabower/commute-dashboard/internal/models"
)

const uomCelsius = "wmoUnit:degC"

// CelsiusToFahrenheit converts with F = C*9/5+32.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// toFahrenheit returns a converter for the series unit. Series without a unit are Celsius.
func toFahrenheit(s Series) func(float64) float64 {
	if s.UOM == "" || s.UOM == uomCelsius {
		return CelsiusToFahrenheit
	}
	return func(v float64) float64 { return v }
}

// CurrentTemperature returns the temperature in effect at "at", in Fahrenheit.
func CurrentTemperature(s Series, at time.Time) *float64 {
	sample, ok := SampleAt(s.Values, at)
	if !ok || sample.Value == nil {
		return nil
	}
	f := toFahrenheit(s)(*sample.Value)
	return &f
}

// DailyMin is the smallest value starting on at's date, converted to Fahrenheit per sample.
func DailyMin(s Series, at time.Time) *float64 {
	conv := toFahrenheit(s)
	var out *float64
	sameDate(s.Values, at, func(_ time.Time, v float64) {
		f := conv(v)
		if out == nil || f < *out {
			out = &f
		}
	})
	return out
}

// DailyMax is DailyMin's counterpart.
func DailyMax(s Series, at time.Time) *float64 {
	conv := toFahrenheit(s)
	var out *float64
	sameDate(s.Values, at, func(_ time.Time, v float64) {
		f := conv(v)
		if out == nil || f > *out {
			out = &f
		}
	})
	return out
}

// DailyWind returns the average and maximum wind speed on at's date, in the series's native unit.
func DailyWind(s Series, at time.Time) (avg, peak *float64) {
	var sum float64
	var n int
	sameDate(s.Values, at, func(_ time.Time, v float64) {
		sum += v
		n++
		if peak == nil || v > *peak {
			m := v
			peak = &m
		}
	})
	if n > 0 {
		a := sum / float64(n)
		avg = &a
	}
	return avg, peak
}

// WindUnit renders an NWS unit code such as "wmoUnit:km_h-1" for display.
func WindUnit(uom string) string {
	switch strings.TrimPrefix(uom, "wmoUnit:") {
	case "":
		return ""
	case "km_h-1":
		return "km/h"
	case "m_s-1":
		return "m/s"
	case "kn":
		return "kt"
	default:
		return strings.TrimPrefix(uom, "wmoUnit:")
	}
}

// Forecast picks the forecast text and icon for "at". The weather series wins;
// sky cover is the fallback.
func Forecast(p Properties, at time.Time, loc *time.Location) (text, icon string) {
	day := IsDaytime(at, loc)
	if ws, ok := WeatherAt(p.Weather.Values, at); ok {
		if ph, ok := phenomenon(ws); ok {
			return Humanize(ph), IconFor(ph, day)
		}
	}
	if s, ok := SampleAt(p.SkyCover.Values, at); ok && s.Value != nil {
		return SkyCoverForecast(*s.Value, day)
	}
	return NotAvailable, ""
}

// Precipitation describes the first chance of precipitation on a day.
type Precipitation struct {
	Probability float64
	Type        string
	Start       time.Time
}

// FirstPrecipitation scans the probability series for the first sample on at's date
// with a value above zero. The type is the weather phenomenon active at that sample's start.
func FirstPrecipitation(p Properties, at time.Time) (Precipitation, bool) {
	day := isoDate(at)
	for _, s := range p.ProbabilityOfPrecipitation.Values {
		if s.Value == nil || *s.Value <= 0 {
			continue
		}
		iv, err := ParseValidTime(s.ValidTime)
		if err != nil || isoDate(iv.Start) != day {
			continue
		}
		out := Precipitation{Probability: *s.Value, Start: iv.Start}
		if ws, ok := WeatherAt(p.Weather.Values, iv.Start); ok {
			if ph, ok := phenomenon(ws); ok {
				out.Type = Humanize(ph)
			}
		}
		return out, true
	}
	return Precipitation{}, false
}

// Extract assembles the display record for city at the target instant.
// A missing current temperature is reported as 0.
func Extract(resp *Response, city string, at time.Time, loc *time.Location) models.WeatherData {
	data := models.WeatherData{
		City:            city,
		TemperatureUnit: "F",
		ShortForecast:   NotAvailable,
	}
	if resp == nil {
		return data
	}
	p := resp.Properties

	if t := CurrentTemperature(p.Temperature, at); t != nil {
		data.Temperature = *t
	}
	data.ShortForecast, data.Icon = Forecast(p, at, loc)
	data.IconColor = IconColor(data.Icon)
	data.MinTemperature = DailyMin(p.MinTemperature, at)
	data.MaxTemperature = DailyMax(p.MaxTemperature, at)
	data.AverageWindSpeed, data.MaxWindSpeed = DailyWind(p.WindSpeed, at)
	if data.AverageWindSpeed != nil {
		data.WindSpeedUnit = WindUnit(p.WindSpeed.UOM)
	}

	if precip, ok := FirstPrecipitation(p, at); ok {
		prob := precip.Probability
		start := precip.Start
		data.ProbabilityOfPrecipitation = &prob
		data.PrecipitationType = precip.Type
		data.PrecipitationStartTime = &start
	} else if s, ok := SampleAt(p.ProbabilityOfPrecipitation.Values, at); ok && s.Value != nil {
		prob := *s.Value
		data.ProbabilityOfPrecipitation = &prob
	}
	return data
}
