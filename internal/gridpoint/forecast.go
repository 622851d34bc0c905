package gridpoint

import (
	"strings"
	"time"
	"unicode"
)

// Icon keys understood by the dashboard's weather-icon set.
const (
	IconDaySunny          = "wi-day-sunny"
	IconNightClear        = "wi-night-clear"
	IconDayCloudy         = "wi-day-cloudy"
	IconNightCloudy       = "wi-night-alt-cloudy"
	IconDayRain           = "wi-day-rain"
	IconNightRain         = "wi-night-alt-rain"
	IconDayShowers        = "wi-day-showers"
	IconNightShowers      = "wi-night-alt-showers"
	IconDayThunderstorm   = "wi-day-thunderstorm"
	IconNightThunderstorm = "wi-night-alt-thunderstorm"
	IconDayHaze           = "wi-day-haze"
	IconFog               = "wi-fog"
	IconSnow              = "wi-snow"
	IconSleet             = "wi-sleet"
	IconCloud             = "wi-cloud"
	IconCloudy            = "wi-cloudy"
)

// NotAvailable is the forecast text when neither weather nor sky cover has data.
const NotAvailable = "N/A"

// IsDaytime reports whether the local hour of t is in [6, 18).
func IsDaytime(t time.Time, loc *time.Location) bool {
	if loc != nil {
		t = t.In(loc)
	}
	h := t.Hour()
	return h >= 6 && h < 18
}

func pick(day bool, dayIcon, nightIcon string) string {
	if day {
		return dayIcon
	}
	return nightIcon
}

// IconFor maps a weather phenomenon to an icon key by case-insensitive substring,
// in precedence thunder, sleet, snow, rain, showers, fog/haze, cloud, sunny/clear.
func IconFor(phenomenon string, day bool) string {
	p := strings.ToLower(phenomenon)
	switch {
	case strings.Contains(p, "thunder"):
		return pick(day, IconDayThunderstorm, IconNightThunderstorm)
	case strings.Contains(p, "sleet"):
		return IconSleet
	case strings.Contains(p, "snow"):
		return IconSnow
	case strings.Contains(p, "rain"):
		return pick(day, IconDayRain, IconNightRain)
	case strings.Contains(p, "showers"):
		return pick(day, IconDayShowers, IconNightShowers)
	case strings.Contains(p, "fog"):
		return IconFog
	case strings.Contains(p, "haze"):
		return pick(day, IconDayHaze, IconFog)
	case strings.Contains(p, "cloud"):
		return pick(day, IconDayCloudy, IconNightCloudy)
	case strings.Contains(p, "sunny"), strings.Contains(p, "clear"):
		return pick(day, IconDaySunny, IconNightClear)
	default:
		return IconCloudy
	}
}

// SkyCoverForecast maps a sky-cover percentage to forecast text and icon.
func SkyCoverForecast(percent float64, day bool) (text, icon string) {
	switch {
	case percent < 25:
		return "Clear", pick(day, IconDaySunny, IconNightClear)
	case percent < 50:
		return "Partly Cloudy", pick(day, IconDayCloudy, IconNightCloudy)
	case percent < 75:
		return "Mostly Cloudy", IconCloud
	default:
		return "Overcast", IconCloudy
	}
}

// IconColor is the display tint for an icon key, empty when none applies.
func IconColor(icon string) string {
	if strings.Contains(icon, "day") && (strings.Contains(icon, "sunny") || strings.Contains(icon, "clear")) {
		return "#FFD700"
	}
	for _, c := range iconColors {
		if strings.Contains(icon, c.key) {
			return c.color
		}
	}
	return ""
}

var iconColors = []struct{ key, color string }{
	{"sunny", "#FFD700"},
	{"clear", "#E0E0E0"},
	{"rain", "#5CACEE"},
	{"showers", "#5CACEE"},
	{"thunder", "#972EFF"},
	{"snow", "#B0E2FF"},
	{"sleet", "#B0E2FF"},
	{"cloud", "#B0C4DE"},
	{"haze", "#F0E68C"},
	{"fog", "#B0C4DE"},
}

// phenomenon returns the first non-null weather string of a sample.
func phenomenon(s WeatherSample) (string, bool) {
	for _, c := range s.Value {
		if c.Weather != nil && *c.Weather != "" {
			return *c.Weather, true
		}
	}
	return "", false
}

// Humanize turns "rain_showers" into "Rain Showers".
func Humanize(code string) string {
	words := strings.FieldsFunc(code, func(r rune) bool { return r == '_' || r == ' ' })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
