package gridpoint

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func str(s string) *string { return &s }

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"PT1H", 3_600_000 * time.Millisecond},
		{"P1DT2H30M", 95_400_000 * time.Millisecond},
		{"PT45S", 45 * time.Second},
		{"P7DT4H", 7*24*time.Hour + 4*time.Hour},
		{"PT2H15M10S", 2*time.Hour + 15*time.Minute + 10*time.Second},
		{"", 0},
		{"not-a-duration", 0},
		// a days-only duration has no T designator and does not match
		{"P1D", 0},
		{"P106751DT23H", 106751*24*time.Hour + 23*time.Hour},
		// totals past the time.Duration range are rejected rather than wrapped
		{"P110000DT0H", 0},
		{"P106751DT24H", 0},
		{"PT99999999999999999999S", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDuration(tt.in))
		})
	}
}

func TestParseValidTime(t *testing.T) {
	iv, err := ParseValidTime("2024-01-01T06:00:00+00:00/PT3H")
	require.NoError(t, err)
	assert.True(t, iv.Start.Equal(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)))
	assert.Equal(t, 3*time.Hour, iv.End.Sub(iv.Start))

	iv, err = ParseValidTime("2024-01-01T06:00:00+00:00/P110000DT0H")
	require.NoError(t, err)
	assert.False(t, iv.End.Before(iv.Start), "overflowing duration produced an end before the start")

	_, err = ParseValidTime("yesterday/PT1H")
	assert.Error(t, err)
}

func TestSampleAt_Boundaries(t *testing.T) {
	values := []Sample{
		{ValidTime: "2024-01-01T00:00:00Z/PT1H", Value: f(1)},
		{ValidTime: "2024-01-01T01:00:00Z/PT1H", Value: f(2)},
		{ValidTime: "2024-01-01T01:00:00Z/PT2H", Value: f(3)},
	}

	s, ok := SampleAt(values, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 2.0, *s.Value, "start is inclusive, end exclusive, first match wins")

	s, ok = SampleAt(values, time.Date(2024, 1, 1, 0, 59, 59, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 1.0, *s.Value)

	_, ok = SampleAt(values, time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestCurrentTemperature_Celsius(t *testing.T) {
	series := Series{
		UOM:    uomCelsius,
		Values: []Sample{{ValidTime: "2024-01-01T00:00:00Z/PT1H", Value: f(0)}},
	}
	got := CurrentTemperature(series, time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC))
	require.NotNil(t, got)
	assert.Equal(t, 32.0, *got)

	series.Values[0].Value = nil
	assert.Nil(t, CurrentTemperature(series, time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)))
}

func TestDailyAggregates(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	temps := Series{UOM: uomCelsius, Values: []Sample{
		{ValidTime: "2023-12-31T20:00:00Z/PT6H", Value: f(-20)},
		{ValidTime: "2024-01-01T02:00:00Z/PT6H", Value: f(10)},
		{ValidTime: "2024-01-01T08:00:00Z/PT6H", Value: nil},
		{ValidTime: "2024-01-01T14:00:00Z/PT6H", Value: f(0)},
		{ValidTime: "2024-01-02T02:00:00Z/PT6H", Value: f(40)},
	}}
	assert.Equal(t, 32.0, *DailyMin(temps, at))
	assert.Equal(t, 50.0, *DailyMax(temps, at))

	wind := Series{UOM: "wmoUnit:km_h-1", Values: []Sample{
		{ValidTime: "2024-01-01T00:00:00Z/PT1H", Value: f(10)},
		{ValidTime: "2024-01-01T01:00:00Z/PT1H", Value: f(20)},
		{ValidTime: "2024-01-02T00:00:00Z/PT1H", Value: f(90)},
	}}
	avg, peak := DailyWind(wind, at)
	assert.Equal(t, 15.0, *avg)
	assert.Equal(t, 20.0, *peak)
	assert.Equal(t, "km/h", WindUnit(wind.UOM))

	avg, peak = DailyWind(Series{}, at)
	assert.Nil(t, avg)
	assert.Nil(t, peak)
	assert.Nil(t, DailyMin(Series{}, at))
}

func TestIconFor(t *testing.T) {
	tests := []struct {
		phenomenon string
		day        bool
		want       string
	}{
		{"thunderstorms", true, IconDayThunderstorm},
		{"thunderstorms", false, IconNightThunderstorm},
		{"snow_showers", true, IconSnow},
		{"sleet", false, IconSleet},
		{"rain_showers", true, IconDayRain},
		{"rain", false, IconNightRain},
		{"showers", true, IconDayShowers},
		{"fog", true, IconFog},
		{"Haze", true, IconDayHaze},
		{"haze", false, IconFog},
		{"Mostly Cloudy", false, IconNightCloudy},
		{"Sunny", true, IconDaySunny},
		{"clear", false, IconNightClear},
		{"smoke", true, IconCloudy},
	}
	for _, tt := range tests {
		t.Run(tt.phenomenon, func(t *testing.T) {
			assert.Equal(t, tt.want, IconFor(tt.phenomenon, tt.day))
		})
	}
}

func TestSkyCoverForecast(t *testing.T) {
	text, icon := SkyCoverForecast(10, true)
	assert.Equal(t, "Clear", text)
	assert.Equal(t, IconDaySunny, icon)

	text, icon = SkyCoverForecast(25, false)
	assert.Equal(t, "Partly Cloudy", text)
	assert.Equal(t, IconNightCloudy, icon)

	text, icon = SkyCoverForecast(74.9, true)
	assert.Equal(t, "Mostly Cloudy", text)
	assert.Equal(t, IconCloud, icon)

	text, icon = SkyCoverForecast(100, true)
	assert.Equal(t, "Overcast", text)
	assert.Equal(t, IconCloudy, icon)
}

func TestIconColor(t *testing.T) {
	assert.Equal(t, "#FFD700", IconColor(IconDaySunny))
	assert.Equal(t, "#E0E0E0", IconColor(IconNightClear))
	assert.Equal(t, "#972EFF", IconColor(IconNightThunderstorm))
	assert.Equal(t, "", IconColor(""))
}

func TestForecast_Fallbacks(t *testing.T) {
	at := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)

	p := Properties{
		Weather: WeatherSeries{Values: []WeatherSample{
			{ValidTime: "2024-01-01T18:00:00Z/PT6H", Value: []Condition{{Weather: nil}, {Weather: str("rain_showers")}}},
		}},
		SkyCover: Series{Values: []Sample{{ValidTime: "2024-01-01T18:00:00Z/PT6H", Value: f(90)}}},
	}
	text, icon := Forecast(p, at, time.UTC)
	assert.Equal(t, "Rain Showers", text)
	assert.Equal(t, IconNightRain, icon)

	p.Weather.Values[0].Value = []Condition{{Weather: nil}}
	text, icon = Forecast(p, at, time.UTC)
	assert.Equal(t, "Overcast", text)
	assert.Equal(t, IconCloudy, icon)

	text, icon = Forecast(Properties{}, at, time.UTC)
	assert.Equal(t, NotAvailable, text)
	assert.Empty(t, icon)
}

func TestIsDaytime_Location(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	// 20:00 UTC is noon in Los Angeles in January.
	at := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	assert.True(t, IsDaytime(at, la))
	assert.False(t, IsDaytime(at, time.UTC))
}

const gridpointJSON = `{
  "properties": {
    "temperature": {"uom": "wmoUnit:degC", "values": [
      {"validTime": "2024-01-01T00:00:00+00:00/PT1H", "value": 0},
      {"validTime": "2024-01-01T01:00:00+00:00/PT1H", "value": 5}
    ]},
    "maxTemperature": {"uom": "wmoUnit:degC", "values": [
      {"validTime": "2024-01-01T14:00:00+00:00/PT12H", "value": 10}
    ]},
    "minTemperature": {"uom": "wmoUnit:degC", "values": [
      {"validTime": "2024-01-01T02:00:00+00:00/PT12H", "value": -5}
    ]},
    "skyCover": {"uom": "wmoUnit:percent", "values": [
      {"validTime": "2024-01-01T00:00:00+00:00/PT6H", "value": 80}
    ]},
    "windSpeed": {"uom": "wmoUnit:km_h-1", "values": [
      {"validTime": "2024-01-01T00:00:00+00:00/PT12H", "value": 8},
      {"validTime": "2024-01-01T12:00:00+00:00/PT12H", "value": 12}
    ]},
    "probabilityOfPrecipitation": {"uom": "wmoUnit:percent", "values": [
      {"validTime": "2024-01-01T00:00:00+00:00/PT3H", "value": 0},
      {"validTime": "2024-01-01T03:00:00+00:00/PT3H", "value": 40},
      {"validTime": "2024-01-01T06:00:00+00:00/PT3H", "value": 70}
    ]},
    "weather": {"values": [
      {"validTime": "2024-01-01T00:00:00+00:00/PT3H", "value": [{"coverage": null, "weather": null, "intensity": null, "visibility": {"unitCode": "wmoUnit:km", "value": null}, "attributes": []}]},
      {"validTime": "2024-01-01T03:00:00+00:00/PT6H", "value": [{"coverage": "chance", "weather": "snow_showers", "intensity": "light", "visibility": {"unitCode": "wmoUnit:km", "value": null}, "attributes": []}]}
    ]}
  }
}`

func TestExtract(t *testing.T) {
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(gridpointJSON), &resp))

	at := time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)
	got := Extract(&resp, "Kirkland", at, time.UTC)

	assert.Equal(t, "Kirkland", got.City)
	assert.Equal(t, 32.0, got.Temperature)
	assert.Equal(t, "F", got.TemperatureUnit)
	// null weather phenomenon falls back to sky cover
	assert.Equal(t, "Overcast", got.ShortForecast)
	assert.Equal(t, IconCloudy, got.Icon)
	assert.Equal(t, 23.0, *got.MinTemperature)
	assert.Equal(t, 50.0, *got.MaxTemperature)
	assert.Equal(t, 10.0, *got.AverageWindSpeed)
	assert.Equal(t, 12.0, *got.MaxWindSpeed)
	assert.Equal(t, "km/h", got.WindSpeedUnit)

	require.NotNil(t, got.ProbabilityOfPrecipitation)
	assert.Equal(t, 40.0, *got.ProbabilityOfPrecipitation)
	assert.Equal(t, "Snow Showers", got.PrecipitationType)
	require.NotNil(t, got.PrecipitationStartTime)
	assert.True(t, got.PrecipitationStartTime.Equal(time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)))
}

func TestExtract_MissingData(t *testing.T) {
	got := Extract(&Response{}, "Seattle", time.Now(), time.UTC)
	assert.Equal(t, 0.0, got.Temperature)
	assert.Equal(t, NotAvailable, got.ShortForecast)
	assert.Nil(t, got.MinTemperature)
	assert.Nil(t, got.ProbabilityOfPrecipitation)
	assert.Nil(t, got.PrecipitationStartTime)

	got = Extract(nil, "Seattle", time.Now(), time.UTC)
	assert.Equal(t, "Seattle", got.City)
}
