package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Location is a dashboard location: a coordinate for the weather card and a sensor for the AQI card.
type Location struct {
	Key       string  `validate:"required"`
	Name      string  `validate:"required"`
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
	AqiSensor string
}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string `validate:"required"`
	CORSOrigin string

	TimeZone string         `validate:"required"`
	Location *time.Location `validate:"-"`

	RouteID           string `validate:"required"`
	TransitFeedURL    string `validate:"required,url"`
	TransitFeedFormat string `validate:"oneof=json protobuf"`
	TransitTimeout    time.Duration

	NWSURL       string `validate:"required,url"`
	NWSUserAgent string `validate:"required"`
	NWSTimeout   time.Duration

	AqiProxyURL     string `validate:"omitempty,url"`
	AqiTimeout      time.Duration
	PurpleAirURL    string `validate:"required,url"`
	PurpleAirAPIKey string

	Locations []Location `validate:"required,min=1,dive"`

	AlertsPollInterval  time.Duration
	WeatherPollInterval time.Duration
	AqiPollInterval     time.Duration
	VisibilityCheck     time.Duration

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	StaleFor       time.Duration
	CacheBackend   string `validate:"oneof=in_memory memcached"`

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	FlagsDBPath string `validate:"required"`

	KafkaBrokers []string
	KafkaTopic   string

	RateLimitRPS   int `validate:"gt=0"`
	RateLimitBurst int `validate:"gt=0"`

	ShutdownTimeout time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int

	TrackedLocations []string
}

// LocationKeys returns the configured location keys in file order.
func (c *Config) LocationKeys() []string {
	keys := make([]string, len(c.Locations))
	for i, l := range c.Locations {
		keys[i] = l.Key
	}
	return keys
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port       string `yaml:"port"`
		CORSOrigin string `yaml:"cors_origin"`
	} `yaml:"server"`

	Dashboard struct {
		TimeZone string `yaml:"time_zone"`
		RouteID  string `yaml:"route_id"`
	} `yaml:"dashboard"`

	Transit struct {
		URL     string `yaml:"url"`
		Format  string `yaml:"format"`
		Timeout string `yaml:"timeout"`
	} `yaml:"transit"`

	NWS struct {
		URL       string `yaml:"url"`
		UserAgent string `yaml:"user_agent"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"nws"`

	Aqi struct {
		ProxyURL     string `yaml:"proxy_url"`
		PurpleAirURL string `yaml:"purpleair_url"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"aqi"`

	Locations []struct {
		Key       string  `yaml:"key"`
		Name      string  `yaml:"name"`
		Latitude  float64 `yaml:"lat"`
		Longitude float64 `yaml:"lon"`
		AqiSensor string  `yaml:"aqi_sensor"`
	} `yaml:"locations"`

	Polling struct {
		Alerts          string `yaml:"alerts"`
		Weather         string `yaml:"weather"`
		Aqi             string `yaml:"aqi"`
		VisibilityCheck string `yaml:"visibility_check"`
	} `yaml:"polling"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		StaleFor  string `yaml:"stale_for"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Flags struct {
		Path string `yaml:"path"`
	} `yaml:"flags"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	PurpleAirAPIKey string `yaml:"purpleair_api_key"`
}

// Defaults for the dashboard's home setup.
const (
	DefaultTimeZone       = "America/Los_Angeles"
	DefaultRouteID        = "100479"
	DefaultTransitFeedURL = "https://s3.amazonaws.com/st-service-alerts-prod/alerts_pb.json"
	DefaultNWSURL         = "https://api.weather.gov"
	DefaultPurpleAirURL   = "https://api.purpleair.com"
	DefaultUserAgent      = "commute-dashboard (github.com/kjstillabower/commute-dashboard)"
)

var defaultLocations = []Location{
	{Key: "kirkland", Name: "Kirkland", Latitude: 47.6763, Longitude: -122.2063, AqiSensor: "juanita"},
	{Key: "seattle", Name: "Seattle", Latitude: 47.6062, Longitude: -122.3321, AqiSensor: "finn-hill"},
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), an optional .env
// and config/secrets.yaml. PURPLEAIR_API_KEY comes from env or the secrets file; without
// it the AQI proxy answers 500. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{
		TestingMode: false,
	}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.CORSOrigin = strings.TrimSpace(fc.Server.CORSOrigin)

	cfg.TimeZone = stringOr(fc.Dashboard.TimeZone, DefaultTimeZone)
	cfg.RouteID = stringOr(fc.Dashboard.RouteID, DefaultRouteID)

	cfg.TransitFeedURL = stringOr(fc.Transit.URL, DefaultTransitFeedURL)
	cfg.TransitFeedFormat = strings.ToLower(stringOr(fc.Transit.Format, "json"))
	cfg.TransitTimeout = parseDuration(fc.Transit.Timeout, 5*time.Second)

	cfg.NWSURL = stringOr(fc.NWS.URL, DefaultNWSURL)
	cfg.NWSUserAgent = stringOr(fc.NWS.UserAgent, DefaultUserAgent)
	cfg.NWSTimeout = parseDuration(fc.NWS.Timeout, 5*time.Second)

	cfg.AqiProxyURL = strings.TrimSpace(fc.Aqi.ProxyURL)
	cfg.PurpleAirURL = stringOr(fc.Aqi.PurpleAirURL, DefaultPurpleAirURL)
	cfg.AqiTimeout = parseDuration(fc.Aqi.Timeout, 5*time.Second)

	cfg.PurpleAirAPIKey = strings.TrimSpace(os.Getenv("PURPLEAIR_API_KEY"))
	if cfg.PurpleAirAPIKey == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			cfg.PurpleAirAPIKey = strings.TrimSpace(sec.PurpleAirAPIKey)
		}
	}

	for _, l := range fc.Locations {
		cfg.Locations = append(cfg.Locations, Location{
			Key:       strings.ToLower(strings.TrimSpace(l.Key)),
			Name:      l.Name,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
			AqiSensor: strings.TrimSpace(l.AqiSensor),
		})
	}
	if len(cfg.Locations) == 0 {
		cfg.Locations = append([]Location(nil), defaultLocations...)
	}

	cfg.AlertsPollInterval = parseDuration(fc.Polling.Alerts, 60*time.Second)
	cfg.WeatherPollInterval = parseDuration(fc.Polling.Weather, 10*time.Minute)
	cfg.AqiPollInterval = parseDuration(fc.Polling.Aqi, 10*time.Minute)
	cfg.VisibilityCheck = parseDuration(fc.Polling.VisibilityCheck, 15*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.StaleFor = parseDurationOrZero(fc.Cache.StaleFor, time.Hour)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.FlagsDBPath = stringOr(fc.Flags.Path, "data/flags.db")

	if brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokers != "" {
		cfg.KafkaBrokers = splitList(brokers)
	} else {
		cfg.KafkaBrokers = fc.Kafka.Brokers
	}
	cfg.KafkaTopic = stringOr(fc.Kafka.Topic, "commute-alerts")

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.IdleThresholdReqPerMin = fc.Lifecycle.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 1
	}
	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 5*time.Minute)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.TrackedLocations = fc.Metrics.TrackedLocations
	if len(cfg.TrackedLocations) == 0 {
		cfg.TrackedLocations = cfg.LocationKeys()
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func stringOr(s, defaultVal string) string {
	if s = strings.TrimSpace(s); s == "" {
		return defaultVal
	}
	return s
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks struct tags, resolves the time zone and enforces cross-field rules.
// cache.ttl must cover every poll interval.
// RequestTimeout is raised above the slowest upstream timeout if needed.
func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("dashboard.time_zone %q: %w", cfg.TimeZone, err)
	}
	cfg.Location = loc

	seen := make(map[string]bool, len(cfg.Locations))
	for _, l := range cfg.Locations {
		if seen[l.Key] {
			return fmt.Errorf("duplicate location key %q", l.Key)
		}
		seen[l.Key] = true
	}
	if cfg.StaleFor < 0 {
		return fmt.Errorf("cache.stale_for must not be negative")
	}
	// a snapshot expiring between polls would let dashboard reads refetch inside the interval
	if longest := max(cfg.AlertsPollInterval, cfg.WeatherPollInterval, cfg.AqiPollInterval); cfg.CacheTTL < longest {
		return fmt.Errorf("cache.ttl %s is shorter than the longest poll interval %s", cfg.CacheTTL, longest)
	}

	slowest := max(cfg.TransitTimeout, cfg.NWSTimeout, cfg.AqiTimeout)
	if cfg.RequestTimeout <= slowest {
		cfg.RequestTimeout = slowest + time.Second
	}
	return nil
}
