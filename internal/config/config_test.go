package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "PURPLEAIR_API_KEY", "CACHE_BACKEND", "MEMCACHED_ADDRS", "KAFKA_BROKERS"} {
		t.Setenv(k, "")
	}
}

func loadFrom(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, yaml)
	t.Chdir(dir)
	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadFrom(t, "server:\n  port: \"9090\"\n")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.RouteID != DefaultRouteID {
		t.Errorf("RouteID = %q, want %q", cfg.RouteID, DefaultRouteID)
	}
	if cfg.Location == nil || cfg.Location.String() != DefaultTimeZone {
		t.Errorf("Location = %v, want %s", cfg.Location, DefaultTimeZone)
	}
	if cfg.TransitFeedURL != DefaultTransitFeedURL || cfg.TransitFeedFormat != "json" {
		t.Errorf("transit = %q (%s), want default json feed", cfg.TransitFeedURL, cfg.TransitFeedFormat)
	}
	if got := cfg.LocationKeys(); len(got) != 2 || got[0] != "kirkland" || got[1] != "seattle" {
		t.Errorf("LocationKeys() = %v, want [kirkland seattle]", got)
	}
	if cfg.Locations[0].AqiSensor != "juanita" {
		t.Errorf("kirkland sensor = %q, want juanita", cfg.Locations[0].AqiSensor)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.StaleFor != time.Hour {
		t.Errorf("StaleFor = %v, want 1h", cfg.StaleFor)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v, want 10m", cfg.CacheTTL)
	}
	if cfg.AlertsPollInterval != 60*time.Second || cfg.WeatherPollInterval != 10*time.Minute {
		t.Errorf("poll intervals = %v/%v, want 60s/10m", cfg.AlertsPollInterval, cfg.WeatherPollInterval)
	}
	if cfg.PurpleAirAPIKey != "" {
		t.Errorf("PurpleAirAPIKey = %q, want empty", cfg.PurpleAirAPIKey)
	}
	if len(cfg.TrackedLocations) != 2 {
		t.Errorf("TrackedLocations = %v, want the location keys", cfg.TrackedLocations)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "purpleair_api_key: key-from-secrets-file\n")
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PurpleAirAPIKey != "key-from-secrets-file" {
		t.Errorf("PurpleAirAPIKey = %q, want key from secrets file", cfg.PurpleAirAPIKey)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("PURPLEAIR_API_KEY")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PURPLEAIR_API_KEY=key-from-dotenv\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("PURPLEAIR_API_KEY") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PurpleAirAPIKey != "key-from-dotenv" {
		t.Errorf("PurpleAirAPIKey = %q, want key from .env", cfg.PurpleAirAPIKey)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	t.Chdir(dir)
	t.Setenv("PURPLEAIR_API_KEY", "env-key")
	t.Setenv("CACHE_BACKEND", "MEMCACHED")
	t.Setenv("MEMCACHED_ADDRS", "cache-1:11211,cache-2:11211")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PurpleAirAPIKey != "env-key" {
		t.Errorf("PurpleAirAPIKey = %q, want env-key", cfg.PurpleAirAPIKey)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %q, want memcached", cfg.CacheBackend)
	}
	if cfg.MemcachedAddrs != "cache-1:11211,cache-2:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v, want [k1:9092 k2:9092]", cfg.KafkaBrokers)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")
	t.Chdir(findProjectRoot(t))

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_ProjectDevConfig(t *testing.T) {
	clearEnv(t)
	t.Chdir(findProjectRoot(t))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CORSOrigin != "http://localhost:5173" {
		t.Errorf("CORSOrigin = %q, want the dev origin", cfg.CORSOrigin)
	}
	if cfg.FlagsDBPath != "data/flags.db" {
		t.Errorf("FlagsDBPath = %q, want data/flags.db", cfg.FlagsDBPath)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	cfg, err := loadFrom(t, minimalEnvYAML+`
polling:
  alerts: "soon"
  weather: "-5m"
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AlertsPollInterval != 60*time.Second {
		t.Errorf("AlertsPollInterval = %v, want 60s default", cfg.AlertsPollInterval)
	}
	if cfg.WeatherPollInterval != 10*time.Minute {
		t.Errorf("WeatherPollInterval = %v, want 10m default", cfg.WeatherPollInterval)
	}
}

func TestLoad_ZeroStaleForDisablesStaleServing(t *testing.T) {
	cfg, err := loadFrom(t, minimalEnvYAML+"cache:\n  stale_for: \"0s\"\n")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StaleFor != 0 {
		t.Errorf("StaleFor = %v, want 0", cfg.StaleFor)
	}
}

func TestLoad_RequestTimeoutRaisedAboveUpstream(t *testing.T) {
	cfg, err := loadFrom(t, minimalEnvYAML+`
nws:
  timeout: "8s"
request:
  timeout: "3s"
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 9*time.Second {
		t.Errorf("RequestTimeout = %v, want 9s", cfg.RequestTimeout)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "bad cache backend",
			yaml:    "cache:\n  backend: redis\n",
			wantMsg: "CacheBackend",
		},
		{
			name:    "bad feed format",
			yaml:    "transit:\n  format: xml\n",
			wantMsg: "TransitFeedFormat",
		},
		{
			name:    "bad feed url",
			yaml:    "transit:\n  url: not-a-url\n",
			wantMsg: "TransitFeedURL",
		},
		{
			name:    "latitude out of range",
			yaml:    "locations:\n  - key: north\n    name: North\n    lat: 95\n    lon: 0\n",
			wantMsg: "Latitude",
		},
		{
			name:    "duplicate location",
			yaml:    "locations:\n  - {key: a, name: A, lat: 1, lon: 1}\n  - {key: A, name: B, lat: 2, lon: 2}\n",
			wantMsg: "duplicate location",
		},
		{
			name:    "unknown time zone",
			yaml:    "dashboard:\n  time_zone: Mars/Olympus\n",
			wantMsg: "time_zone",
		},
		{
			name:    "ttl shorter than poll interval",
			yaml:    "cache:\n  ttl: \"5m\"\npolling:\n  weather: \"10m\"\n",
			wantMsg: "longest poll interval",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := loadFrom(t, tc.yaml)
			if err == nil {
				t.Fatalf("Load() = %+v, want error", cfg)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("Load() error = %v, want message containing %q", err, tc.wantMsg)
			}
		})
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "purpleair_api_key: [unclosed\n")
	t.Chdir(dir)

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "secrets") {
		t.Errorf("Load() error = %v, want secrets parse error", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	if _, err := loadFrom(t, "server: [unclosed\n"); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestLoad_TestingModeTrue(t *testing.T) {
	cfg, err := loadFrom(t, minimalEnvYAML+"\ntesting_mode: true\n")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.TestingMode {
		t.Error("TestingMode = false, want true")
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
shutdown:
  timeout: "10s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
