package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = "server:\n  port: \"8080\"\n"

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "dev.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write dev.yaml: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write secrets.yaml: %v", err)
	}
}

// clearEnv unsets every variable Load reads so tests do not depend on the host.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"API_KEY", "ENV_NAME", "CACHE_BACKEND", "MEMCACHED_ADDRS", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadFrom_FailsWhenNoAPIKey(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadFrom(dir)
	if err == nil {
		t.Fatal("LoadFrom() expected error when no API_KEY and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadFrom() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "API_KEY") {
		t.Errorf("LoadFrom() error = %v, want message containing API_KEY", err)
	}
}

func TestLoadFrom_APIKeyFromSecretsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "api_key: key-from-secrets-file\n")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.APIKey != "key-from-secrets-file" {
		t.Errorf("APIKey = %q, want key from secrets file", cfg.APIKey)
	}
}

func TestLoadFrom_APIKeyEnvWinsOverSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "key-from-env")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "api_key: key-from-secrets-file\n")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.APIKey != "key-from-env" {
		t.Errorf("APIKey = %q, want key-from-env", cfg.APIKey)
	}
}

func TestLoadFrom_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")

	_, err := LoadFrom(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("LoadFrom() error = %v, want config file not found", err)
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "server: [unclosed\n")

	_, err := LoadFrom(dir)
	if err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Fatalf("LoadFrom() error = %v, want parse error", err)
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "test-key")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"ServerPort", cfg.ServerPort, "8080"},
		{"LogLevel", cfg.LogLevel, "INFO"},
		{"WeatherAPIURL", cfg.WeatherAPIURL, "http://api.weatherstack.com"},
		{"WeatherAPITimeout", cfg.WeatherAPITimeout, 5 * time.Second},
		{"StrictStatus", cfg.StrictStatus, false},
		{"RequestTimeout", cfg.RequestTimeout, 10 * time.Second},
		{"CacheTTL", cfg.CacheTTL, 30 * time.Minute},
		{"CacheBackend", cfg.CacheBackend, "in_memory"},
		{"CacheMaxEntries", cfg.CacheMaxEntries, 10000},
		{"CoalesceMisses", cfg.CoalesceMisses, false},
		{"MemcachedAddrs", cfg.MemcachedAddrs, "localhost:11211"},
		{"WarmInterval", cfg.WarmInterval, time.Duration(0)},
		{"ZipcodeMinLength", cfg.ZipcodeMinLength, 3},
		{"ZipcodeMaxLength", cfg.ZipcodeMaxLength, 10},
		{"RateLimitRPS", cfg.RateLimitRPS, 100},
		{"DegradedErrorPct", cfg.DegradedErrorPct, 50},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 30 * time.Second},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadFrom_FileValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "test-key")
	dir := t.TempDir()
	writeEnvFile(t, dir, `
server:
  port: "9090"
log:
  level: debug
weather_api:
  url: http://localhost:8081
  timeout: 2s
  strict_status: true
cache:
  backend: otter
  ttl: 10m
  max_entries: 500
  coalesce_misses: true
  warm:
    zipcodes: ["27332", "10001"]
    interval: 25m
metrics:
  tracked_zipcodes: ["27332"]
`)

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.ServerPort != "9090" || cfg.LogLevel != "debug" {
		t.Errorf("server/log = (%q, %q)", cfg.ServerPort, cfg.LogLevel)
	}
	if cfg.WeatherAPIURL != "http://localhost:8081" || cfg.WeatherAPITimeout != 2*time.Second || !cfg.StrictStatus {
		t.Errorf("weather_api = (%q, %v, %v)", cfg.WeatherAPIURL, cfg.WeatherAPITimeout, cfg.StrictStatus)
	}
	if cfg.CacheBackend != "otter" || cfg.CacheTTL != 10*time.Minute || cfg.CacheMaxEntries != 500 || !cfg.CoalesceMisses {
		t.Errorf("cache = (%q, %v, %d, %v)", cfg.CacheBackend, cfg.CacheTTL, cfg.CacheMaxEntries, cfg.CoalesceMisses)
	}
	if !reflect.DeepEqual(cfg.WarmZipcodes, []string{"27332", "10001"}) || cfg.WarmInterval != 25*time.Minute {
		t.Errorf("warm = (%v, %v)", cfg.WarmZipcodes, cfg.WarmInterval)
	}
	if !reflect.DeepEqual(cfg.TrackedZipcodes, []string{"27332"}) {
		t.Errorf("TrackedZipcodes = %v", cfg.TrackedZipcodes)
	}
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "test-key")
	t.Setenv("CACHE_BACKEND", " Memcached ")
	t.Setenv("MEMCACHED_ADDRS", "mc1:11211,mc2:11211")
	t.Setenv("LOG_LEVEL", "WARN")
	dir := t.TempDir()
	writeEnvFile(t, dir, "cache:\n  backend: in_memory\nlog:\n  level: debug\n")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %q, want memcached", cfg.CacheBackend)
	}
	if cfg.MemcachedAddrs != "mc1:11211,mc2:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
	if cfg.LogLevel != "WARN" {
		t.Errorf("LogLevel = %q, want WARN", cfg.LogLevel)
	}
}

func TestLoadFrom_InvalidBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "test-key")
	dir := t.TempDir()
	writeEnvFile(t, dir, "cache:\n  backend: redis\n")

	_, err := LoadFrom(dir)
	if err == nil || !strings.Contains(err.Error(), "cache.backend") {
		t.Fatalf("LoadFrom() error = %v, want cache.backend error", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			WeatherAPITimeout: 5 * time.Second,
			RequestTimeout:    2 * time.Second,
			CacheBackend:      "in_memory",
			ZipcodeMinLength:  3,
			ZipcodeMaxLength:  10,
			DegradedErrorPct:  50,
		}
	}

	cfg := base()
	if err := validate(cfg); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
	if cfg.RequestTimeout != 6*time.Second {
		t.Errorf("RequestTimeout = %v, want raised to 6s", cfg.RequestTimeout)
	}

	cfg = base()
	cfg.WeatherAPITimeout = 0
	if err := validate(cfg); err == nil {
		t.Error("validate() with zero upstream timeout should fail")
	}

	cfg = base()
	cfg.ZipcodeMinLength = 11
	if err := validate(cfg); err == nil {
		t.Error("validate() with min > max length should fail")
	}

	cfg = base()
	cfg.DegradedErrorPct = 101
	if err := validate(cfg); err == nil {
		t.Error("validate() with error pct > 100 should fail")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Minute},
		{"garbage", time.Minute},
		{"-5s", time.Minute},
		{"0s", time.Minute},
		{" 30m ", 30 * time.Minute},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Minute); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := parseDurationOrZero("0s", time.Minute); got != 0 {
		t.Errorf("parseDurationOrZero(0s) = %v, want 0", got)
	}
}
