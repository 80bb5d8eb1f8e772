package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string
	LogLevel   string

	APIKey            string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	StrictStatus      bool

	RequestTimeout time.Duration

	CacheTTL        time.Duration
	CacheBackend    string // "in_memory", "otter" or "memcached"
	CacheMaxEntries int
	CoalesceMisses  bool

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	WarmZipcodes []string
	WarmInterval time.Duration

	ZipcodeMinLength int
	ZipcodeMaxLength int

	RateLimitRPS   int
	RateLimitBurst int

	DegradedWindow   time.Duration
	DegradedErrorPct int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	TrackedZipcodes []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	WeatherAPI struct {
		URL          string `yaml:"url"`
		Timeout      string `yaml:"timeout"`
		StrictStatus bool   `yaml:"strict_status"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend        string `yaml:"backend"`
		TTL            string `yaml:"ttl"`
		MaxEntries     int    `yaml:"max_entries"`
		CoalesceMisses bool   `yaml:"coalesce_misses"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Warm struct {
			Zipcodes []string `yaml:"zipcodes"`
			Interval string   `yaml:"interval"`
		} `yaml:"warm"`
	} `yaml:"cache"`

	Validation struct {
		ZipcodeMinLength int `yaml:"zipcode_min_length"`
		ZipcodeMaxLength int `yaml:"zipcode_max_length"`
	} `yaml:"validation"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Metrics struct {
		TrackedZipcodes []string `yaml:"tracked_zipcodes"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	APIKey string `yaml:"api_key"`
}

// Load reads config/{ENV_NAME}.yaml (default dev) relative to the working directory.
// The weatherstack access key comes from API_KEY or config/secrets.yaml (api_key).
// CACHE_BACKEND, MEMCACHED_ADDRS and LOG_LEVEL override the file.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(filepath.Join(cwd, "config"))
}

// LoadFrom is Load with an explicit config directory.
func LoadFrom(dir string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, env+".yaml")
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

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), fc.Log.Level, "INFO")

	cfg.APIKey = strings.TrimSpace(os.Getenv("API_KEY"))
	if cfg.APIKey == "" {
		key, err := readSecrets(filepath.Join(dir, "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.APIKey = key
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY required (set env or config/secrets.yaml api_key)")
	}

	cfg.WeatherAPIURL = firstNonEmpty(strings.TrimSpace(fc.WeatherAPI.URL), "http://api.weatherstack.com")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.StrictStatus = fc.WeatherAPI.StrictStatus

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*time.Minute)
	cfg.CacheBackend = firstNonEmpty(
		strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND"))),
		strings.TrimSpace(strings.ToLower(fc.Cache.Backend)),
		"in_memory",
	)
	cfg.CacheMaxEntries = fc.Cache.MaxEntries
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = 10000
	}
	cfg.CoalesceMisses = fc.Cache.CoalesceMisses
	cfg.MemcachedAddrs = firstNonEmpty(
		strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")),
		strings.TrimSpace(fc.Cache.Memcached.Addrs),
		"localhost:11211",
	)
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.WarmZipcodes = fc.Cache.Warm.Zipcodes
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.Warm.Interval, 0)

	cfg.ZipcodeMinLength = fc.Validation.ZipcodeMinLength
	if cfg.ZipcodeMinLength <= 0 {
		cfg.ZipcodeMinLength = 3
	}
	cfg.ZipcodeMaxLength = fc.Validation.ZipcodeMaxLength
	if cfg.ZipcodeMaxLength <= 0 {
		cfg.ZipcodeMaxLength = 10
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.TrackedZipcodes = fc.Metrics.TrackedZipcodes

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.APIKey), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses s, returning defaultVal when s is empty, invalid or <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses s, returning defaultVal on empty string or parse error.
// Zero and negative durations are returned as-is.
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

// validate checks cross-field constraints. RequestTimeout is raised to exceed
// WeatherAPITimeout so the upstream timeout fires first.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "otter", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory, otter or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.ZipcodeMinLength > cfg.ZipcodeMaxLength {
		return fmt.Errorf("validation.zipcode_min_length (%d) exceeds zipcode_max_length (%d)", cfg.ZipcodeMinLength, cfg.ZipcodeMaxLength)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be <= 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
