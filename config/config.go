package config

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall client configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Booking  BookingConfig  `yaml:"booking"`
	Payment  PaymentConfig  `yaml:"payment"`
	Cache    CacheConfig    `yaml:"cache"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// APIConfig describes how to reach the remote parking API.
type APIConfig struct {
	BaseURL         string        `yaml:"base_url"`
	TimeoutSeconds  int           `yaml:"timeout_seconds"`
	Timeout         time.Duration `yaml:"-"`
	HTTPProxy       string        `yaml:"http_proxy"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

// AuthConfig holds the loopback OAuth callback server settings.
type AuthConfig struct {
	CallbackAddr        string        `yaml:"callback_addr"`
	CallbackPath        string        `yaml:"callback_path"`
	LoginTimeoutSeconds int           `yaml:"login_timeout_seconds"`
	LoginTimeout        time.Duration `yaml:"-"`
	RateLimitPerSec     float64       `yaml:"rate_limit_per_sec"`
}

// DatabaseConfig holds the token store connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// BookingConfig holds booking form and tracking settings.
type BookingConfig struct {
	Timezone             string        `yaml:"timezone"`
	TickIntervalMillis   int           `yaml:"tick_interval_millis"`
	TickInterval         time.Duration `yaml:"-"`
	WatchIntervalSeconds int           `yaml:"watch_interval_seconds"`
	WatchInterval        time.Duration `yaml:"-"`
}

// PaymentConfig holds the checkout success detection data.
type PaymentConfig struct {
	SuccessMarkers     []string      `yaml:"success_markers"`
	AppDomain          string        `yaml:"app_domain"`
	RefetchDelayMillis int           `yaml:"refetch_delay_millis"`
	RefetchDelay       time.Duration `yaml:"-"`
}

// CacheConfig controls the facility list response cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTLSeconds int           `yaml:"ttl_seconds"`
	TTL        time.Duration `yaml:"-"`
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads the configuration from the given path. A missing file yields the
// defaults. Values from a .env file and PARKINGO_* variables override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	var cfg Config
	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("config file %s not found, using defaults", path)
	case err != nil:
		return nil, err
	default:
		defer f.Close()
		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PARKINGO_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("PARKINGO_HTTP_PROXY"); v != "" {
		cfg.API.HTTPProxy = v
	}
	if v := os.Getenv("PARKINGO_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("PARKINGO_CALLBACK_ADDR"); v != "" {
		cfg.Auth.CallbackAddr = v
	}
	if v := os.Getenv("PARKINGO_TIMEZONE"); v != "" {
		cfg.Booking.Timezone = v
	}
	if v := os.Getenv("PARKINGO_PAYMENT_MARKERS"); v != "" {
		cfg.Payment.SuccessMarkers = splitList(v)
	}
	if v := os.Getenv("PARKINGO_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		} else {
			log.Printf("Warning: invalid PARKINGO_METRICS_ENABLED %q: %v", v, err)
		}
	}
	if v := os.Getenv("PARKINGO_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		} else {
			log.Printf("Warning: invalid PARKINGO_CACHE_ENABLED %q: %v", v, err)
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://parkingo-core.agil.zip"
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 30
	}
	cfg.API.Timeout = time.Duration(cfg.API.TimeoutSeconds) * time.Second
	if cfg.API.RateLimitPerSec <= 0 {
		cfg.API.RateLimitPerSec = 5
	}
	if cfg.API.RateLimitBurst <= 0 {
		cfg.API.RateLimitBurst = 10
	}

	if cfg.Auth.CallbackAddr == "" {
		cfg.Auth.CallbackAddr = "127.0.0.1:8765"
	}
	if cfg.Auth.CallbackPath == "" {
		cfg.Auth.CallbackPath = "/auth/callback"
	}
	if cfg.Auth.LoginTimeoutSeconds <= 0 {
		cfg.Auth.LoginTimeoutSeconds = 300
	}
	cfg.Auth.LoginTimeout = time.Duration(cfg.Auth.LoginTimeoutSeconds) * time.Second
	if cfg.Auth.RateLimitPerSec <= 0 {
		cfg.Auth.RateLimitPerSec = 2
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = DefaultDSN()
	}

	if cfg.Booking.Timezone == "" {
		cfg.Booking.Timezone = "Local"
	}
	if cfg.Booking.TickIntervalMillis <= 0 {
		cfg.Booking.TickIntervalMillis = 1000
	}
	cfg.Booking.TickInterval = time.Duration(cfg.Booking.TickIntervalMillis) * time.Millisecond
	if cfg.Booking.WatchIntervalSeconds <= 0 {
		cfg.Booking.WatchIntervalSeconds = 10
	}
	cfg.Booking.WatchInterval = time.Duration(cfg.Booking.WatchIntervalSeconds) * time.Second

	if cfg.Payment.RefetchDelayMillis <= 0 {
		cfg.Payment.RefetchDelayMillis = 1500
	}
	cfg.Payment.RefetchDelay = time.Duration(cfg.Payment.RefetchDelayMillis) * time.Millisecond

	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 30
	}
	cfg.Cache.TTL = time.Duration(cfg.Cache.TTLSeconds) * time.Second
}

// DefaultDSN is the token database path under the user's config directory,
// or parkingo.db in the working directory when there is none.
func DefaultDSN() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		log.Printf("Warning: no user config directory: %v. Using ./parkingo.db", err)
		return "parkingo.db"
	}
	return filepath.Join(dir, "parkingo", "parkingo.db")
}

// Location resolves the booking timezone, falling back to the local zone.
func (c BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Warning: failed to load timezone %q: %v. Using local time.", c.Timezone, err)
		return time.Local
	}
	return loc
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
