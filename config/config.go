// Package config loads the service configuration from a YAML file, an optional
// .env file and GOMEDIACACHE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is read when no config file is given, if it exists.
	DefaultPath = "config.yaml"

	// DefaultEnvFile is loaded into the environment when present.
	DefaultEnvFile = ".env"

	envPrefix = "GOMEDIACACHE_"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
	StoreMongoDB  = "mongodb"
)

var stores = []string{StoreMemory, StoreSQLite, StorePostgres, StoreRedis, StoreDynamoDB, StoreMongoDB}

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
	Fetch   FetchConfig   `yaml:"fetch"`
	GIF     GIFConfig     `yaml:"gif"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	BodyLimit       string        `yaml:"body_limit"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// StoreConfig selects and configures the persistent blob store.
type StoreConfig struct {
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// URL is the connection string of postgres, redis and mongodb.
	URL string `yaml:"url"`

	// Table is the DynamoDB table, Database the MongoDB database.
	Table    string `yaml:"table"`
	Database string `yaml:"database"`

	// Prefix namespaces redis keys.
	Prefix string `yaml:"prefix"`

	// Retention bounds how long a backend keeps rows, independent of TTL.
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// CacheConfig sets the expiration of each media kind. Zero means never expire.
type CacheConfig struct {
	GIFTTL   time.Duration `yaml:"gif_ttl"`
	ImageTTL time.Duration `yaml:"image_ttl"`
	AudioTTL time.Duration `yaml:"audio_ttl"`
}

// FetchConfig controls retries and the HTTP client used for every fetch.
type FetchConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	DelayIncrement time.Duration `yaml:"delay_increment"`
	Timeout        time.Duration `yaml:"timeout"`
}

// GIFConfig configures the search provider and the picker sessions.
type GIFConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	ClientKey     string        `yaml:"client_key"`
	Language      string        `yaml:"language"`
	MediaFilter   string        `yaml:"media_filter"`
	DebounceDelay time.Duration `yaml:"debounce_delay"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			BodyLimit:       "1M",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Backend:         StoreSQLite,
			Path:            ".cache/media.db",
			Table:           "media_cache",
			Database:        "gomediacache",
			Prefix:          "gomediacache:",
			Retention:       7 * 24 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Cache: CacheConfig{
			ImageTTL: 6 * time.Hour,
			AudioTTL: 6 * time.Hour,
		},
		Fetch: FetchConfig{
			MaxRetries:     3,
			InitialDelay:   time.Second,
			DelayIncrement: time.Second,
			Timeout:        30 * time.Second,
		},
		GIF: GIFConfig{
			Language:      "en",
			MediaFilter:   "tinygif",
			DebounceDelay: 750 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// Load reads configuration from file and environment.
//
// An empty path reads DefaultPath if it exists; a given path must exist. An empty
// envFile loads DefaultEnvFile if it exists. Variables already set in the
// environment take precedence over the .env file.
func Load(path, envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(envFile string) error {
	optional := envFile == ""
	if optional {
		envFile = DefaultEnvFile
	}

	err := godotenv.Load(envFile)
	if err != nil && optional && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

func (c *Config) readFile(path string) error {
	optional := path == ""
	if optional {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *int) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("STORE", &c.Store.Backend)
	str("STORE_PATH", &c.Store.Path)
	str("STORE_URL", &c.Store.URL)
	str("STORE_TABLE", &c.Store.Table)
	str("STORE_DATABASE", &c.Store.Database)
	str("STORE_PREFIX", &c.Store.Prefix)
	dur("STORE_RETENTION", &c.Store.Retention)

	dur("GIF_TTL", &c.Cache.GIFTTL)
	dur("IMAGE_TTL", &c.Cache.ImageTTL)
	dur("AUDIO_TTL", &c.Cache.AudioTTL)

	num("FETCH_MAX_RETRIES", &c.Fetch.MaxRetries)
	dur("FETCH_INITIAL_DELAY", &c.Fetch.InitialDelay)
	dur("FETCH_DELAY_INCREMENT", &c.Fetch.DelayIncrement)
	dur("FETCH_TIMEOUT", &c.Fetch.Timeout)

	str("TENOR_KEY", &c.GIF.APIKey)
	str("TENOR_URL", &c.GIF.BaseURL)
	str("LANG", &c.GIF.Language)
	dur("DEBOUNCE_DELAY", &c.GIF.DebounceDelay)

	flag("METRICS_ENABLED", &c.Metrics.Enabled)
	str("METRICS_ENDPOINT", &c.Metrics.Endpoint)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if !slices.Contains(stores, c.Store.Backend) {
		invalid("store backend %q, want one of %s", c.Store.Backend, strings.Join(stores, ", "))
	}
	switch c.Store.Backend {
	case StorePostgres, StoreRedis, StoreMongoDB:
		if c.Store.URL == "" {
			invalid("store backend %s requires a url", c.Store.Backend)
		}
	case StoreDynamoDB:
		if c.Store.Table == "" {
			invalid("store backend %s requires a table", c.Store.Backend)
		}
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		invalid("log level %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		invalid("log format %q, want text or json", c.Log.Format)
	}

	if c.Fetch.MaxRetries < 0 {
		invalid("fetch max_retries %d is negative", c.Fetch.MaxRetries)
	}
	if c.Fetch.InitialDelay < 0 || c.Fetch.DelayIncrement < 0 {
		invalid("fetch delays must not be negative")
	}
	if c.Cache.GIFTTL < 0 || c.Cache.ImageTTL < 0 || c.Cache.AudioTTL < 0 {
		invalid("cache ttl must not be negative")
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}
