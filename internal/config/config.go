// Package config loads runtime settings from an optional YAML file, a local
// .env file and RETREATS_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pfrederiksen/retreat-events/internal/extract"
	"github.com/pfrederiksen/retreat-events/internal/storage"
)

// EnvPrefix is prepended to every environment override, e.g.
// RETREATS_STORAGE_DRIVER for storage.driver.
const EnvPrefix = "RETREATS"

type Config struct {
	Timezone  string               `mapstructure:"timezone"`
	HTTP      HTTPConfig           `mapstructure:"http"`
	Feeds     FeedsConfig          `mapstructure:"feeds"`
	Listing   ListingConfig        `mapstructure:"listing"`
	Ingest    IngestConfig         `mapstructure:"ingest"`
	Storage   StorageConfig        `mapstructure:"storage"`
	Server    ServerConfig         `mapstructure:"server"`
	Logging   LoggingConfig        `mapstructure:"logging"`
	Gazetteer []extract.VenueEntry `mapstructure:"gazetteer"`
}

type HTTPConfig struct {
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	RateBurst int           `mapstructure:"rate_burst"`
	Retries   int           `mapstructure:"retries"`
}

type FeedsConfig struct {
	URLs []string `mapstructure:"urls"`
}

type ListingConfig struct {
	CategoryURL    string `mapstructure:"category_url"`
	ListingPattern string `mapstructure:"listing_pattern"`
	DetailPattern  string `mapstructure:"detail_pattern"`
	Concurrency    int    `mapstructure:"concurrency"`
}

type IngestConfig struct {
	PerFeedItemLimit       int `mapstructure:"per_feed_item_limit"`
	ListingDetailPageLimit int `mapstructure:"listing_detail_page_limit"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Table  string `mapstructure:"table"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
	URL    string `mapstructure:"url"`
	Key    string `mapstructure:"key"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Token        string        `mapstructure:"token"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("timezone", "Europe/Budapest")

	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.rate_limit", 2.0)
	v.SetDefault("http.rate_burst", 1)
	v.SetDefault("http.retries", 0)

	v.SetDefault("feeds.urls", []string{})

	v.SetDefault("listing.category_url", "")
	v.SetDefault("listing.listing_pattern", `^/megoldasok/[^/]+/?$`)
	v.SetDefault("listing.detail_pattern", `^/programok?/[^/]+/?$`)
	v.SetDefault("listing.concurrency", 5)

	v.SetDefault("ingest.per_feed_item_limit", 100)
	v.SetDefault("ingest.listing_detail_page_limit", 40)

	v.SetDefault("storage.driver", "")
	v.SetDefault("storage.table", storage.DefaultTable)
	v.SetDefault("storage.path", storage.DefaultDataDir)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.url", "")
	v.SetDefault("storage.key", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.token", "")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "10m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration. configPath may be empty, in which case
// ./retreat-events.yaml is used when present. A .env file in the working
// directory is loaded into the environment first; variables already set win.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("retreat-events")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/retreat-events")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Feeds.URLs = splitList(cfg.Feeds.URLs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList drops blanks and splits entries that still hold commas, which
// is how list values arrive from the environment.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks values that would otherwise fail late, mid-run.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit must not be negative")
	}
	if c.HTTP.Retries < 0 || c.HTTP.Retries > 10 {
		return fmt.Errorf("http.retries must be between 0 and 10, got %d", c.HTTP.Retries)
	}
	if c.Listing.Concurrency < 1 || c.Listing.Concurrency > 10 {
		return fmt.Errorf("listing.concurrency must be between 1 and 10, got %d", c.Listing.Concurrency)
	}
	if c.Listing.CategoryURL != "" {
		if _, err := regexp.Compile(c.Listing.ListingPattern); err != nil {
			return fmt.Errorf("listing.listing_pattern: %w", err)
		}
		if _, err := regexp.Compile(c.Listing.DetailPattern); err != nil {
			return fmt.Errorf("listing.detail_pattern: %w", err)
		}
	}
	if c.Ingest.PerFeedItemLimit < 0 || c.Ingest.ListingDetailPageLimit < 0 {
		return fmt.Errorf("ingest limits must not be negative")
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "":
	case storage.DriverFile, storage.DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
		}
	case storage.DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver postgres")
		}
	case storage.DriverPostgREST:
		if c.Storage.URL == "" || c.Storage.Key == "" {
			return fmt.Errorf("storage.url and storage.key are required for driver postgrest")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if _, err := c.GazetteerTable(); err != nil {
		return fmt.Errorf("gazetteer: %w", err)
	}
	return nil
}

// ValidateServer adds the checks only the HTTP trigger needs.
func (c *Config) ValidateServer() error {
	if c.Server.Token == "" {
		return fmt.Errorf("server.token is required (set %s_SERVER_TOKEN)", EnvPrefix)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GazetteerTable returns the built-in venues preceded by configured ones.
func (c *Config) GazetteerTable() (*extract.Gazetteer, error) {
	if len(c.Gazetteer) == 0 {
		return extract.DefaultGazetteer(), nil
	}
	return extract.WithDefaults(c.Gazetteer)
}

// StoreConfig converts the storage section for storage.Open.
func (c *Config) StoreConfig() storage.Config {
	return storage.Config{
		Driver: c.Storage.Driver,
		Table:  c.Storage.Table,
		Path:   c.Storage.Path,
		DSN:    c.Storage.DSN,
		URL:    c.Storage.URL,
		Key:    c.Storage.Key,
	}
}

// HasStore reports whether a storage driver is configured.
func (c *Config) HasStore() bool {
	return c.Storage.Driver != ""
}
