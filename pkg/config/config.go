// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without zoneinfo

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the service configuration.
type Config struct {
	// Backend
	BaseURL   string        `env:"OPSGRID_BASE_URL,required"`
	Token     string        `env:"OPSGRID_TOKEN"`
	UserAgent string        `env:"OPSGRID_USER_AGENT" envDefault:"opsgrid/1.0"`
	Timeout   time.Duration `env:"OPSGRID_TIMEOUT" envDefault:"30s"`

	// HTTP server
	Port string `env:"PORT" envDefault:"8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	// Column cache (empty REDIS_URL = in-process only)
	RedisURL       string        `env:"REDIS_URL"`
	ColumnCacheTTL time.Duration `env:"COLUMN_CACHE_TTL" envDefault:"10m"`

	// Table
	PageSize    int           `env:"PAGE_SIZE" envDefault:"20"`
	AutoRefresh time.Duration `env:"AUTO_REFRESH" envDefault:"0s"`

	// Export
	ExportPageSize int     `env:"EXPORT_PAGE_SIZE" envDefault:"500"`
	ExportMaxPages int     `env:"EXPORT_MAX_PAGES" envDefault:"200"`
	ExportQPS      float64 `env:"EXPORT_QPS" envDefault:"5"`

	// Formatting
	Timezone string `env:"TIMEZONE" envDefault:"America/Santiago"`
	Locale   string `env:"LOCALE" envDefault:"es-CL"`

	// Change feed (empty KAFKA_BROKERS = disabled)
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"opsgrid.changes"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"opsgrid"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
		log.Debug().Str("file", f).Msg("Loaded env file")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and formats.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: OPSGRID_BASE_URL must be an absolute http(s) url (got %q)", ErrInvalidConfig, c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: OPSGRID_TIMEOUT must be positive", ErrInvalidConfig)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("%w: PAGE_SIZE must be at least 1 (got %d)", ErrInvalidConfig, c.PageSize)
	}
	if c.AutoRefresh < 0 {
		return fmt.Errorf("%w: AUTO_REFRESH must not be negative", ErrInvalidConfig)
	}
	if c.ExportPageSize < 1 {
		return fmt.Errorf("%w: EXPORT_PAGE_SIZE must be at least 1 (got %d)", ErrInvalidConfig, c.ExportPageSize)
	}
	if c.ExportMaxPages < 0 {
		return fmt.Errorf("%w: EXPORT_MAX_PAGES must not be negative", ErrInvalidConfig)
	}
	if c.ExportQPS < 0 {
		return fmt.Errorf("%w: EXPORT_QPS must not be negative", ErrInvalidConfig)
	}
	if c.ColumnCacheTTL < 0 {
		return fmt.Errorf("%w: COLUMN_CACHE_TTL must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: TIMEZONE: %v", ErrInvalidConfig, err)
	}
	if _, err := c.LanguageTag(); err != nil {
		return fmt.Errorf("%w: LOCALE: %v", ErrInvalidConfig, err)
	}
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		return fmt.Errorf("%w: KAFKA_TOPIC is required with KAFKA_BROKERS", ErrInvalidConfig)
	}
	return nil
}

// Location returns the display time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// LanguageTag returns the display locale.
func (c *Config) LanguageTag() (language.Tag, error) {
	return language.Parse(c.Locale)
}

// ChangeFeedEnabled reports whether Kafka brokers are configured.
func (c *Config) ChangeFeedEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
