package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ScraperConfig drives pagination and enrichment.
type ScraperConfig struct {
	// ListingURL is the paginated listing, "{page}" is replaced by the page number
	ListingURL         string        `mapstructure:"listing_url"`
	MaxPages           int           `mapstructure:"max_pages"` // 0 means no cap
	PageDelay          time.Duration `mapstructure:"page_delay"`
	Concurrency        int           `mapstructure:"concurrency"`
	EnrichFromDetail   bool          `mapstructure:"enrich_from_detail"`
	BreadcrumbSelector string        `mapstructure:"breadcrumb_selector"`
	RootCrumbs         []string      `mapstructure:"root_crumbs"` // Slugs dropped from the head of every breadcrumb
}

// HTTPConfig holds storefront HTTP client configuration
type HTTPConfig struct {
	UserAgent            string        `mapstructure:"user_agent"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxRetries           int           `mapstructure:"max_retries"`
	MaxRequestsPerSecond int           `mapstructure:"max_requests_per_second"`
	InsecureSkipVerify   bool          `mapstructure:"insecure_skip_verify"`
	Proxies              []string      `mapstructure:"proxies"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "postgres" or "memory"
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DSN returns the libpq style connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Password      string        `mapstructure:"password"`
	Database      int           `mapstructure:"database"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	JournalMaxLen int64         `mapstructure:"journal_max_len"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LogConfig selects logrus level and formatter.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// Load reads configuration from a YAML file with environment variable
// overrides (SCRAPER_ prefix, "." replaced by "_"). An empty path searches for
// config.yaml in the working directory; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the values the crawler cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.Scraper.ListingURL == "":
		return errors.New("scraper.listing_url is required")
	case c.Scraper.Concurrency < 1:
		return fmt.Errorf("scraper.concurrency must be at least 1, got %d", c.Scraper.Concurrency)
	case c.Scraper.MaxPages < 0:
		return fmt.Errorf("scraper.max_pages must not be negative, got %d", c.Scraper.MaxPages)
	case c.Scraper.PageDelay < 0:
		return fmt.Errorf("scraper.page_delay must not be negative, got %s", c.Scraper.PageDelay)
	case c.HTTP.MaxRetries < 0:
		return fmt.Errorf("http.max_retries must not be negative, got %d", c.HTTP.MaxRetries)
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("scraper.listing_url", "https://www.casaferretera.com/ferreteria?page={page}")
	v.SetDefault("scraper.max_pages", 0)
	v.SetDefault("scraper.page_delay", "200ms")
	v.SetDefault("scraper.concurrency", 12)
	v.SetDefault("scraper.enrich_from_detail", true)
	v.SetDefault("scraper.breadcrumb_selector", `div[data-testid="breadcrumb"] a.vtex-breadcrumb-1-x-link[href]`)
	v.SetDefault("scraper.root_crumbs", []string{"home", "inicio"})

	v.SetDefault("http.user_agent", "StorefrontScraper/1.0")
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.max_retries", 0)
	v.SetDefault("http.max_requests_per_second", 0)
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("http.proxies", []string{})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "storefront")
	v.SetDefault("database.user", "storefront")
	v.SetDefault("database.password", "storefront")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.key_prefix", "storefront")
	v.SetDefault("redis.lock_ttl", "30m")
	v.SetDefault("redis.journal_max_len", 10000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
