package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Scraper.Concurrency)
	assert.Equal(t, 200*time.Millisecond, cfg.Scraper.PageDelay)
	assert.True(t, cfg.Scraper.EnrichFromDetail)
	assert.Equal(t, []string{"home", "inicio"}, cfg.Scraper.RootCrumbs)
	assert.Equal(t, 0, cfg.HTTP.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Redis.LockTTL)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scraper:
  listing_url: "https://shop.test/c?page={page}"
  max_pages: 3
  concurrency: 4
database:
  driver: memory
redis:
  enabled: true
  lock_ttl: 5m
`), 0o600))

	t.Setenv("SCRAPER_SCRAPER_CONCURRENCY", "8")
	t.Setenv("SCRAPER_DATABASE_HOST", "db.internal")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://shop.test/c?page={page}", cfg.Scraper.ListingURL)
	assert.Equal(t, 3, cfg.Scraper.MaxPages)
	assert.Equal(t, 8, cfg.Scraper.Concurrency)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Redis.LockTTL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Scraper:  ScraperConfig{ListingURL: "https://shop.test/?page={page}", Concurrency: 1},
			Database: DatabaseConfig{Driver: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing listing url", func(c *Config) { c.Scraper.ListingURL = "" }, "listing_url"},
		{"zero concurrency", func(c *Config) { c.Scraper.Concurrency = 0 }, "concurrency"},
		{"negative page cap", func(c *Config) { c.Scraper.MaxPages = -1 }, "max_pages"},
		{"negative delay", func(c *Config) { c.Scraper.PageDelay = -time.Second }, "page_delay"},
		{"negative retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "max_retries"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }, "database.driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}
