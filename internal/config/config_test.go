package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Listing.MaxPages)
	assert.Equal(t, "United States", cfg.Reviews.Region)
	assert.InDelta(t, 0.7, cfg.Reviews.ScrollFraction, 0.001)
	assert.Equal(t, 50, cfg.Reviews.MaxPagesPerProduct)
	assert.Equal(t, 2, cfg.Reviews.Workers)
	assert.Equal(t, 3, cfg.Scraper.MaxRetries)
	assert.Equal(t, "file", cfg.Ledger.Backend)
	assert.Equal(t, "laptop_products_all_pages.json", cfg.Storage.ProductsFile)
	assert.Equal(t, "laptop_products_with_reviews.json", cfg.Storage.ReviewsFile)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LISTING_MAX_PAGES", "3")
	t.Setenv("REVIEWS_WORKERS", "4")
	t.Setenv("REVIEWS_SCROLL_WAIT", "500ms")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Listing.MaxPages)
	assert.Equal(t, 4, cfg.Reviews.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Reviews.ScrollWait)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("LISTING_MAX_PAGES", "lots")
	t.Setenv("REVIEWS_SCROLL_FRACTION", "most of it")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Listing.MaxPages)
	assert.InDelta(t, 0.7, cfg.Reviews.ScrollFraction, 0.001)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero listing pages", func(c *Config) { c.Listing.MaxPages = 0 }, false},
		{"zero workers", func(c *Config) { c.Reviews.Workers = 0 }, false},
		{"scroll fraction above one", func(c *Config) { c.Reviews.ScrollFraction = 1.5 }, false},
		{"scroll fraction zero", func(c *Config) { c.Reviews.ScrollFraction = 0 }, false},
		{"zero review pages", func(c *Config) { c.Reviews.MaxPagesPerProduct = 0 }, false},
		{"inverted delays", func(c *Config) {
			c.Scraper.DelayMin = 5 * time.Second
			c.Scraper.DelayMax = 1 * time.Second
		}, false},
		{"unknown ledger backend", func(c *Config) { c.Ledger.Backend = "etcd" }, false},
		{"postgres without dsn", func(c *Config) { c.Ledger.Backend = "postgres" }, false},
		{"postgres with dsn", func(c *Config) {
			c.Ledger.Backend = "postgres"
			c.Ledger.PostgresDSN = "postgres://localhost/scraper"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
