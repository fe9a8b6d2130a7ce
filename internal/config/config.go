package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Listing Listing
	Reviews Reviews
	Scraper Scraper
	Browser Browser
	Storage Storage
	Ledger  Ledger
	Events  Events
	API     API
	Logging Logging
}

type Listing struct {
	StartURL string
	MaxPages int
}

type Reviews struct {
	// Region is clicked on the country interstitial; review visibility is
	// region-gated.
	Region string
	// ScrollFraction is how far down the page to scroll when coaxing the
	// lazy-loaded reviews section into existence. Deliberately below 1.0 so
	// unrelated bottom-of-page widgets do not fire first.
	ScrollFraction float64
	ScrollAttempts int
	ScrollWait     time.Duration
	// MaxPagesPerProduct caps pagination even when the stall guard never
	// triggers.
	MaxPagesPerProduct int
	Workers            int
}

type Scraper struct {
	DelayMin   time.Duration
	DelayMax   time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type Browser struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type Storage struct {
	DataDir       string
	ProductsFile  string
	ReviewsFile   string
	LedgerFile    string
	ScreenshotDir string
}

type Ledger struct {
	// Backend selects "file" (default) or "postgres".
	Backend     string
	PostgresDSN string
}

type Events struct {
	// RedisAddr enables the product-scraped stream publisher when non-empty.
	RedisAddr string
	Stream    string
}

type API struct {
	// Addr enables the status server when non-empty, e.g. ":8080".
	Addr string
}

type Logging struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Listing: Listing{
			StartURL: getEnvOrDefault("LISTING_START_URL", "https://www.bestbuy.com/site/searchpage.jsp?st=laptop"),
			MaxPages: getIntOrDefault("LISTING_MAX_PAGES", 10),
		},
		Reviews: Reviews{
			Region:             getEnvOrDefault("REVIEWS_REGION", "United States"),
			ScrollFraction:     getFloatOrDefault("REVIEWS_SCROLL_FRACTION", 0.7),
			ScrollAttempts:     getIntOrDefault("REVIEWS_SCROLL_ATTEMPTS", 5),
			ScrollWait:         getDurationOrDefault("REVIEWS_SCROLL_WAIT", 3*time.Second),
			MaxPagesPerProduct: getIntOrDefault("REVIEWS_MAX_PAGES_PER_PRODUCT", 50),
			Workers:            getIntOrDefault("REVIEWS_WORKERS", 2),
		},
		Scraper: Scraper{
			DelayMin:   getDurationOrDefault("SCRAPER_DELAY_MIN", 1*time.Second),
			DelayMax:   getDurationOrDefault("SCRAPER_DELAY_MAX", 4*time.Second),
			MaxRetries: getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			RetryDelay: getDurationOrDefault("SCRAPER_RETRY_DELAY", 2*time.Second),
		},
		Browser: Browser{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 60*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
		},
		Storage: Storage{
			DataDir:       getEnvOrDefault("STORAGE_DATA_DIR", "data"),
			ProductsFile:  getEnvOrDefault("STORAGE_PRODUCTS_FILE", "laptop_products_all_pages.json"),
			ReviewsFile:   getEnvOrDefault("STORAGE_REVIEWS_FILE", "laptop_products_with_reviews.json"),
			LedgerFile:    getEnvOrDefault("STORAGE_LEDGER_FILE", "run_state.json"),
			ScreenshotDir: getEnvOrDefault("STORAGE_SCREENSHOT_DIR", "data/screenshots"),
		},
		Ledger: Ledger{
			Backend:     getEnvOrDefault("LEDGER_BACKEND", "file"),
			PostgresDSN: getEnvOrDefault("LEDGER_POSTGRES_DSN", ""),
		},
		Events: Events{
			RedisAddr: getEnvOrDefault("EVENTS_REDIS_ADDR", ""),
			Stream:    getEnvOrDefault("EVENTS_STREAM", "stream:scraped_products"),
		},
		API: API{
			Addr: getEnvOrDefault("API_ADDR", ""),
		},
		Logging: Logging{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Listing.MaxPages < 1 {
		return fmt.Errorf("LISTING_MAX_PAGES must be at least 1")
	}

	if c.Reviews.Workers < 1 {
		return fmt.Errorf("REVIEWS_WORKERS must be at least 1")
	}

	if c.Reviews.ScrollFraction <= 0 || c.Reviews.ScrollFraction > 1 {
		return fmt.Errorf("REVIEWS_SCROLL_FRACTION must be in (0, 1]")
	}

	if c.Reviews.MaxPagesPerProduct < 1 {
		return fmt.Errorf("REVIEWS_MAX_PAGES_PER_PRODUCT must be at least 1")
	}

	if c.Scraper.DelayMin > c.Scraper.DelayMax {
		return fmt.Errorf("SCRAPER_DELAY_MIN cannot be greater than SCRAPER_DELAY_MAX")
	}

	if c.Ledger.Backend != "file" && c.Ledger.Backend != "postgres" {
		return fmt.Errorf("LEDGER_BACKEND must be \"file\" or \"postgres\"")
	}

	if c.Ledger.Backend == "postgres" && c.Ledger.PostgresDSN == "" {
		return fmt.Errorf("LEDGER_POSTGRES_DSN is required when LEDGER_BACKEND=postgres")
	}

	return nil
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
