package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/api"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/browser"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/config"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/crawler"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/events"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/fetch"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/ledger"
	"github.com/ecomlytics/bestbuy-review-scraper/pkg/logger"
)

func main() {
	phase := flag.String("phase", "all", "which phase to run: listing, reviews or all")
	startURL := flag.String("start-url", "", "listing start URL (overrides LISTING_START_URL)")
	dataDir := flag.String("data-dir", "", "data directory (overrides STORAGE_DATA_DIR)")
	headless := flag.Bool("headless", true, "run the browser headless (overrides BROWSER_HEADLESS)")
	flag.Parse()

	if *phase != "listing" && *phase != "reviews" && *phase != "all" {
		fmt.Fprintf(os.Stderr, "unknown phase %q\n", *phase)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Explicit flags win over env config.
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "start-url":
			cfg.Listing.StartURL = *startURL
		case "data-dir":
			cfg.Storage.DataDir = *dataDir
		case "headless":
			cfg.Browser.Headless = *headless
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, log, *phase); err != nil {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger, phase string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc := crawler.NewRunContext(log)
	defer rc.Close()

	rc.Logger.Info("starting scraper", "phase", phase)

	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
	})
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer b.Close()

	productsPath := filepath.Join(cfg.Storage.DataDir, cfg.Storage.ProductsFile)

	if phase == "listing" || phase == "all" {
		if err := runListing(ctx, cfg, rc, b, productsPath); err != nil {
			return err
		}
	}

	if phase == "reviews" || phase == "all" {
		return runReviews(ctx, cfg, rc, b, productsPath)
	}

	return nil
}

func runListing(ctx context.Context, cfg *config.Config, rc *crawler.RunContext, b *browser.Browser, productsPath string) error {
	fetcher, err := fetch.NewPlaywright(b, cfg.Storage.ScreenshotDir)
	if err != nil {
		return fmt.Errorf("open listing fetch session: %w", err)
	}
	defer fetcher.Close()

	lc := crawler.NewListingCrawler(fetcher, rc, crawler.ListingOptions{
		MaxRetries: cfg.Scraper.MaxRetries,
		RetryDelay: cfg.Scraper.RetryDelay,
		DelayMin:   cfg.Scraper.DelayMin,
		DelayMax:   cfg.Scraper.DelayMax,
	})

	records, crawlErr := lc.Crawl(ctx, cfg.Listing.StartURL, cfg.Listing.MaxPages)

	// Persist whatever was collected, even on a mid-crawl failure.
	if len(records) > 0 {
		if err := ledger.SaveProducts(productsPath, records); err != nil {
			return fmt.Errorf("save products: %w", err)
		}
		rc.Logger.Info("product set saved", "path", productsPath, "products", len(records))
	}

	if crawlErr != nil {
		return fmt.Errorf("listing crawl: %w", crawlErr)
	}
	return nil
}

func runReviews(ctx context.Context, cfg *config.Config, rc *crawler.RunContext, b *browser.Browser, productsPath string) error {
	products, err := ledger.LoadProducts(productsPath)
	if err != nil {
		return fmt.Errorf("review phase needs the listing output: %w", err)
	}

	led, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	results, err := ledger.NewResultStore(filepath.Join(cfg.Storage.DataDir, cfg.Storage.ReviewsFile))
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}

	pub, err := openPublisher(ctx, cfg, rc.Logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	factory := func(context.Context) (fetch.Fetcher, error) {
		return fetch.NewPlaywright(b, cfg.Storage.ScreenshotDir)
	}

	orch := crawler.NewOrchestrator(factory, rc, led, results, pub, crawler.OrchestratorOptions{
		Workers:    cfg.Reviews.Workers,
		MaxRetries: cfg.Scraper.MaxRetries,
		RetryDelay: cfg.Scraper.RetryDelay,
		DelayMin:   cfg.Scraper.DelayMin,
		DelayMax:   cfg.Scraper.DelayMax,
		Review: crawler.ReviewOptions{
			Region:         cfg.Reviews.Region,
			ScrollFraction: cfg.Reviews.ScrollFraction,
			ScrollAttempts: cfg.Reviews.ScrollAttempts,
			ScrollWait:     cfg.Reviews.ScrollWait,
			MaxPages:       cfg.Reviews.MaxPagesPerProduct,
		},
	})

	var srv *api.Server
	if cfg.API.Addr != "" {
		srv = api.NewServer(cfg.API.Addr, rc, orch.Summary(), led, rc.Logger)
		go srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	counts, err := orch.Run(ctx, products)
	if err != nil {
		return fmt.Errorf("review phase: %w", err)
	}

	if counts.Skipped > 0 {
		return fmt.Errorf("%d of %d products yielded no data", counts.Skipped, counts.Total)
	}

	return nil
}

func openLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, error) {
	if cfg.Ledger.Backend == "postgres" {
		led, err := ledger.NewPostgresLedger(ctx, cfg.Ledger.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		return led, nil
	}

	led, err := ledger.NewFileLedger(filepath.Join(cfg.Storage.DataDir, cfg.Storage.LedgerFile))
	if err != nil {
		return nil, fmt.Errorf("open file ledger: %w", err)
	}
	return led, nil
}

func openPublisher(ctx context.Context, cfg *config.Config, log *slog.Logger) (events.Publisher, error) {
	if cfg.Events.RedisAddr == "" {
		return events.NoopPublisher{}, nil
	}

	pub, err := events.NewRedisPublisher(ctx, cfg.Events.RedisAddr, cfg.Events.Stream, log)
	if err != nil {
		return nil, fmt.Errorf("open event publisher: %w", err)
	}
	return pub, nil
}
