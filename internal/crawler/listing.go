package crawler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/fetch"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/models"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/ratelimit"
)

const phaseListing = "listing"

const (
	listingItemSelector = ".sku-item"
	listingNextSelector = ".sku-list-page-next"
)

var listingSchema = fetch.Schema{
	Root: listingItemSelector,
	Fields: map[string]fetch.FieldSpec{
		"name":         {Selector: "h4.sku-title a"},
		"url":          {Selector: "h4.sku-title a", Attr: "href"},
		"price":        {Selector: `[data-testid="customer-price"] span`},
		"rating":       {Selector: ".c-ratings-reviews .c-review-average"},
		"review_count": {Selector: ".c-ratings-reviews .c-total-reviews"},
	},
}

var listingNextSchema = fetch.Schema{
	Root: listingNextSelector,
	Fields: map[string]fetch.FieldSpec{
		"disabled": {Attr: "aria-disabled"},
		"class":    {Attr: "class"},
	},
}

// ListingOptions tunes the listing crawl's retry and pacing behavior.
type ListingOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	DelayMin   time.Duration
	DelayMax   time.Duration
}

// ListingCrawler walks paginated search results and emits the canonical,
// URL-deduplicated product set. The walk is strictly sequential: page N+1
// only exists once page N's next control has been found and clicked.
type ListingCrawler struct {
	fetcher fetch.Fetcher
	rc      *RunContext
	logger  *slog.Logger
	limiter ratelimit.RateLimiter
	opts    ListingOptions
}

func NewListingCrawler(f fetch.Fetcher, rc *RunContext, opts ListingOptions) *ListingCrawler {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}

	return &ListingCrawler{
		fetcher: f,
		rc:      rc,
		logger:  rc.Logger.With("component", "listing_crawler"),
		limiter: ratelimit.NewSimpleRateLimiter(opts.DelayMin, opts.DelayMax),
		opts:    opts,
	}
}

// Crawl paginates from startURL up to maxPages. Zero items on the first page
// is a ParseFailureError; zero items on a later page is the natural end.
// Records collected before a mid-crawl failure are returned alongside the
// error so the caller can persist partial progress.
func (lc *ListingCrawler) Crawl(ctx context.Context, startURL string, maxPages int) ([]models.ProductRecord, error) {
	lc.logger.Info("starting listing crawl", "url", startURL, "max_pages", maxPages)

	handle, err := navigateWithRetry(ctx, lc.fetcher, startURL, lc.opts.MaxRetries, lc.opts.RetryDelay, lc.rc.Metrics, lc.logger)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var records []models.ProductRecord

	for pageNum := 1; ; pageNum++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		lc.rc.Metrics.IncPage(phaseListing)

		rows, err := lc.fetcher.Extract(ctx, handle, listingSchema)
		if err != nil {
			return records, &ParseFailureError{URL: handle.URL(), Err: err}
		}

		page := parseListingRows(rows)
		if len(page) == 0 {
			if pageNum == 1 {
				return nil, &ParseFailureError{URL: handle.URL(), Err: errors.New("no listing items on first page")}
			}
			lc.logger.Info("no items parsed, treating as end of results", "page", pageNum)
			break
		}

		// Dedup by URL so a retried page cannot double-emit.
		added := 0
		for _, rec := range page {
			if _, dup := seen[rec.URL]; dup {
				continue
			}
			seen[rec.URL] = struct{}{}
			records = append(records, rec)
			added++
		}

		lc.logger.Info("listing page processed", "page", pageNum, "items", len(page), "new", added)

		if pageNum >= maxPages {
			lc.logger.Info("listing page budget reached", "max_pages", maxPages)
			break
		}

		state, err := nextControlState(ctx, lc.fetcher, handle, listingNextSchema)
		if err != nil {
			return records, &ParseFailureError{URL: handle.URL(), Err: err}
		}

		if state != nextEnabled {
			lc.logger.Info("listing pagination finished", "page", pageNum, "next_control", state.String())
			break
		}

		if err := lc.advance(ctx, handle); err != nil {
			return records, err
		}

		if err := lc.limiter.Wait(ctx); err != nil {
			return records, err
		}
	}

	lc.logger.Info("listing crawl completed", "products", len(records))
	return records, nil
}

// advance clicks the next control and waits for the new result set, with
// the page-level retry budget.
func (lc *ListingCrawler) advance(ctx context.Context, handle fetch.DocumentHandle) error {
	var lastErr error

	for i := 0; i < lc.opts.MaxRetries; i++ {
		if i > 0 {
			lc.rc.Metrics.IncRetry()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * lc.opts.RetryDelay):
			}
		}

		if err := lc.fetcher.Interact(ctx, handle, fetch.ClickSelector(listingNextSelector)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			lc.logger.Warn("next-page click failed", "attempt", i+1, "error", err)
			continue
		}

		if err := lc.fetcher.Interact(ctx, handle, fetch.WaitForSelector(listingItemSelector, 0)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			lc.logger.Warn("listing items did not reappear after click", "attempt", i+1, "error", err)
			continue
		}

		return nil
	}

	return &FetchExhaustedError{URL: handle.URL(), Attempts: lc.opts.MaxRetries, Err: lastErr}
}

func parseListingRows(rows []fetch.Fields) []models.ProductRecord {
	out := make([]models.ProductRecord, 0, len(rows))

	for _, row := range rows {
		name := strings.TrimSpace(row["name"])
		url := strings.TrimSpace(row["url"])
		if name == "" || url == "" {
			continue
		}

		out = append(out, models.ProductRecord{
			Name:        name,
			Price:       strings.TrimSpace(row["price"]),
			Rating:      strings.TrimSpace(row["rating"]),
			ReviewCount: parseReviewCount(row["review_count"]),
			URL:         url,
		})
	}

	return out
}

// parseReviewCount pulls the integer out of strings like "(1,234)" or
// "4,394 reviews". Nil when no digits are present.
func parseReviewCount(s string) *int {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	if digits.Len() == 0 {
		return nil
	}

	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return nil
	}
	return &n
}
