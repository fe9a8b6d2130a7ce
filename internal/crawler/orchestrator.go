package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/events"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/fetch"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/ledger"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/models"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/ratelimit"
)

// FetcherFactory opens one exclusive fetch session. Each worker calls it
// once and owns the returned session for the whole run.
type FetcherFactory func(ctx context.Context) (fetch.Fetcher, error)

// OrchestratorOptions tunes the review phase.
type OrchestratorOptions struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
	DelayMin   time.Duration
	DelayMax   time.Duration
	Review     ReviewOptions
}

// Orchestrator fans the product set out over a fixed worker pool. Products
// run in parallel; review pages within one product stay strictly
// sequential. Every product reaches exactly one terminal status, and the
// output file is updated before the ledger mark so a marked product is
// always fully persisted.
type Orchestrator struct {
	factory   FetcherFactory
	rc        *RunContext
	logger    *slog.Logger
	ledger    ledger.Ledger
	results   *ledger.ResultStore
	publisher events.Publisher
	opts      OrchestratorOptions
	summary   *Summary
}

func NewOrchestrator(factory FetcherFactory, rc *RunContext, led ledger.Ledger, results *ledger.ResultStore, pub events.Publisher, opts OrchestratorOptions) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if pub == nil {
		pub = events.NoopPublisher{}
	}

	return &Orchestrator{
		factory:   factory,
		rc:        rc,
		logger:    rc.Logger.With("component", "orchestrator"),
		ledger:    led,
		results:   results,
		publisher: pub,
		opts:      opts,
		summary:   NewSummary(),
	}
}

// Summary returns the live counters; safe to read while Run is in flight.
func (o *Orchestrator) Summary() *Summary {
	return o.summary
}

// Run processes every product not already completed in a previous run. A
// canceled context stops the pool; the product each worker was on is left
// unmarked so the next run picks it up again.
func (o *Orchestrator) Run(ctx context.Context, products []models.ProductRecord) (SummaryCounts, error) {
	pending := make([]models.ProductRecord, 0, len(products))
	for _, p := range products {
		if o.ledger.Completed(p.URL) {
			o.summary.recordResumed()
			o.logger.Debug("already completed, skipping", "url", p.URL)
			continue
		}
		pending = append(pending, p)
	}
	o.summary.setTotal(len(products))

	o.logger.Info("starting review phase",
		"products", len(products),
		"pending", len(pending),
		"workers", o.opts.Workers,
	)

	work := make(chan models.ProductRecord)
	errCh := make(chan error, o.opts.Workers)

	var wg sync.WaitGroup
	for i := 0; i < o.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := o.worker(ctx, id, work); err != nil {
				errCh <- err
			}
		}(i)
	}

	// The feed must stop once the pool is gone (every worker can exit
	// early, e.g. when no fetch session can be opened), or a send on the
	// unbuffered channel would block forever.
	workersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(workersDone)
	}()

feed:
	for _, p := range pending {
		select {
		case <-ctx.Done():
			break feed
		case <-workersDone:
			break feed
		case work <- p:
		}
	}
	close(work)

	<-workersDone
	close(errCh)

	counts := o.summary.Snapshot()
	o.logger.Info("review phase finished",
		"completed", counts.Completed,
		"partially_failed", counts.PartiallyFailed,
		"skipped", counts.Skipped,
		"already_done", counts.AlreadyDone,
		"reviews", counts.Reviews,
	)

	if err := ctx.Err(); err != nil {
		return counts, err
	}
	if err := <-errCh; err != nil {
		return counts, err
	}

	return counts, nil
}

// worker owns one fetch session and drains the work channel through it. The
// pacing limiter backs off while products keep failing and relaxes again on
// a streak of clean completions.
func (o *Orchestrator) worker(ctx context.Context, id int, work <-chan models.ProductRecord) error {
	logger := o.logger.With("worker", id)

	fetcher, err := o.factory(ctx)
	if err != nil {
		return fmt.Errorf("worker %d: open fetch session: %w", id, err)
	}
	defer fetcher.Close()

	limiter := ratelimit.NewAdaptiveRateLimiter(o.opts.DelayMin, o.opts.DelayMax)

	for product := range work {
		if ctx.Err() != nil {
			return nil
		}

		switch o.processProduct(ctx, fetcher, logger, product) {
		case models.StatusCompleted:
			limiter.RecordSuccess()
		case models.StatusPartiallyFailed, models.StatusSkipped:
			limiter.RecordError()
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
	}

	return nil
}

// processProduct runs one product to its terminal status and returns it.
// An empty status means the product was interrupted and left unmarked.
func (o *Orchestrator) processProduct(ctx context.Context, fetcher fetch.Fetcher, logger *slog.Logger, product models.ProductRecord) models.ProductStatus {
	logger.Info("scraping product reviews", "name", product.Name, "url", product.URL)

	handle, err := navigateWithRetry(ctx, fetcher, product.URL, o.opts.MaxRetries, o.opts.RetryDelay, o.rc.Metrics, logger)
	if err != nil {
		if ctx.Err() != nil {
			return ""
		}
		o.finalize(ctx, logger, product, nil, 0, models.StatusSkipped, err)
		return models.StatusSkipped
	}

	paginator := NewReviewPaginator(fetcher, o.rc, o.opts.Review)
	reviews, pages, err := paginator.PaginateReviews(ctx, handle)
	if ctx.Err() != nil {
		// Interrupted mid-product. Leave it unmarked for the next run.
		return ""
	}

	if err != nil {
		o.screenshot(ctx, fetcher, handle, logger, product)
	}

	status := classify(err, len(reviews))
	o.finalize(ctx, logger, product, reviews, pages, status, err)
	return status
}

// classify maps a pagination outcome onto the product's terminal status.
func classify(err error, reviews int) models.ProductStatus {
	if err == nil {
		return models.StatusCompleted
	}

	var regionErr *RegionSelectionError
	if errors.As(err, &regionErr) {
		return models.StatusSkipped
	}

	var notFoundErr *ReviewsSectionNotFoundError
	if errors.As(err, &notFoundErr) {
		return models.StatusPartiallyFailed
	}

	var stuckErr *NavigationStuckError
	if errors.As(err, &stuckErr) {
		return models.StatusPartiallyFailed
	}

	if reviews > 0 {
		return models.StatusPartiallyFailed
	}
	return models.StatusSkipped
}

// finalize persists the product and its terminal status. Result file first,
// ledger mark second: a crash between the two re-runs the product, which is
// safe because Upsert is idempotent.
func (o *Orchestrator) finalize(ctx context.Context, logger *slog.Logger, product models.ProductRecord, reviews []models.ReviewEntry, pages int, status models.ProductStatus, cause error) {
	enriched := models.NewReviewedProduct(product)
	if len(reviews) > 0 {
		enriched.Reviews = reviews
	}
	enriched.Status = status
	if cause != nil {
		enriched.FailureReason = cause.Error()
	}

	if err := o.results.Upsert(enriched); err != nil {
		logger.Error("failed to persist product results", "url", product.URL, "error", err)
		return
	}

	entry := ledger.Entry{
		URL:               product.URL,
		Status:            status,
		FailureReason:     enriched.FailureReason,
		Reviews:           len(reviews),
		LastPageAttempted: pages,
		UpdatedAt:         time.Now(),
	}
	if err := o.ledger.Mark(ctx, entry); err != nil {
		logger.Error("failed to mark product in ledger", "url", product.URL, "error", err)
		return
	}

	o.rc.Metrics.IncProduct(string(status))
	o.rc.Metrics.AddReviews(len(reviews))
	o.summary.record(status, len(reviews))

	switch status {
	case models.StatusCompleted:
		logger.Info("product completed", "url", product.URL, "reviews", len(reviews), "pages", pages)
	case models.StatusPartiallyFailed:
		logger.Warn("product partially failed", "url", product.URL, "reviews", len(reviews), "pages", pages, "reason", enriched.FailureReason)
	default:
		logger.Warn("product skipped", "url", product.URL, "reason", enriched.FailureReason)
	}

	if err := o.publisher.PublishProductScraped(ctx, events.NewProductScrapedPayload(o.rc.ID, enriched)); err != nil {
		logger.Warn("event publish failed", "url", product.URL, "error", err)
	}
}

// screenshot captures the page for failure diagnosis. Best effort.
func (o *Orchestrator) screenshot(ctx context.Context, fetcher fetch.Fetcher, handle fetch.DocumentHandle, logger *slog.Logger, product models.ProductRecord) {
	name := fmt.Sprintf("failed_%s_%d.png", sanitizeName(product.Name), time.Now().Unix())
	if err := fetcher.Screenshot(ctx, handle, name); err != nil {
		logger.Debug("screenshot failed", "url", product.URL, "error", err)
	}
}

func sanitizeName(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
		if len(out) >= 40 {
			break
		}
	}
	return string(out)
}
