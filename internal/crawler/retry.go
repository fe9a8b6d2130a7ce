package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/fetch"
)

// navigateWithRetry wraps a single navigation in the page-level retry
// policy: a fixed small attempt budget with linear backoff. After the budget
// is spent the caller gets FetchExhaustedError and must escalate; products
// are never retried within the same run.
func navigateWithRetry(ctx context.Context, f fetch.Fetcher, url string, attempts int, baseDelay time.Duration, m *Metrics, logger *slog.Logger) (fetch.DocumentHandle, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			m.IncRetry()
			logger.Info("retrying navigation", "attempt", i+1, "url", url)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * baseDelay):
			}
		}

		start := time.Now()
		handle, err := f.Navigate(ctx, url)
		if err == nil {
			m.ObserveFetch(time.Since(start))
			return handle, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		logger.Warn("navigation failed", "url", url, "attempt", i+1, "error", err)
	}

	return nil, &FetchExhaustedError{URL: url, Attempts: attempts, Err: lastErr}
}
