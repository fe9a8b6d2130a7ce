package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/events"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/fetch"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/ledger"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/models"
)

type orchestratorFixture struct {
	dir     string
	ledger  *ledger.FileLedger
	results *ledger.ResultStore
	orch    *Orchestrator
}

func newOrchestratorFixture(t *testing.T, f fetch.Fetcher) *orchestratorFixture {
	t.Helper()

	dir := t.TempDir()

	led, err := ledger.NewFileLedger(filepath.Join(dir, "run_state.json"))
	require.NoError(t, err)

	results, err := ledger.NewResultStore(filepath.Join(dir, "reviews.json"))
	require.NoError(t, err)

	factory := func(context.Context) (fetch.Fetcher, error) { return f, nil }

	orch := NewOrchestrator(factory, testRunContext(), led, results, events.NoopPublisher{}, OrchestratorOptions{
		Workers:    1,
		MaxRetries: 2,
		Review: ReviewOptions{
			Region:         "United States",
			ScrollFraction: 0.7,
			ScrollAttempts: 2,
			ScrollWait:     time.Millisecond,
			MaxPages:       50,
		},
	})

	return &orchestratorFixture{dir: dir, ledger: led, results: results, orch: orch}
}

func product(name, url string) models.ProductRecord {
	return models.ProductRecord{Name: name, URL: url}
}

func readResults(t *testing.T, dir string) []models.ReviewedProduct {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, "reviews.json"))
	require.NoError(t, err)

	var out []models.ReviewedProduct
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestOrchestratorCompletesProduct(t *testing.T) {
	f := &fakeFetcher{pages: reviewPages(18, 3)}
	fx := newOrchestratorFixture(t, f)

	counts, err := fx.orch.Run(context.Background(), []models.ProductRecord{
		product("Laptop A", "https://example.com/a"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, counts.Completed)
	assert.Equal(t, 54, counts.Reviews)
	assert.True(t, fx.ledger.Completed("https://example.com/a"))

	saved := readResults(t, fx.dir)
	require.Len(t, saved, 1)
	assert.Equal(t, "Laptop A", saved[0].Name)
	assert.Len(t, saved[0].Reviews, 54)
}

func TestOrchestratorSkipsCompletedProducts(t *testing.T) {
	f := &fakeFetcher{pages: reviewPages(5, 1)}
	fx := newOrchestratorFixture(t, f)

	require.NoError(t, fx.ledger.Mark(context.Background(), ledger.Entry{
		URL:    "https://example.com/a",
		Status: models.StatusCompleted,
	}))

	counts, err := fx.orch.Run(context.Background(), []models.ProductRecord{
		product("Laptop A", "https://example.com/a"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, counts.AlreadyDone)
	assert.Zero(t, counts.Finalized())
	assert.Zero(t, f.navigations)
}

func TestOrchestratorNavigationFailureIsSkipped(t *testing.T) {
	navErr := &fetch.NavigationError{URL: "https://example.com/a", Err: context.DeadlineExceeded}
	f := &fakeFetcher{navErrs: []error{navErr, navErr}}
	fx := newOrchestratorFixture(t, f)

	_, err := fx.orch.Run(context.Background(), []models.ProductRecord{
		product("Laptop A", "https://example.com/a"),
	})
	require.NoError(t, err)

	counts := fx.orch.Summary().Snapshot()
	assert.Equal(t, 1, counts.Skipped)

	// Skipped products still land in the output with an empty review list,
	// but are not marked completed so the next run retries them.
	saved := readResults(t, fx.dir)
	require.Len(t, saved, 1)
	assert.NotNil(t, saved[0].Reviews)
	assert.Empty(t, saved[0].Reviews)
	assert.False(t, fx.ledger.Completed("https://example.com/a"))
}

func TestOrchestratorRegionFailureIsSkipped(t *testing.T) {
	f := &fakeFetcher{
		pages:     reviewPages(5, 1),
		regionErr: fetch.ErrElementNotFound,
	}
	fx := newOrchestratorFixture(t, f)

	counts, err := fx.orch.Run(context.Background(), []models.ProductRecord{
		product("Laptop A", "https://example.com/a"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Skipped)

	entries := fx.ledger.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusSkipped, entries[0].Status)
	assert.NotEmpty(t, entries[0].FailureReason)
}

func TestOrchestratorStuckPaginationIsPartialFailure(t *testing.T) {
	f := &fakeFetcher{
		pages: []fakePage{{items: reviewRows(1, 12), next: nextEnabledRow}},
		stuck: true,
	}
	fx := newOrchestratorFixture(t, f)

	counts, err := fx.orch.Run(context.Background(), []models.ProductRecord{
		product("Laptop A", "https://example.com/a"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, counts.PartiallyFailed)
	assert.Equal(t, 12, counts.Reviews)

	// Collected pages survive the stall.
	saved := readResults(t, fx.dir)
	require.Len(t, saved, 1)
	assert.Len(t, saved[0].Reviews, 12)

	entries := fx.ledger.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusPartiallyFailed, entries[0].Status)
	assert.Equal(t, 3, entries[0].LastPageAttempted)
}

func TestOrchestratorSectionNotFoundIsPartialFailure(t *testing.T) {
	f := &fakeFetcher{
		pages: reviewPages(5, 1),
		sectionWaitErrs: []error{
			fetch.ErrInteractionTimeout,
			fetch.ErrInteractionTimeout,
		},
	}
	fx := newOrchestratorFixture(t, f)

	counts, err := fx.orch.Run(context.Background(), []models.ProductRecord{
		product("Laptop A", "https://example.com/a"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.PartiallyFailed)
	assert.Zero(t, counts.Reviews)
}

func TestOrchestratorRerunOverwritesInsteadOfDuplicating(t *testing.T) {
	// First run fails region selection; second run succeeds. The product
	// must appear once, with the second run's reviews.
	f := &fakeFetcher{pages: reviewPages(5, 1), regionErr: fetch.ErrElementNotFound}
	fx := newOrchestratorFixture(t, f)

	products := []models.ProductRecord{product("Laptop A", "https://example.com/a")}

	_, err := fx.orch.Run(context.Background(), products)
	require.NoError(t, err)

	f.regionErr = nil
	counts, err := fx.orch.Run(context.Background(), products)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Completed)

	saved := readResults(t, fx.dir)
	require.Len(t, saved, 1)
	assert.Len(t, saved[0].Reviews, 5)
	assert.True(t, fx.ledger.Completed("https://example.com/a"))
}

func TestOrchestratorReturnsWhenNoFetchSessionOpens(t *testing.T) {
	dir := t.TempDir()

	led, err := ledger.NewFileLedger(filepath.Join(dir, "run_state.json"))
	require.NoError(t, err)

	results, err := ledger.NewResultStore(filepath.Join(dir, "reviews.json"))
	require.NoError(t, err)

	factory := func(context.Context) (fetch.Fetcher, error) {
		return nil, fmt.Errorf("browser context is gone")
	}

	orch := NewOrchestrator(factory, testRunContext(), led, results, events.NoopPublisher{}, OrchestratorOptions{
		Workers: 1,
	})

	// With the whole pool dead nobody consumes the work channel; Run must
	// still come back with the session error instead of blocking on the
	// first send.
	done := make(chan error, 1)
	go func() {
		_, err := orch.Run(context.Background(), []models.ProductRecord{
			product("Laptop A", "https://example.com/a"),
			product("Laptop B", "https://example.com/b"),
		})
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open fetch session")
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after every worker failed to open a session")
	}

	assert.Empty(t, led.Snapshot())
}

// cancelingFetcher cancels the run on its first extraction, simulating a
// stop signal arriving while a product is mid-pagination.
type cancelingFetcher struct {
	*fakeFetcher
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelingFetcher) Extract(ctx context.Context, h fetch.DocumentHandle, s fetch.Schema) ([]fetch.Fields, error) {
	c.once.Do(c.cancel)
	return c.fakeFetcher.Extract(ctx, h, s)
}

func TestOrchestratorCancellationLeavesInFlightProductUnmarked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := &fakeFetcher{pages: reviewPages(5, 1)}
	fx := newOrchestratorFixture(t, &cancelingFetcher{fakeFetcher: inner, cancel: cancel})

	counts, err := fx.orch.Run(ctx, []models.ProductRecord{
		product("Laptop A", "https://example.com/a"),
		product("Laptop B", "https://example.com/b"),
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, counts.Finalized())

	// The interrupted product stays unmarked so the next run retries it,
	// and the second product is never fetched at all.
	assert.Empty(t, fx.ledger.Snapshot())
	assert.Equal(t, 1, inner.navigations)

	_, statErr := os.Stat(filepath.Join(fx.dir, "reviews.json"))
	assert.True(t, os.IsNotExist(statErr), "nothing may be persisted for an interrupted product")
}

func TestProcessProductTerminalStatus(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		f := &fakeFetcher{pages: reviewPages(5, 1)}
		fx := newOrchestratorFixture(t, f)

		status := fx.orch.processProduct(context.Background(), f, fx.orch.logger, product("Laptop A", "https://example.com/a"))
		assert.Equal(t, models.StatusCompleted, status)
	})

	t.Run("region failure", func(t *testing.T) {
		f := &fakeFetcher{pages: reviewPages(5, 1), regionErr: fetch.ErrElementNotFound}
		fx := newOrchestratorFixture(t, f)

		status := fx.orch.processProduct(context.Background(), f, fx.orch.logger, product("Laptop A", "https://example.com/a"))
		assert.Equal(t, models.StatusSkipped, status)
	})

	t.Run("interrupted yields no status", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		f := &fakeFetcher{pages: reviewPages(5, 1)}
		fx := newOrchestratorFixture(t, f)

		status := fx.orch.processProduct(ctx, f, fx.orch.logger, product("Laptop A", "https://example.com/a"))
		assert.Empty(t, string(status))
		assert.Empty(t, fx.ledger.Snapshot())
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		reviews int
		want    models.ProductStatus
	}{
		{"no error", nil, 10, models.StatusCompleted},
		{"region failure", &RegionSelectionError{URL: "u"}, 0, models.StatusSkipped},
		{"section not found", &ReviewsSectionNotFoundError{URL: "u", Attempts: 3}, 0, models.StatusPartiallyFailed},
		{"stuck with reviews", &NavigationStuckError{URL: "u", Page: 4}, 30, models.StatusPartiallyFailed},
		{"parse failure with partial data", &ParseFailureError{URL: "u"}, 8, models.StatusPartiallyFailed},
		{"parse failure with nothing", &ParseFailureError{URL: "u"}, 0, models.StatusSkipped},
		{"fetch exhausted", &FetchExhaustedError{URL: "u", Attempts: 3}, 0, models.StatusSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err, tt.reviews))
		})
	}
}
