package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/models"
)

func TestFileLedgerStartsEmpty(t *testing.T) {
	l, err := NewFileLedger(filepath.Join(t.TempDir(), "run_state.json"))
	require.NoError(t, err)

	assert.False(t, l.Completed("https://example.com/a"))
	assert.Empty(t, l.Snapshot())
}

func TestFileLedgerMarkAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_state.json")

	l, err := NewFileLedger(path)
	require.NoError(t, err)

	require.NoError(t, l.Mark(context.Background(), Entry{
		URL:               "https://example.com/a",
		Status:            models.StatusCompleted,
		Reviews:           54,
		LastPageAttempted: 3,
		UpdatedAt:         time.Now(),
	}))
	require.NoError(t, l.Mark(context.Background(), Entry{
		URL:           "https://example.com/b",
		Status:        models.StatusSkipped,
		FailureReason: "region selection failed",
	}))

	// A fresh ledger over the same file sees the previous run's state.
	reloaded, err := NewFileLedger(path)
	require.NoError(t, err)

	assert.True(t, reloaded.Completed("https://example.com/a"))
	assert.False(t, reloaded.Completed("https://example.com/b"))
	assert.Len(t, reloaded.Snapshot(), 2)
}

func TestFileLedgerOnlyCompletedCountsAsDone(t *testing.T) {
	l, err := NewFileLedger(filepath.Join(t.TempDir(), "run_state.json"))
	require.NoError(t, err)

	for _, status := range []models.ProductStatus{models.StatusPartiallyFailed, models.StatusSkipped} {
		require.NoError(t, l.Mark(context.Background(), Entry{
			URL:    "https://example.com/x",
			Status: status,
		}))
		assert.False(t, l.Completed("https://example.com/x"), "status %s must be retried", status)
	}

	require.NoError(t, l.Mark(context.Background(), Entry{
		URL:    "https://example.com/x",
		Status: models.StatusCompleted,
	}))
	assert.True(t, l.Completed("https://example.com/x"))

	// Re-marking keeps one entry per URL.
	assert.Len(t, l.Snapshot(), 1)
}
