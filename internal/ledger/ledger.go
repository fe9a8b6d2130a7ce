package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/models"
)

// Entry is the per-product run state. URL is the key. An entry exists only
// once the product has been finalized; in-flight products have no entry, so
// an interrupted run naturally revisits them.
type Entry struct {
	URL               string               `json:"url"`
	Status            models.ProductStatus `json:"status"`
	FailureReason     string               `json:"failure_reason,omitempty"`
	Reviews           int                  `json:"reviews"`
	LastPageAttempted int                  `json:"last_page_attempted"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// Ledger tracks which products a review run has finalized. Implementations
// must make Mark durable before returning: the orchestrator writes results
// first and marks second, so a marked product is always fully persisted.
type Ledger interface {
	// Completed reports whether url was finalized as completed in a
	// previous run. Partially failed and skipped products return false so
	// they are retried.
	Completed(url string) bool
	// Mark records the terminal state of one product.
	Mark(ctx context.Context, e Entry) error
	// Snapshot returns all known entries in unspecified order.
	Snapshot() []Entry
	Close() error
}

// writeFileAtomic writes data to path via a temp file and rename so readers
// never observe a torn file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}

	return nil
}

func marshalIndent(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return append(data, '\n'), nil
}
