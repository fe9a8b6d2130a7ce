package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/models"
)

// FileLedger keeps run state in a single JSON file, rewritten atomically on
// every Mark. Good enough for single-process runs; use the postgres backend
// when several scrapers share state.
type FileLedger struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
}

func NewFileLedger(path string) (*FileLedger, error) {
	l := &FileLedger{
		path:    path,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}
	for _, e := range entries {
		l.entries[e.URL] = e
	}

	return l, nil
}

func (l *FileLedger) Completed(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[url]
	return ok && e.Status == models.StatusCompleted
}

func (l *FileLedger) Mark(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[e.URL] = e
	return l.flushLocked()
}

func (l *FileLedger) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	return out
}

func (l *FileLedger) Close() error {
	return nil
}

func (l *FileLedger) flushLocked() error {
	entries := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}

	data, err := marshalIndent(entries)
	if err != nil {
		return err
	}
	return writeFileAtomic(l.path, data)
}
