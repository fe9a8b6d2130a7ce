package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/models"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS review_run_ledger (
	url                 TEXT PRIMARY KEY,
	status              TEXT NOT NULL,
	failure_reason      TEXT NOT NULL DEFAULT '',
	reviews             INTEGER NOT NULL DEFAULT 0,
	last_page_attempted INTEGER NOT NULL DEFAULT 0,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_review_run_ledger_status ON review_run_ledger(status);
`

// PostgresLedger stores run state in Postgres so multiple scraper processes
// can share one resume set. Completed URLs are cached at open; Mark writes
// through to the table and updates the cache.
type PostgresLedger struct {
	pool *pgxpool.Pool

	mu        sync.Mutex
	completed map[string]struct{}
}

func NewPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, ledgerSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}

	l := &PostgresLedger{
		pool:      pool,
		completed: make(map[string]struct{}),
	}
	if err := l.loadCompleted(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return l, nil
}

func (l *PostgresLedger) loadCompleted(ctx context.Context) error {
	rows, err := l.pool.Query(ctx,
		`SELECT url FROM review_run_ledger WHERE status = $1`,
		string(models.StatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("load completed urls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return fmt.Errorf("scan completed url: %w", err)
		}
		l.completed[url] = struct{}{}
	}

	return rows.Err()
}

func (l *PostgresLedger) Completed(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.completed[url]
	return ok
}

func (l *PostgresLedger) Mark(ctx context.Context, e Entry) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO review_run_ledger (url, status, failure_reason, reviews, last_page_attempted, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (url) DO UPDATE SET
			status              = EXCLUDED.status,
			failure_reason      = EXCLUDED.failure_reason,
			reviews             = EXCLUDED.reviews,
			last_page_attempted = EXCLUDED.last_page_attempted,
			updated_at          = now()`,
		e.URL, string(e.Status), e.FailureReason, e.Reviews, e.LastPageAttempted,
	)
	if err != nil {
		return fmt.Errorf("mark product %s: %w", e.URL, err)
	}

	l.mu.Lock()
	if e.Status == models.StatusCompleted {
		l.completed[e.URL] = struct{}{}
	} else {
		delete(l.completed, e.URL)
	}
	l.mu.Unlock()

	return nil
}

func (l *PostgresLedger) Snapshot() []Entry {
	ctx := context.Background()

	rows, err := l.pool.Query(ctx,
		`SELECT url, status, failure_reason, reviews, last_page_attempted, updated_at FROM review_run_ledger`,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.URL, &status, &e.FailureReason, &e.Reviews, &e.LastPageAttempted, &e.UpdatedAt); err != nil {
			return out
		}
		e.Status = models.ProductStatus(status)
		out = append(out, e)
	}

	return out
}

func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}
