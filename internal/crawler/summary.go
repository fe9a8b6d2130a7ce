package crawler

import (
	"sync"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/models"
)

// SummaryCounts is a point-in-time view of review phase progress.
type SummaryCounts struct {
	Total           int `json:"total"`
	AlreadyDone     int `json:"already_done"`
	Completed       int `json:"completed"`
	PartiallyFailed int `json:"partially_failed"`
	Skipped         int `json:"skipped"`
	Reviews         int `json:"reviews"`
}

// Finalized counts products that reached a terminal status this run.
func (c SummaryCounts) Finalized() int {
	return c.Completed + c.PartiallyFailed + c.Skipped
}

// Summary accumulates run counters. Safe for concurrent use by the worker
// pool and the status API.
type Summary struct {
	mu     sync.Mutex
	counts SummaryCounts
}

func NewSummary() *Summary {
	return &Summary{}
}

func (s *Summary) setTotal(n int) {
	s.mu.Lock()
	s.counts.Total = n
	s.mu.Unlock()
}

func (s *Summary) recordResumed() {
	s.mu.Lock()
	s.counts.AlreadyDone++
	s.mu.Unlock()
}

func (s *Summary) record(status models.ProductStatus, reviews int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch status {
	case models.StatusCompleted:
		s.counts.Completed++
	case models.StatusPartiallyFailed:
		s.counts.PartiallyFailed++
	case models.StatusSkipped:
		s.counts.Skipped++
	}
	s.counts.Reviews += reviews
}

// Snapshot copies the current counters.
func (s *Summary) Snapshot() SummaryCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}
