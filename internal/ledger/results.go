package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/models"
)

// ResultStore owns the enriched-products output file. Every Upsert rewrites
// the whole file atomically, keyed and ordered by first appearance of the
// product URL, so readers always see a valid JSON array and a crash loses at
// most the product being written.
type ResultStore struct {
	mu    sync.Mutex
	path  string
	order []string
	byURL map[string]*models.ReviewedProduct
}

func NewResultStore(path string) (*ResultStore, error) {
	s := &ResultStore{
		path:  path,
		byURL: make(map[string]*models.ReviewedProduct),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read results %s: %w", path, err)
	}

	var products []*models.ReviewedProduct
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parse results %s: %w", path, err)
	}
	for _, p := range products {
		if _, dup := s.byURL[p.URL]; dup {
			continue
		}
		s.order = append(s.order, p.URL)
		s.byURL[p.URL] = p
	}

	return s, nil
}

// Upsert replaces or appends one product and flushes the file. Re-running a
// product overwrites its previous entry instead of duplicating it.
func (s *ResultStore) Upsert(p *models.ReviewedProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byURL[p.URL]; !ok {
		s.order = append(s.order, p.URL)
	}
	s.byURL[p.URL] = p

	return s.flushLocked()
}

// Len reports how many products are currently persisted.
func (s *ResultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *ResultStore) flushLocked() error {
	products := make([]*models.ReviewedProduct, 0, len(s.order))
	for _, url := range s.order {
		products = append(products, s.byURL[url])
	}

	data, err := marshalIndent(products)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}
