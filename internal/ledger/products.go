package ledger

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/models"
)

// SaveProducts writes the listing phase's product set as a JSON array.
func SaveProducts(path string, products []models.ProductRecord) error {
	data, err := marshalIndent(products)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// LoadProducts reads a product set previously written by SaveProducts. The
// review phase refuses to run without it.
func LoadProducts(path string) ([]models.ProductRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read products %s: %w", path, err)
	}

	var products []models.ProductRecord
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parse products %s: %w", path, err)
	}

	return products, nil
}
