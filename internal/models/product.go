package models

// ProductStatus is the terminal classification of one product in a review
// run. A product is finalized exactly once; the status recorded in the run
// ledger decides whether a later run revisits it.
type ProductStatus string

const (
	// StatusCompleted means every review page was traversed and persisted.
	StatusCompleted ProductStatus = "completed"
	// StatusPartiallyFailed means some data was lost (reviews section never
	// loaded, or pagination broke mid-way) but whatever was collected is kept.
	StatusPartiallyFailed ProductStatus = "partially_failed"
	// StatusSkipped means the product yielded nothing: region selection or
	// navigation failed before a single review was extracted.
	StatusSkipped ProductStatus = "skipped"
)

// ProductRecord is one search listing result. URL is the unique key; records
// are immutable once emitted by the listing crawler.
type ProductRecord struct {
	Name        string `json:"product_name"`
	Price       string `json:"price,omitempty"`
	Rating      string `json:"rating,omitempty"`
	ReviewCount *int   `json:"number_of_reviews,omitempty"`
	URL         string `json:"url"`
}

// ReviewEntry is a single customer review. Entries have no identity of their
// own; ordering is discovery order across review pages.
type ReviewEntry struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Empty reports whether an entry carries no content at all. Such entries are
// extraction noise and are dropped.
func (e ReviewEntry) Empty() bool {
	return e.Title == "" && e.Description == ""
}

// ReviewedProduct is a ProductRecord enriched with its scraped reviews.
// Status and FailureReason live in the run ledger, not the output file, so
// they are excluded from the JSON wire format.
type ReviewedProduct struct {
	Name        string        `json:"product_name"`
	Price       string        `json:"product_price,omitempty"`
	Rating      string        `json:"rating,omitempty"`
	ReviewCount *int          `json:"number_of_reviews,omitempty"`
	URL         string        `json:"product_url"`
	Reviews     []ReviewEntry `json:"reviews"`

	Status        ProductStatus `json:"-"`
	FailureReason string        `json:"-"`
}

// NewReviewedProduct carries a product record over into the review phase
// with an empty, non-nil review list.
func NewReviewedProduct(p ProductRecord) *ReviewedProduct {
	return &ReviewedProduct{
		Name:        p.Name,
		Price:       p.Price,
		Rating:      p.Rating,
		ReviewCount: p.ReviewCount,
		URL:         p.URL,
		Reviews:     make([]ReviewEntry, 0),
	}
}
