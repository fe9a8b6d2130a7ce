package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for both crawl phases.
type Metrics struct {
	Registry          *prometheus.Registry
	PagesFetchedTotal *prometheus.CounterVec
	PageFetchDuration prometheus.Histogram
	FetchRetriesTotal prometheus.Counter
	ProductsTotal     *prometheus.CounterVec
	ReviewsTotal      prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pagesFetched := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_fetched_total",
			Help: "Pages fetched, by crawl phase.",
		},
		[]string{"phase"},
	)
	pageFetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_page_fetch_duration_seconds",
			Help:    "Latency of navigation to a usable document.",
			Buckets: prometheus.DefBuckets,
		},
	)
	fetchRetries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_fetch_retries_total",
			Help: "Navigation retry attempts.",
		},
	)
	productsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_products_total",
			Help: "Products finalized, by terminal status.",
		},
		[]string{"status"},
	)
	reviewsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_reviews_collected_total",
			Help: "Review entries collected across all products.",
		},
	)

	registry.MustRegister(pagesFetched, pageFetchDuration, fetchRetries, productsTotal, reviewsTotal)

	return &Metrics{
		Registry:          registry,
		PagesFetchedTotal: pagesFetched,
		PageFetchDuration: pageFetchDuration,
		FetchRetriesTotal: fetchRetries,
		ProductsTotal:     productsTotal,
		ReviewsTotal:      reviewsTotal,
	}
}

// IncPage increments the fetched-pages counter for a phase.
func (m *Metrics) IncPage(phase string) {
	if m == nil {
		return
	}
	m.PagesFetchedTotal.WithLabelValues(phase).Inc()
}

// ObserveFetch records how long a navigation took.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.PageFetchDuration.Observe(d.Seconds())
}

// IncRetry increments the navigation retry counter.
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.FetchRetriesTotal.Inc()
}

// IncProduct increments the finalized-products counter for a status.
func (m *Metrics) IncProduct(status string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(status).Inc()
}

// AddReviews adds to the collected-reviews counter.
func (m *Metrics) AddReviews(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReviewsTotal.Add(float64(n))
}
