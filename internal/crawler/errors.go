package crawler

import "fmt"

// FetchExhaustedError means navigation retries for one page ran out.
type FetchExhaustedError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("fetch exhausted after %d attempts for %s: %v", e.Attempts, e.URL, e.Err)
}

func (e *FetchExhaustedError) Unwrap() error {
	return e.Err
}

// ParseFailureError means the page structure was not recognized. Not
// retryable.
type ParseFailureError struct {
	URL string
	Err error
}

func (e *ParseFailureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("page structure not recognized at %s", e.URL)
	}
	return fmt.Sprintf("page structure not recognized at %s: %v", e.URL, e.Err)
}

func (e *ParseFailureError) Unwrap() error {
	return e.Err
}

// RegionSelectionError means the country interstitial could not be
// dismissed. Fatal for the product: region-gated reviews are unreachable.
type RegionSelectionError struct {
	URL string
	Err error
}

func (e *RegionSelectionError) Error() string {
	return fmt.Sprintf("region selection failed for %s: %v", e.URL, e.Err)
}

func (e *RegionSelectionError) Unwrap() error {
	return e.Err
}

// ReviewsSectionNotFoundError means the lazy-loaded reviews UI never
// appeared within the scroll/wait budget. The run continues; the product is
// partially failed with zero reviews.
type ReviewsSectionNotFoundError struct {
	URL      string
	Attempts int
}

func (e *ReviewsSectionNotFoundError) Error() string {
	return fmt.Sprintf("reviews section did not appear after %d scroll attempts for %s", e.Attempts, e.URL)
}

// NavigationStuckError means consecutive next-page clicks did not change the
// extracted content. Pages collected before the stall are kept.
type NavigationStuckError struct {
	URL  string
	Page int
}

func (e *NavigationStuckError) Error() string {
	return fmt.Sprintf("review pagination stuck at page %d for %s", e.Page, e.URL)
}
