package crawler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/fetch"
	"github.com/ecomlytics/bestbuy-review-scraper/internal/models"
)

const phaseReviews = "reviews"

const (
	reviewsSectionSelector = ".reviews-list"
	reviewItemSelector     = ".review-item"
	reviewNextSelector     = ".reviews-pagination li.page.next a"
)

var reviewSchema = fetch.Schema{
	Root: reviewItemSelector,
	Fields: map[string]fetch.FieldSpec{
		"title":       {Selector: "h4.review-title"},
		"description": {Selector: "p.pre-white-space"},
	},
}

var reviewNextSchema = fetch.Schema{
	Root: reviewNextSelector,
	Fields: map[string]fetch.FieldSpec{
		"disabled": {Attr: "aria-disabled"},
		"class":    {Attr: "class"},
	},
}

// stallLimit is how many consecutive unchanged page transitions are
// tolerated before pagination is declared stuck.
const stallLimit = 2

// ReviewOptions tunes the per-product pagination state machine.
type ReviewOptions struct {
	// Region is forced before anything else; review visibility is
	// region-gated.
	Region string
	// ScrollFraction of total page height used to trigger the lazy-loaded
	// reviews UI. Below 1.0 on purpose: the very bottom of the page fires
	// unrelated widgets first.
	ScrollFraction float64
	ScrollAttempts int
	ScrollWait     time.Duration
	// MaxPages bounds traversal even if the stall guard never fires.
	MaxPages int
}

// ReviewPaginator drives review pagination for a single product page:
// region selection, lazy-load discovery, per-page extraction, next-control
// detection, and the anti-stall guard.
type ReviewPaginator struct {
	fetcher fetch.Fetcher
	rc      *RunContext
	logger  *slog.Logger
	opts    ReviewOptions
}

func NewReviewPaginator(f fetch.Fetcher, rc *RunContext, opts ReviewOptions) *ReviewPaginator {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	if opts.ScrollAttempts < 1 {
		opts.ScrollAttempts = 1
	}

	return &ReviewPaginator{
		fetcher: f,
		rc:      rc,
		logger:  rc.Logger.With("component", "review_paginator"),
		opts:    opts,
	}
}

// PaginateReviews walks every review page of the product behind handle and
// returns the entries in discovery order plus the number of pages
// traversed. On RegionSelectionError or ReviewsSectionNotFoundError no
// entries exist; on NavigationStuckError or a mid-walk extraction error the
// entries collected before the failure are returned with it.
func (p *ReviewPaginator) PaginateReviews(ctx context.Context, handle fetch.DocumentHandle) ([]models.ReviewEntry, int, error) {
	url := handle.URL()

	if err := p.fetcher.Interact(ctx, handle, fetch.SelectRegion(p.opts.Region)); err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, &RegionSelectionError{URL: url, Err: err}
	}

	if err := p.locateReviewsSection(ctx, handle); err != nil {
		return nil, 0, err
	}

	reviews := make([]models.ReviewEntry, 0)
	var prevCount int
	var prevFirst string
	stall := 0
	pages := 0

	for pageNum := 1; pageNum <= p.opts.MaxPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return reviews, pages, err
		}

		pages = pageNum
		p.rc.Metrics.IncPage(phaseReviews)

		entries, err := p.extractPage(ctx, handle)
		if err != nil {
			return reviews, pages, err
		}

		// Anti-stall guard: a next click that leaves the extracted set
		// unchanged (same count, same first title) must not re-append.
		unchanged := pageNum > 1 && len(entries) == prevCount && firstTitle(entries) == prevFirst
		if unchanged {
			stall++
			if stall >= stallLimit {
				return reviews, pages, &NavigationStuckError{URL: url, Page: pageNum}
			}
		} else {
			stall = 0
			reviews = append(reviews, entries...)
			prevCount = len(entries)
			prevFirst = firstTitle(entries)
		}

		state, err := nextControlState(ctx, p.fetcher, handle, reviewNextSchema)
		if err != nil {
			return reviews, pages, err
		}

		switch state {
		case nextAbsent:
			p.logger.Debug("no review pagination control", "url", url, "pages", pages)
			return reviews, pages, nil
		case nextDisabled:
			p.logger.Debug("last review page reached", "url", url, "pages", pages)
			return reviews, pages, nil
		}

		if err := p.advance(ctx, handle); err != nil {
			if errors.Is(err, fetch.ErrElementNotFound) {
				// Control vanished between the probe and the click; the set
				// we have is the whole set.
				return reviews, pages, nil
			}
			return reviews, pages, err
		}
	}

	p.logger.Warn("review page cap reached", "url", url, "cap", p.opts.MaxPages)
	return reviews, pages, nil
}

// locateReviewsSection scrolls to the configured fraction of page height and
// waits for the reviews UI, up to the attempt budget.
func (p *ReviewPaginator) locateReviewsSection(ctx context.Context, handle fetch.DocumentHandle) error {
	url := handle.URL()

	for attempt := 1; attempt <= p.opts.ScrollAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := p.fetcher.Interact(ctx, handle, fetch.ScrollToFraction(p.opts.ScrollFraction)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("scroll failed", "url", url, "attempt", attempt, "error", err)
			continue
		}

		err := p.fetcher.Interact(ctx, handle, fetch.WaitForSelector(reviewsSectionSelector, p.opts.ScrollWait))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, fetch.ErrInteractionTimeout) || errors.Is(err, fetch.ErrElementNotFound) {
			p.logger.Debug("reviews section not visible yet", "url", url, "attempt", attempt)
			continue
		}

		return err
	}

	return &ReviewsSectionNotFoundError{URL: url, Attempts: p.opts.ScrollAttempts}
}

func (p *ReviewPaginator) extractPage(ctx context.Context, handle fetch.DocumentHandle) ([]models.ReviewEntry, error) {
	rows, err := p.fetcher.Extract(ctx, handle, reviewSchema)
	if err != nil {
		return nil, &ParseFailureError{URL: handle.URL(), Err: err}
	}

	entries := make([]models.ReviewEntry, 0, len(rows))
	for _, row := range rows {
		entry := models.ReviewEntry{
			Title:       row["title"],
			Description: row["description"],
		}
		if entry.Empty() {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// advance clicks the next control and waits for review items to settle. A
// wait timeout is tolerated: if the click silently failed, the stall guard
// catches it on the next extraction.
func (p *ReviewPaginator) advance(ctx context.Context, handle fetch.DocumentHandle) error {
	var lastErr error

	for i := 0; i < 2; i++ {
		err := p.fetcher.Interact(ctx, handle, fetch.ClickSelector(reviewNextSelector))
		if err == nil {
			lastErr = nil
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, fetch.ErrElementNotFound) {
			return err
		}
		lastErr = err
		p.logger.Warn("next-review-page click failed", "attempt", i+1, "error", err)
	}
	if lastErr != nil {
		return lastErr
	}

	if err := p.fetcher.Interact(ctx, handle, fetch.WaitForSelector(reviewItemSelector, p.opts.ScrollWait)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Debug("review items slow to settle after click", "error", err)
	}

	return nil
}

func firstTitle(entries []models.ReviewEntry) string {
	if len(entries) == 0 {
		return ""
	}
	return entries[0].Title
}
