package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/fetch"
)

// fakePage is one scripted page state: its repeated items plus the rows the
// next-control probe sees (nil means no control at all).
type fakePage struct {
	items []fetch.Fields
	next  []fetch.Fields
}

type fakeHandle struct {
	url string
}

func (h fakeHandle) URL() string { return h.url }

// fakeFetcher plays back a scripted sequence of pages. Extract dispatches on
// the schema root so item and next-control probes hit the same page state.
type fakeFetcher struct {
	pages []fakePage
	idx   int

	navErrs     []error
	navigations int

	regionErr       error
	sectionWaitErrs []error
	clickErr        error

	// extractErr fires once idx reaches extractErrPage.
	extractErr     error
	extractErrPage int

	// stuck freezes idx so clicks stop advancing, simulating a next
	// control that no longer does anything.
	stuck bool

	clicks  int
	scrolls int
}

func (f *fakeFetcher) Navigate(_ context.Context, url string) (fetch.DocumentHandle, error) {
	var err error
	if f.navigations < len(f.navErrs) {
		err = f.navErrs[f.navigations]
	}
	f.navigations++
	if err != nil {
		return nil, err
	}
	return fakeHandle{url: url}, nil
}

func (f *fakeFetcher) Interact(_ context.Context, _ fetch.DocumentHandle, d fetch.Directive) error {
	switch d.Kind {
	case fetch.KindSelectRegion:
		return f.regionErr
	case fetch.KindScrollToFraction:
		f.scrolls++
		return nil
	case fetch.KindWaitForSelector:
		if d.Selector == reviewsSectionSelector && len(f.sectionWaitErrs) > 0 {
			err := f.sectionWaitErrs[0]
			f.sectionWaitErrs = f.sectionWaitErrs[1:]
			return err
		}
		return nil
	case fetch.KindClickSelector:
		if f.clickErr != nil {
			return f.clickErr
		}
		f.clicks++
		if !f.stuck && f.idx < len(f.pages)-1 {
			f.idx++
		}
		return nil
	}
	return fmt.Errorf("unexpected directive %q", d.Kind)
}

func (f *fakeFetcher) Extract(_ context.Context, _ fetch.DocumentHandle, s fetch.Schema) ([]fetch.Fields, error) {
	if f.extractErr != nil && f.idx >= f.extractErrPage {
		return nil, f.extractErr
	}
	if len(f.pages) == 0 {
		return nil, nil
	}

	page := f.pages[f.idx]
	switch s.Root {
	case listingItemSelector, reviewItemSelector:
		return page.items, nil
	case listingNextSelector, reviewNextSelector:
		return page.next, nil
	}
	return nil, fmt.Errorf("unexpected schema root %q", s.Root)
}

func (f *fakeFetcher) Screenshot(context.Context, fetch.DocumentHandle, string) error {
	return nil
}

func (f *fakeFetcher) Close() error { return nil }

func testRunContext() *RunContext {
	return NewRunContext(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var (
	nextEnabledRow  = []fetch.Fields{{"disabled": "false", "class": "page next"}}
	nextDisabledRow = []fetch.Fields{{"disabled": "true", "class": "page next disabled"}}
)

func listingRow(name, url string) fetch.Fields {
	return fetch.Fields{
		"name":         name,
		"url":          url,
		"price":        "$499.99",
		"rating":       "4.5",
		"review_count": "(1,234)",
	}
}

func reviewRows(page, n int) []fetch.Fields {
	rows := make([]fetch.Fields, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, fetch.Fields{
			"title":       fmt.Sprintf("Review p%d #%d", page, i),
			"description": fmt.Sprintf("Body of review %d on page %d", i, page),
		})
	}
	return rows
}
