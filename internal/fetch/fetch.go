// Package fetch defines the page-fetch capability the crawlers depend on.
// The crawl logic only ever calls Navigate, Interact and Extract against an
// opaque DocumentHandle; Screenshot exists for diagnostics. Anything that
// knows about a real browser lives behind this interface.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DocumentHandle is an opaque reference to a rendered document. Callers never
// inspect its internals.
type DocumentHandle interface {
	URL() string
}

// Fetcher is one exclusive fetch session. Sessions are not safe for
// concurrent use; each worker owns its own.
type Fetcher interface {
	Navigate(ctx context.Context, url string) (DocumentHandle, error)
	Interact(ctx context.Context, h DocumentHandle, d Directive) error
	Extract(ctx context.Context, h DocumentHandle, s Schema) ([]Fields, error)
	Screenshot(ctx context.Context, h DocumentHandle, name string) error
	Close() error
}

type DirectiveKind string

const (
	KindSelectRegion     DirectiveKind = "select-region"
	KindScrollToFraction DirectiveKind = "scroll-to-fraction"
	KindClickSelector    DirectiveKind = "click-selector"
	KindWaitForSelector  DirectiveKind = "wait-for-selector"
)

// Directive is one interaction against a rendered document.
type Directive struct {
	Kind     DirectiveKind
	Selector string
	Region   string
	Fraction float64
	Timeout  time.Duration
}

func SelectRegion(region string) Directive {
	return Directive{Kind: KindSelectRegion, Region: region}
}

func ScrollToFraction(fraction float64) Directive {
	return Directive{Kind: KindScrollToFraction, Fraction: fraction}
}

func ClickSelector(selector string) Directive {
	return Directive{Kind: KindClickSelector, Selector: selector}
}

func WaitForSelector(selector string, timeout time.Duration) Directive {
	return Directive{Kind: KindWaitForSelector, Selector: selector, Timeout: timeout}
}

// FieldSpec names one value to pull out of a matched element. An empty
// Selector addresses the root element itself; an empty Attr reads text
// content.
type FieldSpec struct {
	Selector string
	Attr     string
}

// Schema describes a repeated extraction: one Fields map per element
// matching Root.
type Schema struct {
	Root   string
	Fields map[string]FieldSpec
}

type Fields map[string]string

var (
	// ErrElementNotFound is returned by Interact when the directive's target
	// does not exist in the document.
	ErrElementNotFound = errors.New("element not found")
	// ErrInteractionTimeout is returned when a wait-style directive runs out
	// of time.
	ErrInteractionTimeout = errors.New("interaction timed out")
)

// NavigationError wraps a failed navigation attempt.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}
