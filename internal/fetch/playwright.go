package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/browser"
)

// Selectors for the country interstitial the site shows to first-time
// sessions. Review content is region-gated behind it.
const (
	regionPromptSelector = `h1:has-text("Choose a country.")`
	regionOptionSelector = `h4:has-text(%q)`
)

// PlaywrightFetcher drives one browser tab. It implements Fetcher; one
// instance per worker.
type PlaywrightFetcher struct {
	page          playwright.Page
	timeout       time.Duration
	screenshotDir string
	logger        *slog.Logger
}

type pageHandle struct {
	page playwright.Page
}

func (h *pageHandle) URL() string {
	return h.page.URL()
}

// NewPlaywright opens a fresh tab on b and returns a session bound to it.
func NewPlaywright(b *browser.Browser, screenshotDir string) (*PlaywrightFetcher, error) {
	page, err := b.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &PlaywrightFetcher{
		page:          page,
		timeout:       b.Timeout(),
		screenshotDir: screenshotDir,
		logger:        slog.Default().With("component", "fetcher"),
	}, nil
}

func (f *PlaywrightFetcher) Navigate(ctx context.Context, url string) (DocumentHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, err := f.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(f.timeout.Milliseconds())),
	})
	if err != nil {
		return nil, &NavigationError{URL: url, Err: err}
	}

	return &pageHandle{page: f.page}, nil
}

func (f *PlaywrightFetcher) Interact(ctx context.Context, h DocumentHandle, d Directive) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ph, ok := h.(*pageHandle)
	if !ok {
		return fmt.Errorf("handle does not belong to this fetcher")
	}

	switch d.Kind {
	case KindSelectRegion:
		return f.selectRegion(ph.page, d.Region)
	case KindScrollToFraction:
		_, err := ph.page.Evaluate(
			`f => window.scrollTo(0, document.body.scrollHeight * f)`, d.Fraction)
		if err != nil {
			return fmt.Errorf("scroll failed: %w", err)
		}
		return nil
	case KindClickSelector:
		return f.click(ph.page, d.Selector)
	case KindWaitForSelector:
		timeout := d.Timeout
		if timeout == 0 {
			timeout = f.timeout
		}
		_, err := ph.page.WaitForSelector(d.Selector, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		})
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInteractionTimeout, d.Selector)
		}
		return nil
	default:
		return fmt.Errorf("unknown directive kind %q", d.Kind)
	}
}

// selectRegion dismisses the country interstitial if present. An absent
// prompt is success; a present prompt with no matching option is not.
func (f *PlaywrightFetcher) selectRegion(page playwright.Page, region string) error {
	prompt := page.Locator(regionPromptSelector).First()
	count, err := prompt.Count()
	if err != nil {
		return fmt.Errorf("failed to probe region prompt: %w", err)
	}
	if count == 0 {
		return nil
	}

	f.logger.Info("country interstitial detected", "region", region)

	option := page.Locator(fmt.Sprintf(regionOptionSelector, region)).First()
	optCount, err := option.Count()
	if err != nil || optCount == 0 {
		return fmt.Errorf("%w: region option %q", ErrElementNotFound, region)
	}

	if err := option.Click(); err != nil {
		return fmt.Errorf("failed to click region option: %w", err)
	}

	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("page did not settle after region selection: %w", err)
	}

	return nil
}

func (f *PlaywrightFetcher) click(page playwright.Page, selector string) error {
	loc := page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil {
		return fmt.Errorf("failed to locate %s: %w", selector, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}

	if err := loc.Click(); err != nil {
		return fmt.Errorf("click on %s failed: %w", selector, err)
	}

	return nil
}

func (f *PlaywrightFetcher) Extract(ctx context.Context, h DocumentHandle, s Schema) ([]Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ph, ok := h.(*pageHandle)
	if !ok {
		return nil, fmt.Errorf("handle does not belong to this fetcher")
	}

	html, err := ph.page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page content: %w", err)
	}

	return EvaluateSchema(doc, s), nil
}

// Screenshot captures the full page into the screenshot dir. Best effort
// diagnostics; never consumed by crawl logic.
func (f *PlaywrightFetcher) Screenshot(ctx context.Context, h DocumentHandle, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ph, ok := h.(*pageHandle)
	if !ok {
		return fmt.Errorf("handle does not belong to this fetcher")
	}

	if err := os.MkdirAll(f.screenshotDir, 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	path := filepath.Join(f.screenshotDir, name)
	_, err := ph.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}

	f.logger.Debug("screenshot saved", "path", path)
	return nil
}

func (f *PlaywrightFetcher) Close() error {
	if f.page != nil && !f.page.IsClosed() {
		return f.page.Close()
	}
	return nil
}
