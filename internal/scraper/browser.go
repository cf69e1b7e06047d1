package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// ImageCandidate is an image found in the content root together with its
// decoded pixel dimensions, measured in-page since static HTML carries no
// natural sizes.
type ImageCandidate struct {
	Src    string `json:"src"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// PageCapture is everything one browser pass yields about a page.
type PageCapture struct {
	FinalURL string
	HTML     string
	Images   []ImageCandidate
}

// Browser is the narrow surface the scraper needs from a headless engine.
// Keeping it this small lets the pipeline logic run against fakes in tests.
type Browser interface {
	CapturePage(ctx context.Context, pageURL string) (*PageCapture, error)
}

// BrowserOptions configures the chromedp-backed Browser.
type BrowserOptions struct {
	NavigationTimeout  time.Duration
	PageTimeout        time.Duration
	UserAgent          string
	ConcurrentSessions int
	DisableHeadless    bool
}

// ChromeBrowser executes headless Chrome sessions using chromedp. A fresh
// allocator, browser context, and page are created per capture and released on
// every exit path; instances are never shared across concurrent scrapes.
type ChromeBrowser struct {
	opts      BrowserOptions
	semaphore chan struct{}
	logger    *slog.Logger
}

// NewChromeBrowser constructs a browser with bounded session concurrency.
func NewChromeBrowser(opts BrowserOptions, logger *slog.Logger) *ChromeBrowser {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 15 * time.Second
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 10 * time.Second
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeBrowser{
		opts:      opts,
		semaphore: make(chan struct{}, opts.ConcurrentSessions),
		logger:    logger,
	}
}

// CapturePage navigates to the target URL, waits for the document to settle,
// dismisses overlays best-effort, and exports the final DOM plus measured
// image candidates.
func (b *ChromeBrowser) CapturePage(parentCtx context.Context, pageURL string) (*PageCapture, error) {
	select {
	case b.semaphore <- struct{}{}:
		defer func() { <-b.semaphore }()
	case <-parentCtx.Done():
		return nil, parentCtx.Err()
	}

	logger := b.logger.With("url", pageURL)

	ctx, cancel := context.WithTimeout(parentCtx, b.opts.NavigationTimeout+b.opts.PageTimeout)
	defer cancel()

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", !b.opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	}
	if b.opts.UserAgent != "" {
		execOpts = append(execOpts, chromedp.UserAgent(b.opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	start := time.Now()

	navCtx, navCancel := context.WithTimeout(chromeCtx, b.opts.NavigationTimeout)
	err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		waitForDocumentReady(logger),
		chromedp.Sleep(250*time.Millisecond),
	)
	navCancel()
	if err != nil {
		logger.Error("navigation failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}

	// Overlay dismissal is advisory; failures are swallowed.
	overlayCtx, overlayCancel := context.WithTimeout(chromeCtx, 2*time.Second)
	var dismissed string
	if err := chromedp.Run(overlayCtx, chromedp.Evaluate(dismissOverlaysJS, &dismissed)); err != nil {
		logger.Debug("overlay dismissal failed", "error", err)
	} else if dismissed != "" {
		logger.Debug("overlay dismissed", "selector", dismissed)
	}
	overlayCancel()

	capCtx, capCancel := context.WithTimeout(chromeCtx, b.opts.PageTimeout)
	defer capCancel()

	var html, finalURL string
	images := []ImageCandidate{}
	err = chromedp.Run(capCtx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.Evaluate(collectImagesJS, &images),
	)
	if err != nil {
		logger.Error("dom capture failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	if finalURL == "" {
		finalURL = pageURL
	}
	logger.Debug("page captured",
		"latency_ms", time.Since(start).Milliseconds(),
		"final_url", finalURL,
		"html_bytes", len(html),
		"images", len(images),
	)
	return &PageCapture{FinalURL: finalURL, HTML: html, Images: images}, nil
}

func waitForDocumentReady(logger *slog.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var readyState string
			if err := chromedp.Evaluate(`document.readyState`, &readyState).Do(ctx); err != nil {
				return err
			}
			if readyState == "complete" {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				if logger != nil {
					logger.Warn("document ready wait cancelled", "error", ctx.Err())
				}
				return ctx.Err()
			}
		}
	})
}

const dismissOverlaysJS = `(() => {
	const selectors = [
		'[title="Close"]', '[title="Zavřít"]',
		'[aria-label="Close"]', '[aria-label="Zavřít"]',
		'.popup-close', '.modal-close', '.overlay-close',
	];
	const visible = (el) => el && el.offsetParent !== null;
	for (const sel of selectors) {
		const el = document.querySelector(sel);
		if (visible(el)) { el.click(); return sel; }
	}
	const labels = ['accept', 'agree', 'přijmout', 'souhlasím'];
	for (const btn of document.querySelectorAll('button')) {
		const text = (btn.textContent || '').trim().toLowerCase();
		if (visible(btn) && labels.some((l) => text.includes(l))) {
			btn.click();
			return 'button:' + text;
		}
	}
	return '';
})()`

const collectImagesJS = `(() => {
	const root = document.querySelector('main')
		|| document.querySelector('section')
		|| document.body;
	return Array.from(root.querySelectorAll('img'))
		.map((img) => ({
			src: img.currentSrc || img.src || '',
			width: img.naturalWidth || img.width || 0,
			height: img.naturalHeight || img.height || 0,
		}))
		.filter((i) => i.src && i.width && i.height);
})()`
