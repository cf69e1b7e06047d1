// Package scraper renders menu pages in a headless browser and distills them
// into the plain-text form the extraction model consumes. The browser surface
// is kept deliberately thin; everything that can run over captured HTML does,
// so it stays unit-testable without Chrome.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"menuwatch/pkg/types"
)

var (
	// ErrNavigationFailed reports that the page never loaded.
	ErrNavigationFailed = errors.New("page navigation failed")
	// ErrExtractionFailed reports that the page loaded but its content could
	// not be captured or converted.
	ErrExtractionFailed = errors.New("content extraction failed")
)

// RemoteFetcher resolves redirects and downloads candidate menu images.
type RemoteFetcher interface {
	Resolve(ctx context.Context, rawURL string) string
	FetchImage(ctx context.Context, rawURL string) (string, error)
}

// Scraper turns one URL into a ScrapeResult.
type Scraper struct {
	browser       Browser
	remote        RemoteFetcher
	maxImageBytes int64
	logger        *slog.Logger
}

// New wires a Scraper. remote may be nil, in which case redirects are not
// pre-resolved and remote images are skipped.
func New(browser Browser, remote RemoteFetcher, maxImageBytes int64, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	if maxImageBytes <= 0 {
		maxImageBytes = 2 << 20
	}
	return &Scraper{browser: browser, remote: remote, maxImageBytes: maxImageBytes, logger: logger}
}

// Scrape renders the page and extracts text, restaurant name, and the best
// image candidate. Image handling degrades to absent rather than failing the
// scrape.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*types.ScrapeResult, error) {
	navURL := rawURL
	if s.remote != nil {
		navURL = s.remote.Resolve(ctx, rawURL)
	}

	capture, err := s.browser.CapturePage(ctx, navURL)
	if err != nil {
		return nil, err
	}

	text, err := ExtractText(capture.HTML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	restaurant := RestaurantName(capture.HTML, originOf(capture.FinalURL))
	imageURL, imageBase64 := s.resolveImage(ctx, capture)

	return &types.ScrapeResult{
		Text:        text,
		ImageURL:    imageURL,
		ImageBase64: imageBase64,
		Restaurant:  restaurant,
	}, nil
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
