// Package pipeline orchestrates one live menu request: cache lookup,
// reachability preflight, headless scrape, LLM extraction, and the cache or
// watchlist write that follows.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"menuwatch/internal/extractor"
	"menuwatch/internal/scraper"
	"menuwatch/internal/store"
	"menuwatch/internal/urlutil"
	"menuwatch/pkg/types"
)

// PageScraper renders a URL into text, name, and image candidates.
type PageScraper interface {
	Scrape(ctx context.Context, rawURL string) (*types.ScrapeResult, error)
}

// MenuExtractor turns scraped text into validated menu JSON.
type MenuExtractor interface {
	Extract(ctx context.Context, text, hint string, imageURL *string) (json.RawMessage, error)
}

// Preflight checks a URL responds before the heavy scrape starts.
type Preflight interface {
	Check(ctx context.Context, rawURL string) error
}

// CacheStore is the slice of the store the pipeline needs.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, normalizedURL, restaurant, response string) error
	UpsertPolling(ctx context.Context, url, hash string) error
}

// Result is a successful pipeline run.
type Result struct {
	Menu      *types.MenuDocument
	Parsed    json.RawMessage
	Scraped   *types.ScrapeResult
	FromCache bool
}

// Service wires the pipeline stages together.
type Service struct {
	scraper   PageScraper
	extractor MenuExtractor
	preflight Preflight
	store     CacheStore
	now       func() time.Time
	loc       *time.Location
	logger    *slog.Logger
}

// Option adjusts Service construction.
type Option func(*Service)

// WithClock replaces the day-keying clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone used to decide what "today" means.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// New builds the pipeline service. preflight may be nil to skip the
// reachability check.
func New(sc PageScraper, ex MenuExtractor, pf Preflight, st CacheStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		scraper:   sc,
		extractor: ex,
		preflight: pf,
		store:     st,
		now:       time.Now,
		loc:       time.UTC,
		logger:    logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current day key in the service timezone.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format("2006-01-02")
}

// ContentHash fingerprints scraped text for change detection between polls.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Process runs the full pipeline for rawURL. On a cache hit the stored menu
// is returned without touching the network. A scrape that yields no menu puts
// the URL on the polling watchlist and fails with KindNoMenuDetected.
func (s *Service) Process(ctx context.Context, rawURL string) (*Result, error) {
	norm := urlutil.Normalize(rawURL)
	key := store.CacheKey(norm, s.Today())
	logger := s.logger.With("url", norm)

	cached, err := s.store.Get(ctx, key)
	if err == nil {
		var menu types.MenuDocument
		if err := json.Unmarshal([]byte(cached), &menu); err == nil {
			logger.Debug("cache hit")
			return &Result{Menu: &menu, Parsed: json.RawMessage(cached), FromCache: true}, nil
		}
		logger.Warn("cached response unreadable, re-scraping", "error", err)
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("cache lookup failed, re-scraping", "error", err)
	}

	if s.preflight != nil {
		if err := s.preflight.Check(ctx, rawURL); err != nil {
			return nil, &Error{Kind: KindUnreachableURL, Message: "url did not respond", Err: err}
		}
	}

	scraped, err := s.scraper.Scrape(ctx, rawURL)
	if err != nil {
		switch {
		case errors.Is(err, scraper.ErrNavigationFailed):
			return nil, &Error{Kind: KindNavigationFailed, Message: "page navigation failed", Err: err}
		case errors.Is(err, scraper.ErrExtractionFailed):
			return nil, &Error{Kind: KindExtractionFailed, Message: "content extraction failed", Err: err}
		default:
			return nil, &Error{Kind: KindUnknown, Message: "scrape failed", Err: err}
		}
	}

	parsed, err := s.extractor.Extract(ctx, scraped.Text, scraped.Restaurant, scraped.ImageURL)
	if err != nil {
		var se *extractor.SchemaError
		switch {
		case errors.Is(err, extractor.ErrResponseNotJSON):
			return nil, &Error{Kind: KindResponseNotJSON, Message: "model response was not json", Err: err, Scraped: scraped}
		case errors.As(err, &se):
			return nil, &Error{Kind: KindSchemaValidationFailed, Message: "model response failed validation", Err: err, Parsed: se.Parsed, Scraped: scraped}
		default:
			return nil, &Error{Kind: KindUnknown, Message: "menu extraction failed", Err: err, Scraped: scraped}
		}
	}

	var menu *types.MenuDocument
	if parsed != nil {
		var doc types.MenuDocument
		if err := json.Unmarshal(parsed, &doc); err != nil {
			return nil, &Error{Kind: KindUnknown, Message: "validated response unreadable", Err: err, Scraped: scraped}
		}
		menu = &doc
	}

	if !menu.HasItems() {
		hash := ContentHash(scraped.Text)
		if err := s.store.UpsertPolling(ctx, norm, hash); err != nil {
			logger.Warn("adding polling entry failed", "error", err)
		} else {
			logger.Info("no menu detected, url added to watchlist")
		}
		failure := &Error{Kind: KindNoMenuDetected, Message: "no menu detected", Scraped: scraped}
		if parsed != nil {
			failure.Parsed = parsed
		}
		return nil, failure
	}

	if name := strings.TrimSpace(scraped.Restaurant); name != "" {
		menu.RestaurantName = name
	}
	menu.SourceURL = rawURL
	if scraped.ImageBase64 != nil {
		menu.ImageBase64 = *scraped.ImageBase64
	}

	response, err := json.Marshal(menu)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: "encoding menu for cache", Err: err, Scraped: scraped}
	}
	if err := s.store.Put(ctx, key, norm, menu.RestaurantName, string(response)); err != nil {
		return nil, &Error{Kind: KindStorageFailed, Message: "caching menu failed", Err: err, Scraped: scraped}
	}

	logger.Info("menu extracted and cached", "restaurant", menu.RestaurantName, "items", len(menu.MenuItems))
	return &Result{Menu: menu, Parsed: parsed, Scraped: scraped}, nil
}
