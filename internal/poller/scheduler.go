// Package poller re-scrapes watchlisted URLs on a cron schedule, promoting
// pages that finally publish a menu into the cache, and sweeps expired cache
// entries after midnight.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"menuwatch/internal/pipeline"
	"menuwatch/internal/store"
	"menuwatch/pkg/types"
)

// WatchStore is the slice of the store the poller needs.
type WatchStore interface {
	ListPolling(ctx context.Context) ([]types.PollingEntry, error)
	UpdatePollingHash(ctx context.Context, url, hash string) error
	Put(ctx context.Context, key, normalizedURL, restaurant, response string) error
	SweepExpired(ctx context.Context, day string) (int64, error)
}

// PageScraper renders a URL into text, name, and image candidates.
type PageScraper interface {
	Scrape(ctx context.Context, rawURL string) (*types.ScrapeResult, error)
}

// MenuExtractor turns scraped text into validated menu JSON.
type MenuExtractor interface {
	Extract(ctx context.Context, text, hint string, imageURL *string) (json.RawMessage, error)
}

// RobotsPolicy decides whether a background scrape of target is permitted.
type RobotsPolicy interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// Options configure the cron schedules. Both expressions are evaluated in
// Location.
type Options struct {
	PollSchedule  string
	SweepSchedule string
	Location      *time.Location
}

// Scheduler owns the background polling cycle and the cache sweep.
type Scheduler struct {
	store     WatchStore
	scraper   PageScraper
	extractor MenuExtractor
	robots    RobotsPolicy
	limiter   *HostLimiter
	opts      Options
	logger    *slog.Logger
	now       func() time.Time

	cron   *cron.Cron
	cancel context.CancelFunc
}

// New builds a Scheduler. robots and limiter may be nil, disabling the robots
// gate and host politeness respectively.
func New(st WatchStore, sc PageScraper, ex MenuExtractor, robots RobotsPolicy, limiter *HostLimiter, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     st,
		scraper:   sc,
		extractor: ex,
		robots:    robots,
		limiter:   limiter,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Start registers the cron entries and launches the scheduler.
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	c := cron.New(cron.WithLocation(s.opts.Location))
	if _, err := c.AddFunc(s.opts.PollSchedule, func() { s.RunCycle(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("registering poll schedule %q: %w", s.opts.PollSchedule, err)
	}
	if _, err := c.AddFunc(s.opts.SweepSchedule, func() { s.Sweep(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("registering sweep schedule %q: %w", s.opts.SweepSchedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("poller started",
		"poll_schedule", s.opts.PollSchedule,
		"sweep_schedule", s.opts.SweepSchedule,
		"timezone", s.opts.Location.String(),
	)
	return nil
}

// Stop cancels in-flight work and waits for running jobs to drain.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunCycle polls every watchlisted URL once. Entries are independent; one
// failure never stops the cycle.
func (s *Scheduler) RunCycle(ctx context.Context) {
	entries, err := s.store.ListPolling(ctx)
	if err != nil {
		s.logger.Error("listing watchlist failed", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	s.logger.Info("poll cycle started", "entries", len(entries))

	var promoted, unchanged, failed int
	for _, entry := range entries {
		if ctx.Err() != nil {
			s.logger.Warn("poll cycle cancelled", "error", ctx.Err())
			return
		}
		switch outcome, err := s.pollOne(ctx, entry); {
		case err != nil:
			failed++
			s.logger.Warn("polling url failed", "url", entry.URL, "error", err)
		case outcome == outcomePromoted:
			promoted++
		case outcome == outcomeUnchanged:
			unchanged++
		}
	}
	s.logger.Info("poll cycle finished",
		"promoted", promoted, "unchanged", unchanged, "failed", failed)
}

type pollOutcome int

const (
	outcomeStillEmpty pollOutcome = iota
	outcomeUnchanged
	outcomePromoted
	outcomeSkipped
)

func (s *Scheduler) pollOne(ctx context.Context, entry types.PollingEntry) (pollOutcome, error) {
	target, err := url.Parse(entry.URL)
	if err != nil {
		return 0, fmt.Errorf("parsing watchlist url: %w", err)
	}
	if s.robots != nil && !s.robots.Allowed(ctx, target) {
		s.logger.Debug("robots policy forbids url", "url", entry.URL)
		return outcomeSkipped, nil
	}
	if err := s.limiter.Wait(ctx, target.Host); err != nil {
		return 0, fmt.Errorf("waiting for host slot: %w", err)
	}

	scraped, err := s.scraper.Scrape(ctx, entry.URL)
	if err != nil {
		return 0, err
	}

	hash := pipeline.ContentHash(scraped.Text)
	if hash == entry.LastHash {
		// Page unchanged since the last cycle, no point paying for the model.
		return outcomeUnchanged, nil
	}

	parsed, err := s.extractor.Extract(ctx, scraped.Text, scraped.Restaurant, scraped.ImageURL)
	if err != nil {
		return 0, err
	}

	var menu *types.MenuDocument
	if parsed != nil {
		var doc types.MenuDocument
		if err := json.Unmarshal(parsed, &doc); err != nil {
			return 0, fmt.Errorf("decoding validated menu: %w", err)
		}
		menu = &doc
	}

	if !menu.HasItems() {
		if err := s.store.UpdatePollingHash(ctx, entry.URL, hash); err != nil {
			return 0, err
		}
		return outcomeStillEmpty, nil
	}

	if name := strings.TrimSpace(scraped.Restaurant); name != "" {
		menu.RestaurantName = name
	}
	menu.SourceURL = entry.URL
	if scraped.ImageBase64 != nil {
		menu.ImageBase64 = *scraped.ImageBase64
	}

	response, err := json.Marshal(menu)
	if err != nil {
		return 0, fmt.Errorf("encoding menu for cache: %w", err)
	}
	day := s.now().In(s.opts.Location).Format("2006-01-02")
	if err := s.store.Put(ctx, store.CacheKey(entry.URL, day), entry.URL, menu.RestaurantName, string(response)); err != nil {
		return 0, fmt.Errorf("caching promoted menu: %w", err)
	}
	s.logger.Info("watchlist url promoted to cache", "url", entry.URL, "restaurant", menu.RestaurantName)
	return outcomePromoted, nil
}

// Sweep deletes every cache entry that is not keyed to the current day.
func (s *Scheduler) Sweep(ctx context.Context) {
	day := s.now().In(s.opts.Location).Format("2006-01-02")
	n, err := s.store.SweepExpired(ctx, day)
	if err != nil {
		s.logger.Error("cache sweep failed", "error", err)
		return
	}
	s.logger.Info("cache sweep finished", "deleted", n, "day", day)
}
