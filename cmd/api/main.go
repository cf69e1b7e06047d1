package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"menuwatch/internal/api"
	"menuwatch/internal/config"
	"menuwatch/internal/extractor"
	"menuwatch/internal/fetcher"
	"menuwatch/internal/notify"
	"menuwatch/internal/pipeline"
	"menuwatch/internal/poller"
	"menuwatch/internal/ratelimit"
	"menuwatch/internal/robots"
	"menuwatch/internal/scraper"
	"menuwatch/internal/store"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to service configuration")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.Logging)
	logger.Info("starting menu service", "addr", cfg.Server.Addr, "store", cfg.Store.Path)

	loc, err := time.LoadLocation(cfg.Poller.Timezone)
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", cfg.Poller.Timezone, err)
	}

	var notifier notify.Notifier = notify.Noop{}
	var webhook *notify.Webhook
	if cfg.Notify.WebhookURL != "" {
		webhook = notify.NewWebhook(cfg.Notify.WebhookURL, nil, logger)
		notifier = webhook
	}

	menuStore, err := store.Open(cfg.Store.Path, notifier, logger)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer menuStore.Close()

	preflight := fetcher.New(fetcher.Options{
		UserAgent:         cfg.Scraper.UserAgent,
		PreflightTimeout:  cfg.Scraper.PreflightTimeout.Duration,
		ImageFetchTimeout: cfg.Scraper.ImageFetchTimeout.Duration,
		MaxImageBytes:     cfg.Scraper.MaxImageBytes,
	}, logger)

	browser := scraper.NewChromeBrowser(scraper.BrowserOptions{
		NavigationTimeout:  cfg.Scraper.NavigationTimeout.Duration,
		PageTimeout:        cfg.Scraper.PageTimeout.Duration,
		UserAgent:          cfg.Scraper.UserAgent,
		ConcurrentSessions: cfg.Scraper.ConcurrentSessions,
		DisableHeadless:    cfg.Scraper.DisableHeadless,
	}, logger)
	pageScraper := scraper.New(browser, preflight, cfg.Scraper.MaxImageBytes, logger)

	menuExtractor, err := extractor.NewOpenAI(cfg.AI.Model, cfg.AI.APIKey, extractor.Options{
		Timeout:     cfg.AI.Timeout.Duration,
		MaxAttempts: cfg.AI.MaxAttempts,
		RetryDelay:  cfg.AI.RetryDelay.Duration,
	}, logger)
	if err != nil {
		log.Fatalf("failed to initialise extractor: %v", err)
	}

	svc := pipeline.New(pageScraper, menuExtractor, preflight, menuStore, logger,
		pipeline.WithLocation(loc))

	var scheduler *poller.Scheduler
	if cfg.Poller.Enabled {
		var robotsPolicy poller.RobotsPolicy
		if cfg.Robots.Respect {
			robotsPolicy = robots.NewAgent(cfg.Robots, preflight.HTTPClient())
		}
		limiter := poller.NewHostLimiter(cfg.Poller.PerHostDelay.Duration, poller.HostRateSettings{
			Requests: cfg.Poller.PerHostLimit.Requests,
			Window:   cfg.Poller.PerHostLimit.Window.Duration,
		})
		scheduler = poller.New(menuStore, pageScraper, menuExtractor, robotsPolicy, limiter, poller.Options{
			PollSchedule:  cfg.Poller.PollSchedule,
			SweepSchedule: cfg.Poller.SweepSchedule,
			Location:      loc,
		}, logger)
		if err := scheduler.Start(); err != nil {
			log.Fatalf("failed to start poller: %v", err)
		}
	}

	apiLimiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window.Duration)
	server := api.NewServer(svc, menuStore, apiLimiter, cfg.Server.InternalToken, logger,
		api.WithLocation(loc))

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
		if scheduler != nil {
			scheduler.Stop()
		}
		if webhook != nil {
			webhook.Flush()
		}
	}()

	logger.Info("menu service listening", "addr", cfg.Server.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	log.Println("menu service stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Structured {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
