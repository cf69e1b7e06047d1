package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration for the menu service: HTTP server,
// cache store, scraper, AI gateway, notification webhook, and the background
// poller. Required secrets fall back to environment variables so that config
// files can stay free of credentials.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	AI        AIConfig        `yaml:"ai"`
	Notify    NotifyConfig    `yaml:"notify"`
	Poller    PollerConfig    `yaml:"poller"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Robots    RobotsConfig    `yaml:"robots"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP listener and the internal access credential
// guarding the extraction endpoint.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	InternalToken   string   `yaml:"internal_token"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// StoreConfig locates the SQLite database holding cache and polling state.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ScraperConfig tunes the headless-browser pass over a page.
type ScraperConfig struct {
	NavigationTimeout  Duration `yaml:"navigation_timeout"`
	PageTimeout        Duration `yaml:"page_timeout"`
	PreflightTimeout   Duration `yaml:"preflight_timeout"`
	ImageFetchTimeout  Duration `yaml:"image_fetch_timeout"`
	MaxImageBytes      int64    `yaml:"max_image_bytes"`
	UserAgent          string   `yaml:"user_agent"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	DisableHeadless    bool     `yaml:"disable_headless"`
}

// AIConfig configures the structured-output LLM call.
type AIConfig struct {
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	Timeout     Duration `yaml:"timeout"`
	MaxAttempts int      `yaml:"max_attempts"`
	RetryDelay  Duration `yaml:"retry_delay"`
}

// NotifyConfig configures the menu-changed webhook. An empty URL disables
// notifications entirely.
type NotifyConfig struct {
	WebhookURL string   `yaml:"webhook_url"`
	Timeout    Duration `yaml:"timeout"`
}

// PollerConfig schedules the background re-scrape cycle and the nightly cache
// sweep. Schedules use cron syntax evaluated in the configured timezone.
type PollerConfig struct {
	Enabled       bool            `yaml:"enabled"`
	PollSchedule  string          `yaml:"poll_schedule"`
	SweepSchedule string          `yaml:"sweep_schedule"`
	Timezone      string          `yaml:"timezone"`
	PerHostDelay  Duration        `yaml:"per_host_delay"`
	PerHostLimit  RateLimitConfig `yaml:"per_host_limit"`
}

// RateLimitConfig describes a request budget over a window.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// Enabled reports whether the limit is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// RobotsConfig configures robots.txt handling for poller scrapes.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: DurationFrom(15 * time.Second),
		},
		Store: StoreConfig{
			Path: "data/menuwatch.db",
		},
		Scraper: ScraperConfig{
			NavigationTimeout:  DurationFrom(15 * time.Second),
			PageTimeout:        DurationFrom(10 * time.Second),
			PreflightTimeout:   DurationFrom(5 * time.Second),
			ImageFetchTimeout:  DurationFrom(10 * time.Second),
			MaxImageBytes:      2 * 1024 * 1024,
			UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36",
			ConcurrentSessions: 2,
		},
		AI: AIConfig{
			Model:       "gpt-4o-mini",
			Timeout:     DurationFrom(30 * time.Second),
			MaxAttempts: 2,
			RetryDelay:  DurationFrom(500 * time.Millisecond),
		},
		Notify: NotifyConfig{
			Timeout: DurationFrom(10 * time.Second),
		},
		Poller: PollerConfig{
			Enabled:       true,
			PollSchedule:  "0 * * * *",
			SweepSchedule: "0 0 * * *",
			Timezone:      "UTC",
			PerHostDelay:  DurationFrom(time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests: 5,
			Window:   DurationFrom(time.Minute),
		},
		Robots: RobotsConfig{
			Respect:   false,
			UserAgent: "menuwatch-bot/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces required invariants; it fails fast at startup so that a
// misconfigured process never serves traffic.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must be set")
	}
	if c.Server.InternalToken == "" {
		return errors.New("server.internal_token must be set (or MENUWATCH_INTERNAL_TOKEN)")
	}
	if c.Store.Path == "" {
		return errors.New("store.path must be set")
	}
	if c.AI.APIKey == "" {
		return errors.New("ai.api_key must be set (or OPENAI_API_KEY)")
	}
	if c.AI.Model == "" {
		return errors.New("ai.model must be set")
	}
	if c.AI.MaxAttempts <= 0 {
		return fmt.Errorf("ai.max_attempts must be > 0 (got %d)", c.AI.MaxAttempts)
	}
	if c.Scraper.NavigationTimeout.Duration <= 0 {
		return errors.New("scraper.navigation_timeout must be > 0")
	}
	if c.Scraper.MaxImageBytes <= 0 {
		return fmt.Errorf("scraper.max_image_bytes must be > 0 (got %d)", c.Scraper.MaxImageBytes)
	}
	if c.Scraper.ConcurrentSessions <= 0 {
		return fmt.Errorf("scraper.concurrent_sessions must be > 0 (got %d)", c.Scraper.ConcurrentSessions)
	}
	if strings.TrimSpace(c.Scraper.UserAgent) == "" {
		return errors.New("scraper.user_agent must be set")
	}
	if !c.RateLimit.Enabled() {
		return errors.New("rate_limit.requests and rate_limit.window must be set")
	}
	if c.Poller.Enabled {
		if c.Poller.PollSchedule == "" || c.Poller.SweepSchedule == "" {
			return errors.New("poller.poll_schedule and poller.sweep_schedule must be set")
		}
		if _, err := time.LoadLocation(c.Poller.Timezone); err != nil {
			return fmt.Errorf("poller.timezone: %w", err)
		}
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	return nil
}

func (c *Config) normalise() {
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Store.Path = strings.TrimSpace(c.Store.Path)
	c.Scraper.UserAgent = strings.TrimSpace(c.Scraper.UserAgent)
	c.AI.Model = strings.TrimSpace(c.AI.Model)
	c.Notify.WebhookURL = strings.TrimSpace(c.Notify.WebhookURL)
	c.Poller.Timezone = strings.TrimSpace(c.Poller.Timezone)
	if c.Poller.Timezone == "" {
		c.Poller.Timezone = "UTC"
	}
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)

	// Secrets may come from the environment instead of the file.
	if c.Server.InternalToken == "" {
		c.Server.InternalToken = os.Getenv("MENUWATCH_INTERNAL_TOKEN")
	}
	if c.AI.APIKey == "" {
		c.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Notify.WebhookURL == "" {
		c.Notify.WebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")
	}
}
