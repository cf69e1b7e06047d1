package poller

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostRateSettings configures token-bucket rate limiting per scraped host.
type HostRateSettings struct {
	Requests int
	Window   time.Duration
}

// HostLimiter keeps poll-cycle scrapes polite: a minimum delay between hits
// to the same host plus an optional per-host rate limit.
type HostLimiter struct {
	delay       time.Duration
	rate        HostRateSettings
	rateEnabled bool

	mu       sync.Mutex
	last     map[string]time.Time
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter with per-host delay and optional rate
// limiting. Zero delay and zero rate yield a no-op limiter.
func NewHostLimiter(delay time.Duration, rateCfg HostRateSettings) *HostLimiter {
	limiter := &HostLimiter{delay: delay}
	if delay > 0 {
		limiter.last = make(map[string]time.Time)
	}
	if rateCfg.Requests > 0 && rateCfg.Window > 0 {
		limiter.rateEnabled = true
		limiter.rate = rateCfg
		limiter.limiters = make(map[string]*rate.Limiter)
		if limiter.last == nil {
			limiter.last = make(map[string]time.Time)
		}
	}
	return limiter
}

// Wait blocks until politeness constraints for the host are satisfied.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	if h.delay <= 0 && !h.rateEnabled {
		return nil
	}

	var sleep time.Duration
	var limiter *rate.Limiter
	now := time.Now()

	h.mu.Lock()
	if h.delay > 0 {
		if last, ok := h.last[host]; ok {
			rest := last.Add(h.delay).Sub(now)
			if rest > 0 {
				sleep = rest
			}
		}
	}
	if h.rateEnabled {
		limiter = h.ensureLimiterLocked(host)
	}
	h.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	h.mu.Lock()
	if h.last != nil {
		h.last[host] = time.Now()
	}
	h.mu.Unlock()
	return nil
}

func (h *HostLimiter) ensureLimiterLocked(host string) *rate.Limiter {
	limiter, ok := h.limiters[host]
	if ok {
		return limiter
	}
	interval := h.rate.Window / time.Duration(h.rate.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	burst := h.rate.Requests
	if burst <= 0 {
		burst = 1
	}
	limiter = rate.NewLimiter(rate.Every(interval), burst)
	h.limiters[host] = limiter
	return limiter
}
