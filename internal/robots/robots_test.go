package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"menuwatch/internal/config"
)

const robotsBody = `User-agent: *
Disallow: /private/

User-agent: menuwatch-bot
Disallow: /menu-archive/
`

func newRobotsServer(t *testing.T, fetches *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fetches.Add(1)
		fmt.Fprint(w, robotsBody)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func agentCfg(respect bool) config.RobotsConfig {
	return config.RobotsConfig{
		Respect:   respect,
		UserAgent: "menuwatch-bot",
		CacheTTL:  config.DurationFrom(time.Hour),
	}
}

func TestAllowedRespectsGroups(t *testing.T) {
	var fetches atomic.Int32
	srv := newRobotsServer(t, &fetches)
	a := NewAgent(agentCfg(true), srv.Client())
	ctx := context.Background()

	if a.Allowed(ctx, mustParse(t, srv.URL+"/menu-archive/old")) {
		t.Error("disallowed path permitted for our agent")
	}
	if !a.Allowed(ctx, mustParse(t, srv.URL+"/denni-menu")) {
		t.Error("allowed path rejected")
	}
}

func TestAllowedCachesPerHost(t *testing.T) {
	var fetches atomic.Int32
	srv := newRobotsServer(t, &fetches)
	a := NewAgent(agentCfg(true), srv.Client())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a.Allowed(ctx, mustParse(t, srv.URL+"/denni-menu"))
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", got)
	}
}

func TestAllowedFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAgent(agentCfg(true), srv.Client())
	if !a.Allowed(context.Background(), mustParse(t, srv.URL+"/anything")) {
		t.Error("robots failure blocked the scrape")
	}
}

func TestAllowedWithoutRespect(t *testing.T) {
	a := NewAgent(agentCfg(false), nil)
	if !a.Allowed(context.Background(), mustParse(t, "https://x.test/private/page")) {
		t.Error("respect disabled but url blocked")
	}
}

func TestAllowedRejectsRelativeURL(t *testing.T) {
	a := NewAgent(agentCfg(false), nil)
	if a.Allowed(context.Background(), mustParse(t, "/no-host")) {
		t.Error("relative url allowed")
	}
}
