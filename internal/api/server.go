// Package api exposes the HTTP surface: health, cache lookup and write, and
// the token-guarded extraction endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"menuwatch/internal/pipeline"
	"menuwatch/internal/store"
	"menuwatch/internal/urlutil"
	"menuwatch/pkg/types"
)

// MenuPipeline runs the live scrape-extract-cache flow.
type MenuPipeline interface {
	Process(ctx context.Context, rawURL string) (*pipeline.Result, error)
}

// MenuStore is the slice of the store the handlers need directly.
type MenuStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, normalizedURL, restaurant, response string) error
}

// RequestLimiter throttles extraction requests per client.
type RequestLimiter interface {
	Allow(key string) bool
}

// Server exposes the HTTP API.
type Server struct {
	pipeline      MenuPipeline
	store         MenuStore
	limiter       RequestLimiter
	internalToken string
	logger        *slog.Logger
	now           func() time.Time
	loc           *time.Location
	mux           *http.ServeMux
}

// Option adjusts Server construction.
type Option func(*Server)

// WithClock replaces the day-keying clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLocation sets the timezone used to decide what "today" means.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) { s.loc = loc }
}

// NewServer wires handlers onto an HTTP mux.
func NewServer(p MenuPipeline, st MenuStore, limiter RequestLimiter, internalToken string, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		pipeline:      p,
		store:         st,
		limiter:       limiter,
		internalToken: internalToken,
		logger:        logger,
		now:           time.Now,
		loc:           time.UTC,
		mux:           http.NewServeMux(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/cache", s.handleCache)
	s.mux.HandleFunc("/api/menu", s.handleMenu)
}

func (s *Server) today() string {
	return s.now().In(s.loc).Format("2006-01-02")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getCache(w, r)
	case http.MethodPost:
		s.putCache(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) getCache(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "url query parameter is required"})
		return
	}

	key := store.CacheKey(urlutil.Normalize(rawURL), s.today())
	cached, err := s.store.Get(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, CacheGetResponse{Response: nil})
		return
	}
	if err != nil {
		s.logger.Error("cache lookup failed", "key", key, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, CacheGetResponse{Response: &CachedMenu{Menu: json.RawMessage(cached)}})
}

func (s *Server) putCache(w http.ResponseWriter, r *http.Request) {
	var req CachePutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json payload"})
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" || len(req.Response) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "url and response are required"})
		return
	}

	var menu types.MenuDocument
	if err := json.Unmarshal(req.Response, &menu); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "response is not a menu document"})
		return
	}
	if !menu.HasItems() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "menu has no items"})
		return
	}

	norm := urlutil.Normalize(req.URL)
	key := store.CacheKey(norm, s.today())
	if err := s.store.Put(r.Context(), key, norm, menu.RestaurantName, string(req.Response)); err != nil {
		if errors.Is(err, store.ErrEmptyMenu) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "menu has no items"})
			return
		}
		s.logger.Error("cache write failed", "key", key, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if r.Header.Get("X-Internal-Token") != s.internalToken {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden"})
		return
	}
	if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
		return
	}

	var req MenuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json payload"})
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "url is required"})
		return
	}

	result, err := s.pipeline.Process(r.Context(), req.URL)
	if err != nil {
		s.writePipelineError(w, req.URL, err)
		return
	}
	writeJSON(w, http.StatusOK, MenuResponse{
		Menu:    result.Menu,
		Parsed:  result.Parsed,
		Scraped: result.Scraped,
	})
}

// writePipelineError maps the pipeline taxonomy onto HTTP statuses. Internal
// detail stays in the logs; AI and no-menu failures surface their scrape and
// parse diagnostics.
func (s *Server) writePipelineError(w http.ResponseWriter, rawURL string, err error) {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		s.logger.Error("menu request failed", "url", rawURL, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	s.logger.Error("menu request failed", "url", rawURL, "kind", string(pe.Kind), "error", err)

	switch pe.Kind {
	case pipeline.KindUnreachableURL:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: pe.Message})
	case pipeline.KindNavigationFailed:
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: pe.Message})
	case pipeline.KindExtractionFailed:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: pe.Message})
	case pipeline.KindResponseNotJSON, pipeline.KindSchemaValidationFailed:
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: pe.Message, Parsed: pe.Parsed, Scraped: pe.Scraped})
	case pipeline.KindNoMenuDetected:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: pe.Message, Parsed: pe.Parsed, Scraped: pe.Scraped})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// clientIP identifies the caller for rate limiting: first X-Forwarded-For
// hop, then X-Real-IP, then the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
