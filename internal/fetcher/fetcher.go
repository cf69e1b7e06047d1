// Package fetcher implements the plain-HTTP side of the pipeline: the
// preflight reachability check, redirect resolution, and bounded image
// downloads that back the headless-browser scraper.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Options controls HTTP behaviour for preflight and image requests.
type Options struct {
	UserAgent         string
	PreflightTimeout  time.Duration
	ImageFetchTimeout time.Duration
	MaxImageBytes     int64
}

// Client wraps an http.Client with the request shaping and body handling the
// pipeline needs.
type Client struct {
	client            *http.Client
	userAgent         string
	preflightTimeout  time.Duration
	imageFetchTimeout time.Duration
	maxImageBytes     int64
	logger            *slog.Logger
}

// UnreachableError reports a preflight failure: either the transport failed or
// the server answered with a non-2xx status.
type UnreachableError struct {
	URL    string
	Status int
	Err    error
}

func (e *UnreachableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("url %s unreachable: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("url %s unreachable: %v", e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// New constructs a Client from options, applying defaults for any zero value.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.PreflightTimeout <= 0 {
		opts.PreflightTimeout = 5 * time.Second
	}
	if opts.ImageFetchTimeout <= 0 {
		opts.ImageFetchTimeout = 10 * time.Second
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = 2 * 1024 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		client:            &http.Client{Transport: transport},
		userAgent:         opts.UserAgent,
		preflightTimeout:  opts.PreflightTimeout,
		imageFetchTimeout: opts.ImageFetchTimeout,
		maxImageBytes:     opts.MaxImageBytes,
		logger:            logger,
	}
}

// Check verifies a URL answers with a 2xx before any heavy browser work
// starts. Failures are reported as *UnreachableError.
func (c *Client) Check(ctx context.Context, rawURL string) error {
	ctx, cancel := context.WithTimeout(ctx, c.preflightTimeout)
	defer cancel()

	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return &UnreachableError{URL: rawURL, Err: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UnreachableError{URL: rawURL, Status: resp.StatusCode}
	}
	return nil
}

// Resolve follows server-side redirects with a short request and reports the
// final URL. Any failure degrades to the input URL.
func (c *Client) Resolve(ctx context.Context, rawURL string) string {
	ctx, cancel := context.WithTimeout(ctx, c.preflightTimeout)
	defer cancel()

	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return rawURL
	}
	defer drainAndClose(resp.Body)

	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return rawURL
}

// FetchImage downloads an image with a bounded timeout and size cap and
// returns it base64-encoded. Non-image content types are rejected.
func (c *Client) FetchImage(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.imageFetchTimeout)
	defer cancel()

	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drainAndClose(resp.Body)
		return "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		drainAndClose(resp.Body)
		return "", fmt.Errorf("fetch image: unexpected content type %q", contentType)
	}

	body, err := c.readBody(resp)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(body), nil
}

// HTTPClient exposes the underlying client for reuse (eg. robots.txt fetches).
func (c *Client) HTTPClient() *http.Client {
	if c == nil {
		return nil
	}
	return c.client
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	return c.client.Do(req)
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	limited := io.LimitReader(reader, c.maxImageBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxImageBytes {
		return nil, fmt.Errorf("image exceeds limit of %d bytes", c.maxImageBytes)
	}
	return body, nil
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}
