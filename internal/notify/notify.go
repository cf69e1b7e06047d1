// Package notify pushes menu-change announcements to a chat webhook.
// Delivery is fire-and-forget; a broken webhook must never fail a pipeline
// run.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Notifier announces that a restaurant's menu changed.
type Notifier interface {
	MenuChanged(restaurant string)
}

// Noop discards every notification. Used when no webhook is configured.
type Noop struct{}

func (Noop) MenuChanged(string) {}

// Webhook posts Discord-style messages to a webhook URL. Sends run on
// detached goroutines and failures are logged only.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWebhook builds a webhook notifier. client may be nil.
func NewWebhook(url string, client *http.Client, logger *slog.Logger) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{url: url, client: client, logger: logger}
}

type webhookMessage struct {
	Content string `json:"content"`
}

// MenuChanged posts "<restaurant>: Menu changed" without blocking the caller.
func (w *Webhook) MenuChanged(restaurant string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.send(restaurant); err != nil {
			w.logger.Warn("webhook notification failed", "restaurant", restaurant, "error", err)
		}
	}()
}

func (w *Webhook) send(restaurant string) error {
	body, err := json.Marshal(webhookMessage{Content: restaurant + ": Menu changed"})
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Flush waits for in-flight sends. Intended for shutdown and tests.
func (w *Webhook) Flush() {
	w.wg.Wait()
}
