// Package webhook delivers pipeline notifications to caller-supplied
// callback URLs. Fan-out is concurrent with bounded parallelism; each URL
// is retried with exponential backoff before it is reported failed.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config tunes delivery behaviour.
type Config struct {
	// MaxParallel bounds concurrent deliveries within one fan-out.
	MaxParallel int
	// RequestTimeout bounds each individual POST.
	RequestTimeout time.Duration
	// MaxAttempts is the per-URL attempt budget.
	MaxAttempts int
	// BaseDelay is the first retry delay; it doubles per attempt.
	BaseDelay time.Duration
}

// DefaultConfig returns production delivery settings.
func DefaultConfig() Config {
	return Config{
		MaxParallel:    8,
		RequestTimeout: 30 * time.Second,
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
	}
}

// Client implements ports.WebhookClient over HTTP POST.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a delivery client. A nil logger is replaced with a no-op.
func New(cfg Config, logger *zap.Logger) *Client {
	def := DefaultConfig()
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = def.MaxParallel
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

// Deliver POSTs the payload to each unique URL. The result maps URL to
// delivery success. An error is returned only when every delivery failed.
func (c *Client) Deliver(ctx context.Context, urls []string, payload any) (map[string]bool, error) {
	unique := dedupe(urls)
	if len(unique) == 0 {
		return map[string]bool{}, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	var mu sync.Mutex
	status := make(map[string]bool, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallel)
	for _, url := range unique {
		g.Go(func() error {
			ok := c.deliverOne(gctx, url, body)
			mu.Lock()
			status[url] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	anyOK := false
	for _, ok := range status {
		anyOK = anyOK || ok
	}
	if !anyOK {
		return status, errors.New("all webhook deliveries failed")
	}
	return status, nil
}

func (c *Client) deliverOne(ctx context.Context, url string, body []byte) bool {
	delay := c.cfg.BaseDelay
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		err := c.post(ctx, url, body)
		if err == nil {
			return true
		}
		c.logger.Warn("webhook delivery failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == c.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2
	}
	return false
}

func (c *Client) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned %d", resp.StatusCode)
	}
	return nil
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
