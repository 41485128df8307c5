// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

// Package notify delivers sync run summaries to an operator-configured
// webhook. Delivery is best effort: a failed POST is logged and counted
// but never affects the sync itself.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/jdbarnes/lifelogd/internal/config"
	"github.com/jdbarnes/lifelogd/internal/engine"
	"github.com/jdbarnes/lifelogd/internal/metrics"
)

// WebhookNotifier POSTs sync run summaries to a webhook endpoint.
type WebhookNotifier struct {
	webhookURL string
	headers    map[string]string
	client     *http.Client
	enabled    bool
	mu         sync.RWMutex

	// Rate limiting
	lastSent  time.Time
	rateLimit time.Duration
}

// WebhookPayload is the JSON body POSTed to the webhook endpoint.
type WebhookPayload struct {
	Event     *engine.Event `json:"event"`
	EventType string        `json:"event_type"` // sync_completed
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"` // lifelogd
}

// NewWebhookNotifier creates a notifier from the notify config section.
func NewWebhookNotifier(cfg *config.NotifyConfig) *WebhookNotifier {
	rateLimit := cfg.RateLimit
	if rateLimit == 0 {
		rateLimit = time.Minute
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	headers := make(map[string]string)
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &WebhookNotifier{
		webhookURL: cfg.WebhookURL,
		headers:    headers,
		enabled:    cfg.Enabled,
		rateLimit:  rateLimit,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Enabled returns whether this notifier is enabled.
func (n *WebhookNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.webhookURL != ""
}

// SetEnabled enables or disables the notifier.
func (n *WebhookNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Send delivers one sync event to the webhook endpoint.
func (n *WebhookNotifier) Send(ctx context.Context, event *engine.Event) error {
	n.mu.RLock()
	if !n.enabled || n.webhookURL == "" {
		n.mu.RUnlock()
		metrics.NotificationsSent.WithLabelValues("disabled").Inc()
		return nil
	}
	webhookURL := n.webhookURL
	headers := make(map[string]string)
	for k, v := range n.headers {
		headers[k] = v
	}
	rateLimit := n.rateLimit
	lastSent := n.lastSent
	n.mu.RUnlock()

	// Rate limiting with context cancellation support
	if time.Since(lastSent) < rateLimit {
		waitTime := rateLimit - time.Since(lastSent)
		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	payload := WebhookPayload{
		Event:     event,
		EventType: "sync_completed",
		Timestamp: time.Now(),
		Source:    "lifelogd",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	n.mu.Lock()
	n.lastSent = time.Now()
	n.mu.Unlock()

	if resp.StatusCode >= 400 {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	metrics.NotificationsSent.WithLabelValues("delivered").Inc()
	return nil
}
