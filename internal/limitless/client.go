// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

// Package limitless is the HTTP client for the Limitless lifelogs API.
// It issues exactly one upstream request per FetchPage call, classifies
// failures into categories the sync engine can branch on, and throttles
// outgoing requests client-side. Retrying a failed page is the caller's
// decision; the client never re-issues a request on its own.
package limitless

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/jdbarnes/lifelogd/internal/config"
	"github.com/jdbarnes/lifelogd/internal/logging"
	"github.com/jdbarnes/lifelogd/internal/metrics"
	"github.com/jdbarnes/lifelogd/internal/models"
)

const lifelogsPath = "/v1/lifelogs"

// Client talks to the Limitless lifelogs API.
//
// Features:
//   - One upstream request per FetchPage call (callers own pagination
//     and retries, so per-run call budgets count real requests)
//   - Client-side rate limiting via golang.org/x/time/rate
//   - Failure classification into auth/timeout/server/client/unknown
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL      string
	apiKey       string
	timezone     string
	client       *http.Client
	limiter      *rate.Limiter
	maxBatchSize int
	defaultLimit int
}

// NewClient creates a Limitless API client from configuration.
func NewClient(cfg *config.LimitlessConfig, syncCfg *config.SyncConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		timezone: cfg.Timezone,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		maxBatchSize: syncCfg.MaxBatchSize,
		defaultLimit: syncCfg.BatchSize,
	}
}

// FetchPage requests one page of lifelog records. It never follows
// cursors itself; the caller decides whether the returned NextCursor is
// worth another call.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	params := c.buildParams(req)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, lifelogsPath, params.Encode())

	start := time.Now()
	resp, err := c.doRequest(ctx, reqURL)
	metrics.APIRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequestsByStatus.WithLabelValues("0").Inc()
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	metrics.APIRequestsByStatus.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := newStatusError(resp.StatusCode, body)
		logging.Warn().
			Int("status", resp.StatusCode).
			Str("category", string(apiErr.Category)).
			Str("direction", string(req.Direction)).
			Str("date", req.Date).
			Msg("Lifelogs request failed")
		return nil, apiErr
	}

	var envelope lifelogResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, newTransportError(fmt.Errorf("decode response: %w", err))
	}

	page := &Page{
		Records: make([]models.LifelogRecord, 0, len(envelope.Data.Lifelogs)),
		Count:   envelope.Meta.Lifelogs.Count,
	}
	if envelope.Meta.Lifelogs.NextCursor != nil {
		page.NextCursor = *envelope.Meta.Lifelogs.NextCursor
	}
	for i := range envelope.Data.Lifelogs {
		rec, err := envelope.Data.Lifelogs[i].toRecord()
		if err != nil {
			// Skip malformed records rather than failing the page;
			// the reconciliation sweep will pick them up if fixed.
			logging.Warn().Err(err).Msg("Skipping malformed lifelog record")
			continue
		}
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

// buildParams renders a PageRequest into query parameters, clamping the
// page size to the upstream maximum.
func (c *Client) buildParams(req PageRequest) url.Values {
	params := url.Values{}

	limit := req.Limit
	if limit <= 0 {
		limit = c.defaultLimit
	}
	if limit > c.maxBatchSize {
		limit = c.maxBatchSize
	}
	params.Set("limit", strconv.Itoa(limit))

	direction := req.Direction
	if direction == "" {
		direction = DirectionDesc
	}
	params.Set("direction", string(direction))
	params.Set("timezone", c.timezone)
	params.Set("includeMarkdown", strconv.FormatBool(req.IncludeMarkdown))
	params.Set("includeHeadings", strconv.FormatBool(req.IncludeHeadings))

	if req.Date != "" {
		params.Set("date", req.Date)
	} else if !req.Start.IsZero() {
		params.Set("start", req.Start.Format(time.RFC3339))
	}
	if req.Cursor != "" {
		params.Set("cursor", req.Cursor)
	}
	return params
}

// doRequest performs one GET, waiting on the client-side limiter
// first. A 429 comes back to the caller as a classified failure like
// any other status; there is no retry here, so one FetchPage call is
// always exactly one upstream request.
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	return resp, nil
}
