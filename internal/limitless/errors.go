// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package limitless

import (
	"errors"
	"fmt"
	"net/http"
)

// Category buckets upstream API failures so callers can branch on the
// kind of failure without inspecting status codes.
type Category string

const (
	// CategoryTimeout covers gateway timeouts (HTTP 504). Retryable;
	// often means the requested page was too expensive upstream.
	CategoryTimeout Category = "timeout"

	// CategoryServer covers HTTP 500. Retryable later.
	CategoryServer Category = "server"

	// CategoryAuth covers 401 and 403. Not retryable; the API key is
	// missing, wrong, or revoked.
	CategoryAuth Category = "auth"

	// CategoryClient covers remaining 4xx responses. Not retryable
	// without changing the request.
	CategoryClient Category = "client"

	// CategoryUnknown covers everything else, including transport
	// errors with no HTTP status.
	CategoryUnknown Category = "unknown"
)

// APIError is a failed upstream API request with its classification.
// StatusCode is 0 when the failure happened before an HTTP response
// arrived.
type APIError struct {
	StatusCode int
	Category   Category
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("limitless api: %s: %v", e.Category, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("limitless api: %s (HTTP %d): %s", e.Category, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("limitless api: %s (HTTP %d)", e.Category, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Classify maps an HTTP status code to a failure category. 504 is
// distinguished from 500 because the sync engine treats gateway
// timeouts as a signal to shrink its requests. Other 5xx codes
// (502, 503, ...) classify as unknown; only a plain 500 is a proven
// upstream server fault.
func Classify(statusCode int) Category {
	switch {
	case statusCode == http.StatusGatewayTimeout:
		return CategoryTimeout
	case statusCode == http.StatusInternalServerError:
		return CategoryServer
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return CategoryAuth
	case statusCode >= 400 && statusCode < 500:
		return CategoryClient
	default:
		return CategoryUnknown
	}
}

// newStatusError builds an APIError from a non-2xx HTTP response.
func newStatusError(statusCode int, body []byte) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Category:   Classify(statusCode),
		Body:       truncateBody(body),
	}
}

// newTransportError wraps a failure that produced no HTTP response.
func newTransportError(err error) *APIError {
	return &APIError{Category: CategoryUnknown, Err: err}
}

// CategoryOf extracts the failure category from any error. Errors that
// are not APIErrors classify as unknown.
func CategoryOf(err error) Category {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return CategoryUnknown
}

// IsRetryable reports whether a later retry of the same request could
// plausibly succeed.
func IsRetryable(err error) bool {
	switch CategoryOf(err) {
	case CategoryTimeout, CategoryServer:
		return true
	default:
		return false
	}
}

const maxErrorBodyLen = 512

func truncateBody(body []byte) string {
	if len(body) > maxErrorBodyLen {
		return string(body[:maxErrorBodyLen]) + "..."
	}
	return string(body)
}
