// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jdbarnes/lifelogd/internal/metrics"
)

// adminHeader carries the admin key on mutating requests.
const adminHeader = "X-Admin-Key"

// prometheusMetrics records request counts and latency per route
// pattern (not raw path, to keep label cardinality bounded).
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RecordHTTPRequest(r.Method, pattern, ww.Status(), time.Since(start))
	})
}

// adminAuth rejects mutating requests without the configured admin key.
// An empty key disables the check; that is for local single-user
// deployments only.
func adminAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" {
				got := r.Header.Get(adminHeader)
				if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
					writeError(w, http.StatusUnauthorized, "invalid or missing admin key")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
