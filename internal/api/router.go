// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jdbarnes/lifelogd/internal/config"
)

// NewRouter builds the full route tree.
func NewRouter(h *Handler, cfg *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", adminHeader},
			MaxAge:         300,
		}))
	}

	// Health endpoints: no rate limit, no auth. Probes hit these often.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	// Read endpoints.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(prometheusMetrics)

		r.Get("/sync/status", h.SyncStatus)
		r.Get("/ledger", h.LedgerStatus)
		r.Get("/lifelogs", h.ListLifelogs)
		r.Get("/lifelogs/{id}", h.GetLifelog)
		r.Get("/operations", h.ListOperations)

		// Mutating endpoints sit behind the admin key.
		r.Group(func(r chi.Router) {
			r.Use(adminAuth(cfg.AdminAPIKey))

			r.Post("/sync", h.TriggerSync)
			r.Post("/sync/undo", h.UndoSync)
			r.Delete("/lifelogs", h.DeleteLifelogs)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// NewServer builds the HTTP server around the router with the
// configured bind address and timeouts.
func NewServer(cfg *config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Timeout,
		WriteTimeout:      cfg.Timeout,
		IdleTimeout:       2 * cfg.Timeout,
	}
}
