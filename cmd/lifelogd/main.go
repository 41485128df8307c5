// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

// Command lifelogd runs the sync daemon: it incrementally replicates
// the upstream lifelog stream into local storage and serves the
// operator HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/jdbarnes/lifelogd/internal/api"
	"github.com/jdbarnes/lifelogd/internal/config"
	"github.com/jdbarnes/lifelogd/internal/engine"
	"github.com/jdbarnes/lifelogd/internal/ledger"
	"github.com/jdbarnes/lifelogd/internal/limitless"
	"github.com/jdbarnes/lifelogd/internal/logging"
	"github.com/jdbarnes/lifelogd/internal/notify"
	"github.com/jdbarnes/lifelogd/internal/store"
	"github.com/jdbarnes/lifelogd/internal/supervisor"
	"github.com/jdbarnes/lifelogd/internal/supervisor/services"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("lifelogd exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", date).
		Str("strategy", cfg.Sync.Strategy).
		Dur("interval", cfg.Sync.Interval).
		Msg("Starting lifelogd")

	// Storage: DuckDB for records, Badger for the sync ledger.
	records, err := store.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := records.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close record store")
		}
	}()

	ledgers, err := ledger.Open(&cfg.Ledger)
	if err != nil {
		return err
	}
	defer func() {
		if err := ledgers.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close ledger store")
		}
	}()

	// Upstream client behind the circuit breaker.
	client := limitless.NewClient(&cfg.Limitless, &cfg.Sync)
	fetcher := limitless.NewCircuitBreakerClient(client)

	// In-process event bus between the engine and the notifier.
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubsub.Close()

	eng := engine.New(fetcher, records, ledgers, &cfg.Sync, cfg.Limitless.Location(), pubsub, nil)
	manager := engine.NewManager(eng, &cfg.Sync)

	handler := api.NewHandler(manager, eng, records, ledgers, cfg)
	server := api.NewServer(&cfg.Server, api.NewRouter(handler, &cfg.Server))

	tree := supervisor.NewTree(supervisionLogger(cfg), supervisor.DefaultTreeConfig())
	tree.AddSyncService(services.NewSyncService(manager))
	if cfg.Notify.Enabled {
		relay := notify.NewRelay(pubsub, notify.NewWebhookNotifier(&cfg.Notify))
		tree.AddSyncService(services.NewRelayService(relay))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", server.Addr).
		Bool("notify", cfg.Notify.Enabled).
		Msg("Supervision tree starting")

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service missed shutdown timeout")
		}
	}

	logging.Info().Msg("lifelogd stopped")
	return nil
}

// supervisionLogger bridges supervision events into slog at the
// configured level; the rest of the process logs through zerolog.
func supervisionLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "trace", "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error", "fatal":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
