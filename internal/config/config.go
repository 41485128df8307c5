// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds all application configuration loaded from environment variables
// and an optional YAML config file.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all optional settings
//  2. Config File: optional YAML config file (config.yaml)
//  3. Environment Variables: override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Limitless LimitlessConfig `koanf:"limitless"`
	Sync      SyncConfig      `koanf:"sync"`
	Database  DatabaseConfig  `koanf:"database"`
	Ledger    LedgerConfig    `koanf:"ledger"`
	Server    ServerConfig    `koanf:"server"`
	Notify    NotifyConfig    `koanf:"notify"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// LimitlessConfig holds upstream Limitless API connection settings.
//
// Environment Variables:
//   - LIMITLESS_API_KEY: API key sent as X-API-Key (required)
//   - LIMITLESS_BASE_URL: API base URL (default: https://api.limitless.ai)
//   - LIMITLESS_TIMEZONE: IANA timezone for date-scoped fetches (default: UTC)
type LimitlessConfig struct {
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
	Timezone string `koanf:"timezone"`

	// Timeout bounds each HTTP request to the upstream API.
	// Default: 30s
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond caps the client-side request rate.
	// Default: 2
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// SyncConfig holds synchronization engine settings.
//
// Environment Variables:
//   - SYNC_INTERVAL: Period between automatic sync runs (default: 15m)
//   - SYNC_STRATEGY: auto, well_behaved, descending, or ascending (default: auto)
//   - SYNC_BATCH_SIZE: Records requested per page (default: 25)
type SyncConfig struct {
	// Interval is the period between automatic sync runs.
	// Default: 15m
	Interval time.Duration `koanf:"interval"`

	// Strategy selects the sync algorithm. "auto" lets the engine pick
	// based on ledger state; the others force a specific algorithm and
	// exist mainly for diagnostics.
	// Default: auto
	Strategy string `koanf:"strategy"`

	// BatchSize is the page size requested from the upstream API.
	// Default: 25
	BatchSize int `koanf:"batch_size"`

	// MaxBatchSize caps BatchSize regardless of configuration. The
	// upstream API rejects larger pages.
	// Default: 100
	MaxBatchSize int `koanf:"max_batch_size"`

	// MaxAPICalls budgets upstream requests per sync run. A run that
	// exhausts the budget ends as a partial success.
	// Default: 30
	MaxAPICalls int `koanf:"max_api_calls"`

	// MaxNewRecords caps new records merged per run.
	// Default: 300
	MaxNewRecords int `koanf:"max_new_records"`

	// GapScanCalls bounds the descending gap scan between the last
	// known record and now.
	// Default: 5
	GapScanCalls int `koanf:"gap_scan_calls"`

	// DuplicatePageThreshold is the number of consecutive all-duplicate
	// pages after which the forward walk stops early.
	// Default: 3
	DuplicatePageThreshold int `koanf:"duplicate_page_threshold"`

	// FreshnessWindow skips a run entirely when the ledger was updated
	// within this window. Also serves as the cooperative staleness
	// guard against overlapping runs.
	// Default: 2m
	FreshnessWindow time.Duration `koanf:"freshness_window"`

	// ReconcileEnabled turns on the periodic updated-record sweep that
	// patches records edited upstream after initial merge.
	// Default: false
	ReconcileEnabled bool `koanf:"reconcile_enabled"`

	// ReconcileWindowDays bounds how far back the sweep looks.
	// Default: 7
	ReconcileWindowDays int `koanf:"reconcile_window_days"`
}

// DatabaseConfig holds DuckDB settings for the lifelog record store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. Empty means in-memory.
	Path string `koanf:"path"`

	// MaxMemory limits DuckDB memory usage (e.g. "512MB").
	MaxMemory string `koanf:"max_memory"`

	// Threads limits DuckDB worker threads. 0 lets DuckDB decide.
	Threads int `koanf:"threads"`
}

// LedgerConfig holds BadgerDB settings for the sync metadata ledger.
type LedgerConfig struct {
	// Path is the Badger directory. Empty means in-memory (tests).
	Path string `koanf:"path"`
}

// ServerConfig holds HTTP server settings for the operator API.
//
// Environment Variables:
//   - SERVER_HOST: Bind address (default: 0.0.0.0)
//   - SERVER_PORT: Listen port (default: 8080)
//   - SERVER_ADMIN_API_KEY: Key required on mutating endpoints (empty disables auth)
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// AdminAPIKey guards mutating endpoints (sync trigger, undo,
	// delete). Empty disables the check; intended for local use only.
	AdminAPIKey string `koanf:"admin_api_key"`

	// CORSOrigins lists allowed origins. Empty allows none.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitRequests and RateLimitWindow bound per-IP request rates.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// NotifyConfig holds webhook notification settings. When enabled, a
// summary of each completed sync run is POSTed to WebhookURL.
type NotifyConfig struct {
	Enabled    bool              `koanf:"enabled"`
	WebhookURL string            `koanf:"webhook_url"`
	Headers    map[string]string `koanf:"headers"`

	// RateLimit is the minimum interval between webhook deliveries.
	// Default: 1m
	RateLimit time.Duration `koanf:"rate_limit"`

	// Timeout bounds each webhook POST.
	// Default: 10s
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes file:line in log output.
	// Default: false
	Caller bool `koanf:"caller"`
}

// Sync strategy names accepted by SyncConfig.Strategy.
const (
	StrategyAuto        = "auto"
	StrategyWellBehaved = "well_behaved"
	StrategyDescending  = "descending"
	StrategyAscending   = "ascending"
)

// Validate checks the full configuration and returns the first error found.
// Error messages reference environment variable names so operators can fix
// their deployment without reading source.
func (c *Config) Validate() error {
	if err := c.Limitless.validate(); err != nil {
		return err
	}
	if err := c.Sync.validate(); err != nil {
		return err
	}
	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return c.Logging.validate()
}

func (c *LimitlessConfig) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("LIMITLESS_API_KEY is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("LIMITLESS_BASE_URL must not be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("LIMITLESS_BASE_URL is not a valid URL: %q", c.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("LIMITLESS_BASE_URL must use http or https, got %q", u.Scheme)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("LIMITLESS_TIMEZONE is not a valid IANA timezone: %q", c.Timezone)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("LIMITLESS_TIMEOUT must be positive, got %v", c.Timeout)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("LIMITLESS_REQUESTS_PER_SECOND must be positive, got %v", c.RequestsPerSecond)
	}
	return nil
}

func (c *SyncConfig) validate() error {
	switch c.Strategy {
	case StrategyAuto, StrategyWellBehaved, StrategyDescending, StrategyAscending:
	default:
		return fmt.Errorf("SYNC_STRATEGY must be one of auto, well_behaved, descending, ascending; got %q", c.Strategy)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive, got %v", c.Interval)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("SYNC_MAX_BATCH_SIZE must be positive, got %d", c.MaxBatchSize)
	}
	if c.BatchSize > c.MaxBatchSize {
		return fmt.Errorf("SYNC_BATCH_SIZE (%d) must not exceed SYNC_MAX_BATCH_SIZE (%d)", c.BatchSize, c.MaxBatchSize)
	}
	if c.MaxAPICalls <= 0 {
		return fmt.Errorf("SYNC_MAX_API_CALLS must be positive, got %d", c.MaxAPICalls)
	}
	if c.MaxNewRecords <= 0 {
		return fmt.Errorf("SYNC_MAX_NEW_RECORDS must be positive, got %d", c.MaxNewRecords)
	}
	if c.GapScanCalls <= 0 {
		return fmt.Errorf("SYNC_GAP_SCAN_CALLS must be positive, got %d", c.GapScanCalls)
	}
	if c.DuplicatePageThreshold <= 0 {
		return fmt.Errorf("SYNC_DUPLICATE_PAGE_THRESHOLD must be positive, got %d", c.DuplicatePageThreshold)
	}
	if c.FreshnessWindow < 0 {
		return fmt.Errorf("SYNC_FRESHNESS_WINDOW must not be negative, got %v", c.FreshnessWindow)
	}
	if c.ReconcileEnabled && c.ReconcileWindowDays <= 0 {
		return fmt.Errorf("SYNC_RECONCILE_WINDOW_DAYS must be positive when SYNC_RECONCILE_ENABLED=true, got %d", c.ReconcileWindowDays)
	}
	return nil
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("SERVER_TIMEOUT must be positive, got %v", c.Timeout)
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("SERVER_RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("SERVER_RATE_LIMIT_WINDOW must be positive, got %v", c.RateLimitWindow)
	}
	return nil
}

func (c *NotifyConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.WebhookURL == "" {
		return fmt.Errorf("NOTIFY_WEBHOOK_URL is required when NOTIFY_ENABLED=true")
	}
	u, err := url.Parse(c.WebhookURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("NOTIFY_WEBHOOK_URL is not a valid URL: %q", c.WebhookURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be positive, got %v", c.Timeout)
	}
	return nil
}

func (c *LoggingConfig) validate() error {
	switch c.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error; got %q", c.Level)
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Format)
	}
	return nil
}

// Location resolves the configured timezone. Validate() guarantees the name
// parses, so the error path only fires on unvalidated configs.
func (c *LimitlessConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
