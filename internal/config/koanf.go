// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

// Package config loads lifelogd configuration with Koanf v2, layering
// built-in defaults, an optional YAML file, and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are checked in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/config/config.yaml",
	"/etc/lifelogd/config.yaml",
}

// defaultConfig returns a Config with all defaults populated. Required
// fields (the API key) stay empty and are caught by Validate.
func defaultConfig() *Config {
	return &Config{
		Limitless: LimitlessConfig{
			BaseURL:           "https://api.limitless.ai",
			APIKey:            "",
			Timezone:          "UTC",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 2,
		},
		Sync: SyncConfig{
			Interval:               15 * time.Minute,
			Strategy:               StrategyAuto,
			BatchSize:              25,
			MaxBatchSize:           100,
			MaxAPICalls:            30,
			MaxNewRecords:          300,
			GapScanCalls:           5,
			DuplicatePageThreshold: 3,
			FreshnessWindow:        2 * time.Minute,
			ReconcileEnabled:       false,
			ReconcileWindowDays:    7,
		},
		Database: DatabaseConfig{
			Path:      "/data/lifelogd.db",
			MaxMemory: "512MB",
			Threads:   0,
		},
		Ledger: LedgerConfig{
			Path: "/data/ledger",
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			Timeout:           30 * time.Second,
			AdminAPIKey:       "",
			CORSOrigins:       nil,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Notify: NotifyConfig{
			Enabled:    false,
			WebhookURL: "",
			Headers:    nil,
			RateLimit:  time.Minute,
			Timeout:    10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with precedence ENV > file > defaults,
// then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variable names map onto koanf paths:
	// LIMITLESS_API_KEY -> limitless.api_key, SYNC_MAX_API_CALLS -> sync.max_api_calls
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when they arrive
// as strings from environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		// YAML files already produce slices.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Variables without a mapping are ignored so unrelated environment noise
// never leaks into the config.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

var envMappings = map[string]string{
	"limitless_api_key":             "limitless.api_key",
	"limitless_base_url":            "limitless.base_url",
	"limitless_timezone":            "limitless.timezone",
	"limitless_timeout":             "limitless.timeout",
	"limitless_requests_per_second": "limitless.requests_per_second",

	"sync_interval":                 "sync.interval",
	"sync_strategy":                 "sync.strategy",
	"sync_batch_size":               "sync.batch_size",
	"sync_max_batch_size":           "sync.max_batch_size",
	"sync_max_api_calls":            "sync.max_api_calls",
	"sync_max_new_records":          "sync.max_new_records",
	"sync_gap_scan_calls":           "sync.gap_scan_calls",
	"sync_duplicate_page_threshold": "sync.duplicate_page_threshold",
	"sync_freshness_window":         "sync.freshness_window",
	"sync_reconcile_enabled":        "sync.reconcile_enabled",
	"sync_reconcile_window_days":    "sync.reconcile_window_days",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"ledger_path": "ledger.path",

	"server_host":                "server.host",
	"server_port":                "server.port",
	"server_timeout":             "server.timeout",
	"server_admin_api_key":       "server.admin_api_key",
	"server_cors_origins":        "server.cors_origins",
	"server_rate_limit_requests": "server.rate_limit_requests",
	"server_rate_limit_window":   "server.rate_limit_window",

	"notify_enabled":     "notify.enabled",
	"notify_webhook_url": "notify.webhook_url",
	"notify_rate_limit":  "notify.rate_limit",
	"notify_timeout":     "notify.timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}
