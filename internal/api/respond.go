// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/jdbarnes/lifelogd/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
