// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

// Package api provides the operator-facing HTTP surface: sync trigger
// and status, ledger inspection, record queries, undo, and the
// destructive wipe. Routing uses Chi; mutating endpoints sit behind the
// admin key when one is configured.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jdbarnes/lifelogd/internal/config"
	"github.com/jdbarnes/lifelogd/internal/engine"
	"github.com/jdbarnes/lifelogd/internal/ledger"
	"github.com/jdbarnes/lifelogd/internal/models"
	"github.com/jdbarnes/lifelogd/internal/store"
	"github.com/jdbarnes/lifelogd/internal/validation"
)

// Handler carries the dependencies shared by all HTTP handlers.
type Handler struct {
	manager *engine.Manager
	eng     *engine.Engine
	records *store.Store
	ledgers *ledger.Store
	cfg     *config.Config
	loc     *time.Location
	started time.Time
}

// NewHandler creates the handler set.
func NewHandler(manager *engine.Manager, eng *engine.Engine, records *store.Store, ledgers *ledger.Store, cfg *config.Config) *Handler {
	return &Handler{
		manager: manager,
		eng:     eng,
		records: records,
		ledgers: ledgers,
		cfg:     cfg,
		loc:     cfg.Limitless.Location(),
		started: time.Now(),
	}
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// HealthReady reports readiness: storage must answer.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type syncResponse struct {
	Found             bool   `json:"found"`
	Strategy          string `json:"strategy"`
	Outcome           string `json:"outcome"`
	NewRecords        int    `json:"new_records"`
	APICalls          int    `json:"api_calls"`
	LastProcessedDate string `json:"last_processed_date,omitempty"`
	Message           string `json:"message"`
}

func toSyncResponse(result *engine.Result) syncResponse {
	return syncResponse{
		Found:             result.Found(),
		Strategy:          string(result.Strategy),
		Outcome:           string(result.Outcome),
		NewRecords:        result.NewRecords,
		APICalls:          result.APICalls,
		LastProcessedDate: result.LastProcessedDate,
		Message:           result.Message,
	}
}

// TriggerSync runs one sync invocation and reports its result.
// Concurrent triggers queue behind the manager's run mutex.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.TriggerSync(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if result.Outcome == engine.OutcomeFailure {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, toSyncResponse(result))
}

// SyncStatus reports the most recent run and when it happened.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"last_sync": nil,
		"result":    nil,
	}
	if last := h.manager.LastSyncTime(); !last.IsZero() {
		resp["last_sync"] = last.UTC()
	}
	if result := h.manager.LastResult(); result != nil {
		resp["result"] = toSyncResponse(result)
	}
	writeJSON(w, http.StatusOK, resp)
}

// LedgerStatus exposes the sync ledger summary: counts and watermarks,
// never the id set itself.
func (h *Handler) LedgerStatus(w http.ResponseWriter, r *http.Request) {
	l, err := h.ledgers.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"known_ids":     len(l.KnownIDs),
		"earliest_time": l.EarliestTime,
		"latest_time":   l.LatestTime,
		"synced_until":  l.SyncedUntil,
		"updated_at":    l.UpdatedAt,
		"first_sync":    l.IsFirstSync(),
	})
}

type listLifelogsRequest struct {
	Limit int    `validate:"min=1,max=1000"`
	From  string `validate:"omitempty,datetime=2006-01-02"`
	To    string `validate:"omitempty,datetime=2006-01-02"`
}

// ListLifelogs returns synced records: the latest N by default, or an
// ascending date-range slice when from/to are given.
func (h *Handler) ListLifelogs(w http.ResponseWriter, r *http.Request) {
	req := listLifelogsRequest{
		Limit: 100,
		From:  r.URL.Query().Get("from"),
		To:    r.URL.Query().Get("to"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		req.Limit = n
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeError(w, http.StatusBadRequest, verr.Error())
		return
	}

	var (
		records []models.LifelogRecord
		err     error
	)
	if req.From == "" && req.To == "" {
		records, err = h.records.Latest(r.Context(), req.Limit)
	} else {
		var from, to int64
		if req.From != "" {
			from = h.dayStart(req.From)
		}
		if req.To != "" {
			// to is inclusive at the API: extend to the start of the
			// next calendar day.
			to = h.nextDayStart(req.To)
		}
		records, err = h.records.ListRange(r.Context(), from, to, req.Limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(records),
		"lifelogs": records,
	})
}

// GetLifelog returns one record by id.
func (h *Handler) GetLifelog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.records.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListOperations returns the newest audit entries.
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	entries, err := h.records.ListOperations(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list operations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(entries),
		"operations": entries,
	})
}

// UndoSync rolls back the most recent merge.
func (h *Handler) UndoSync(w http.ResponseWriter, r *http.Request) {
	removed, err := h.eng.UndoLastSync(r.Context())
	if errors.Is(err, engine.ErrNoUndo) {
		writeError(w, http.StatusConflict, "nothing to undo")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// DeleteLifelogs wipes all synced data. Requires ?confirm=true.
func (h *Handler) DeleteLifelogs(w http.ResponseWriter, r *http.Request) {
	confirm := r.URL.Query().Get("confirm") == "true"
	err := h.eng.DeleteAll(r.Context(), confirm)
	if errors.Is(err, engine.ErrConfirmRequired) {
		writeError(w, http.StatusBadRequest, "pass confirm=true to delete all synced data")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) dayStart(date string) int64 {
	t, err := time.ParseInLocation(models.DateLayout, date, h.loc)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// nextDayStart returns the first instant of the day after date.
// Calendar arithmetic, not a fixed 24h offset: days around a DST
// transition are 23 or 25 hours long in the configured timezone.
func (h *Handler) nextDayStart(date string) int64 {
	t, err := time.ParseInLocation(models.DateLayout, date, h.loc)
	if err != nil {
		return 0
	}
	return t.AddDate(0, 0, 1).UnixMilli()
}
