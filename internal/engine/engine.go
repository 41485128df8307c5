// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

// Package engine implements the incremental synchronization of the
// upstream lifelog stream into local storage: strategy selection,
// bounded paginated fetching, duplicate boundary detection, and the
// ledger merge that makes runs resumable and idempotent.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/jdbarnes/lifelogd/internal/config"
	"github.com/jdbarnes/lifelogd/internal/ledger"
	"github.com/jdbarnes/lifelogd/internal/limitless"
	"github.com/jdbarnes/lifelogd/internal/logging"
	"github.com/jdbarnes/lifelogd/internal/metrics"
	"github.com/jdbarnes/lifelogd/internal/models"
	"github.com/jdbarnes/lifelogd/internal/store"
)

// TopicSyncCompleted carries one Event per finished run, whatever the
// outcome. The notifier subscribes to it.
const TopicSyncCompleted = "sync.completed"

// Event is the published summary of a completed run.
type Event struct {
	Operation  string    `json:"operation"`
	Strategy   string    `json:"strategy"`
	Outcome    string    `json:"outcome"`
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	NewRecords int       `json:"new_records"`
	APICalls   int       `json:"api_calls"`
	Timestamp  time.Time `json:"timestamp"`
}

// Engine runs sync invocations. One Engine serves the whole process;
// the Manager serializes runs so no two mutate the ledger at once.
type Engine struct {
	fetcher Fetcher
	records *store.Store
	ledgers *ledger.Store
	cfg     *config.SyncConfig
	loc     *time.Location
	now     func() time.Time
	pub     message.Publisher
}

// New wires an engine. publisher may be nil when event publication is
// not wanted (tests). now defaults to time.Now.
func New(fetcher Fetcher, records *store.Store, ledgers *ledger.Store, cfg *config.SyncConfig, loc *time.Location, pub message.Publisher, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		fetcher: fetcher,
		records: records,
		ledgers: ledgers,
		cfg:     cfg,
		loc:     loc,
		now:     now,
		pub:     pub,
	}
}

// Run executes one sync invocation end to end: freshness guard,
// strategy selection, fetch, and the merge of records plus ledger as
// one logical transaction. Exactly one audit entry is written per
// invocation. Run never panics on upstream failures; they come back
// inside the Result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	started := e.now()

	l, err := e.ledgers.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	// Cooperative staleness guard: a ledger stamped moments ago means
	// another run just finished or is still in flight.
	if l.IsFresh(started, e.cfg.FreshnessWindow) {
		metrics.SyncSkippedFresh.Inc()
		result := &Result{
			Strategy: SelectStrategy(e.cfg.Strategy, l),
			Outcome:  OutcomeNoop,
			Message:  "skipped: ledger updated recently",
		}
		e.finish(ctx, result, started)
		return result, nil
	}

	strategy := SelectStrategy(e.cfg.Strategy, l)
	logging.Info().
		Str("strategy", string(strategy)).
		Int("known_ids", len(l.KnownIDs)).
		Msg("Sync run started")

	r := newRunner(e.fetcher, e.cfg, l, NewDayWalker(e.loc, e.now))
	var fr *FetchResult
	switch strategy {
	case StrategyFirstSync:
		fr = r.firstSync(ctx)
	case StrategyDescending:
		fr = r.plainDescending(ctx)
	case StrategyAscending:
		fr = r.plainAscending(ctx)
	default:
		fr = r.wellBehaved(ctx)
	}

	result := &Result{
		Strategy:          strategy,
		APICalls:          fr.APICalls,
		LastProcessedDate: fr.LastProcessedDate,
		Message:           fr.Message,
	}

	if !fr.Success {
		result.Outcome = OutcomeFailure
		result.Err = fr.Err
		metrics.SyncErrors.WithLabelValues(errorCategory(fr.Err)).Inc()
		e.finish(ctx, result, started)
		return result, nil
	}

	merged, err := e.persist(ctx, l, fr)
	if err != nil {
		result.Outcome = OutcomeFailure
		result.Err = err
		result.Message = err.Error()
		metrics.SyncErrors.WithLabelValues("storage").Inc()
		e.finish(ctx, result, started)
		return result, nil
	}

	result.NewRecords = merged
	switch {
	case fr.Partial:
		result.Outcome = OutcomePartial
	case merged == 0:
		result.Outcome = OutcomeNoop
	default:
		result.Outcome = OutcomeSuccess
	}

	e.finish(ctx, result, started)
	return result, nil
}

// persist merges the fetched records into the ledger and storage as
// one logical transaction. If the record insert fails, the ledger is
// not saved; if the ledger save fails, the inserted records are
// removed again. Either way syncedUntil never advances past what was
// actually persisted.
func (e *Engine) persist(ctx context.Context, l *ledger.Ledger, fr *FetchResult) (int, error) {
	previous := l.Clone()
	fresh := l.Merge(fr.Records, fr.LastProcessedDate, e.loc, e.now())

	if len(fresh) == 0 {
		if err := e.ledgers.Save(ctx, l); err != nil {
			return 0, fmt.Errorf("save ledger: %w", err)
		}
		return 0, nil
	}

	if err := e.records.InsertLifelogs(ctx, fresh); err != nil {
		return 0, fmt.Errorf("insert records: %w", err)
	}

	addedIDs := make([]string, 0, len(fresh))
	for i := range fresh {
		addedIDs = append(addedIDs, fresh[i].ID)
	}
	if err := e.ledgers.SaveWithSnapshot(ctx, l, previous, addedIDs); err != nil {
		// Roll the insert back so storage and ledger stay aligned.
		if delErr := e.records.DeleteLifelogs(ctx, addedIDs); delErr != nil {
			logging.Error().Err(delErr).Msg("Failed to roll back inserted records after ledger save failure")
		}
		return 0, fmt.Errorf("save ledger: %w", err)
	}
	return len(fresh), nil
}

// finish records the audit entry, metrics, log line, and event for a
// completed invocation.
func (e *Engine) finish(ctx context.Context, result *Result, started time.Time) {
	duration := e.now().Sub(started)
	success := result.Outcome != OutcomeFailure

	entry := &models.OperationLogEntry{
		Operation: models.OperationSync,
		Table:     "lifelogs",
		Success:   success,
		Message:   fmt.Sprintf("%s: %s (%d new records, %d api calls)", result.Strategy, result.Message, result.NewRecords, result.APICalls),
	}
	if result.Err != nil {
		entry.Error = result.Err.Error()
	}
	if err := e.records.AppendOperation(ctx, entry); err != nil {
		logging.Error().Err(err).Msg("Failed to write audit entry")
	}

	metrics.RecordSyncRun(string(result.Strategy), string(result.Outcome), duration, result.NewRecords, result.APICalls)

	evt := logging.Info()
	if !success {
		evt = logging.Error().Err(result.Err)
	}
	evt.Str("strategy", string(result.Strategy)).
		Str("outcome", string(result.Outcome)).
		Int("new_records", result.NewRecords).
		Int("api_calls", result.APICalls).
		Dur("duration", duration).
		Msg("Sync run finished")

	e.publish(result)
}

func (e *Engine) publish(result *Result) {
	if e.pub == nil {
		return
	}
	payload, err := json.Marshal(Event{
		Operation:  "sync",
		Strategy:   string(result.Strategy),
		Outcome:    string(result.Outcome),
		Success:    result.Outcome != OutcomeFailure,
		Message:    result.Message,
		NewRecords: result.NewRecords,
		APICalls:   result.APICalls,
		Timestamp:  e.now().UTC(),
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal sync event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := e.pub.Publish(TopicSyncCompleted, msg); err != nil {
		logging.Error().Err(err).Msg("Failed to publish sync event")
	}
}

func errorCategory(err error) string {
	if errors.Is(err, ErrNeedDupeCondition) {
		return "need_dupe_condition"
	}
	return string(limitless.CategoryOf(err))
}
