// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jdbarnes/lifelogd/internal/ledger"
	"github.com/jdbarnes/lifelogd/internal/limitless"
	"github.com/jdbarnes/lifelogd/internal/logging"
	"github.com/jdbarnes/lifelogd/internal/models"
)

// ErrNoUndo is returned when there is no merge snapshot to roll back.
var ErrNoUndo = errors.New("engine: nothing to undo")

// ErrConfirmRequired guards the destructive wipe.
var ErrConfirmRequired = errors.New("engine: delete-all requires explicit confirmation")

// UndoLastSync rolls back the most recent merge: the records it added
// are deleted and the ledger is restored to its pre-merge snapshot.
// Exactly one merge can be undone; a second call returns ErrNoUndo.
func (e *Engine) UndoLastSync(ctx context.Context) (removed int, err error) {
	snapshot, addedIDs, err := e.ledgers.LoadSnapshot(ctx)
	if errors.Is(err, ledger.ErrNoSnapshot) {
		return 0, ErrNoUndo
	}
	if err != nil {
		return 0, fmt.Errorf("load undo snapshot: %w", err)
	}

	if err := e.records.DeleteLifelogs(ctx, addedIDs); err != nil {
		return 0, fmt.Errorf("delete merged records: %w", err)
	}
	if err := e.ledgers.Restore(ctx, snapshot); err != nil {
		return 0, fmt.Errorf("restore ledger: %w", err)
	}

	e.audit(ctx, models.OperationDelete, true,
		fmt.Sprintf("undo last sync: removed %d records", len(addedIDs)), nil)
	logging.Info().Int("removed", len(addedIDs)).Msg("Last sync undone")
	return len(addedIDs), nil
}

// DeleteAll wipes every synced record and resets the ledger to the
// first-sync state. confirm must be true; this is not recoverable.
func (e *Engine) DeleteAll(ctx context.Context, confirm bool) error {
	if !confirm {
		return ErrConfirmRequired
	}
	if err := e.records.DeleteAll(ctx); err != nil {
		e.audit(ctx, models.OperationDelete, false, "delete all records", err)
		return fmt.Errorf("delete all records: %w", err)
	}
	if err := e.ledgers.Reset(ctx); err != nil {
		e.audit(ctx, models.OperationDelete, false, "reset ledger", err)
		return fmt.Errorf("reset ledger: %w", err)
	}
	e.audit(ctx, models.OperationDelete, true, "deleted all records and reset ledger", nil)
	logging.Warn().Msg("All synced records deleted, ledger reset")
	return nil
}

// Reconcile sweeps the recent window for records edited upstream after
// they were merged, patching the local copy where the upstream
// updatedAt is newer. Unknown records are left for the regular sync
// path. The sweep shares the per-run API-call budget.
func (e *Engine) Reconcile(ctx context.Context, windowDays int) (patched int, err error) {
	if windowDays <= 0 {
		return 0, nil
	}
	budget := newCallBudget(e.cfg.MaxAPICalls)
	since := e.now().In(e.loc).AddDate(0, 0, -windowDays)

	cursor := ""
	for {
		if !budget.Spend() {
			break
		}
		page, err := e.fetcher.FetchPage(ctx, limitless.PageRequest{
			Direction:       limitless.DirectionAsc,
			Start:           since,
			Cursor:          cursor,
			Limit:           e.cfg.BatchSize,
			IncludeMarkdown: true,
			IncludeHeadings: true,
		})
		if err != nil {
			e.audit(ctx, models.OperationUpdate, false, "reconciliation sweep", err)
			return patched, fmt.Errorf("reconcile fetch: %w", err)
		}

		for i := range page.Records {
			upstream := &page.Records[i]
			local, err := e.records.GetByID(ctx, upstream.ID)
			if err != nil {
				// Not merged yet; the sync path owns creation.
				continue
			}
			if upstream.UpdatedAt > local.UpdatedAt {
				if err := e.records.PatchLifelog(ctx, upstream); err != nil {
					return patched, fmt.Errorf("patch record %s: %w", upstream.ID, err)
				}
				patched++
			}
		}

		if len(page.Records) < e.cfg.BatchSize || !page.HasMore() {
			break
		}
		cursor = page.NextCursor
	}

	e.audit(ctx, models.OperationUpdate, true,
		fmt.Sprintf("reconciliation sweep: %d records patched", patched), nil)
	if patched > 0 {
		logging.Info().Int("patched", patched).Msg("Reconciliation sweep applied upstream edits")
	}
	return patched, nil
}

func (e *Engine) audit(ctx context.Context, op models.Operation, success bool, message string, opErr error) {
	entry := &models.OperationLogEntry{
		Operation: op,
		Table:     "lifelogs",
		Success:   success,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	if err := e.records.AppendOperation(ctx, entry); err != nil {
		logging.Error().Err(err).Msg("Failed to write audit entry")
	}
}
