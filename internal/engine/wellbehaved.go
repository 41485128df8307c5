// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jdbarnes/lifelogd/internal/limitless"
	"github.com/jdbarnes/lifelogd/internal/logging"
	"github.com/jdbarnes/lifelogd/internal/models"
)

// wellBehaved is the default incremental algorithm. It is a state
// machine with three phases, terminal on success, failure, or budget
// exhaustion:
//
//  1. Probe: one newest-first record on the last confirmed day. A
//     known id means that day is fully covered.
//  2. Gap check: when the probe surfaces an unknown record, a bounded
//     newest-first scan of that day collects what was missed since the
//     last run. The scan must reach a known record or an empty page;
//     anything else means coverage cannot be proven and the whole run
//     is rejected rather than saved with a silent gap.
//  3. Forward walk: ascending, day by day from the day after the last
//     confirmed one, until today is exhausted or a bound trips.
//
// One budget covers all three phases. Budget exhaustion mid-walk
// returns the accumulated records as a partial success with
// LastProcessedDate marking the resume point; already-confirmed days
// are never redone.
func (r *runner) wellBehaved(ctx context.Context) *FetchResult {
	probeDate := r.walker.DayOf(r.ledger.SyncedUntil)
	var accumulated []models.LifelogRecord
	lastProcessed := ""

	// Phase 1: probe.
	probe, err := r.fetch(ctx, limitless.PageRequest{
		Direction:       limitless.DirectionDesc,
		Date:            probeDate,
		Limit:           1,
		IncludeMarkdown: true,
		IncludeHeadings: true,
	})
	if err != nil {
		if errors.Is(err, errBudgetExhausted) {
			return &FetchResult{Success: true, Partial: true, Message: "budget exhausted before probe", APICalls: r.budget.Used()}
		}
		return failResult(r.budget.Used(), fmt.Errorf("probe %s: %w", probeDate, err))
	}

	var day string
	if len(probe.Records) == 0 || r.knows(probe.Records[0].ID) {
		// The last confirmed day has nothing new; move on.
		day = r.walker.NextDay(probeDate)
		if day == "" {
			return &FetchResult{
				Success:  true,
				Message:  "already current",
				APICalls: r.budget.Used(),
			}
		}
	} else {
		// Phase 2: gap check on the probe day.
		fresh, err := r.gapCheck(ctx, probeDate)
		if err != nil {
			return failResult(r.budget.Used(), err)
		}
		accumulated = r.collect(accumulated, fresh)
		lastProcessed = probeDate
		day = r.walker.NextDay(probeDate)
	}

	// Phase 3: forward walk.
	dupPages := 0
	cursor := ""
walk:
	for day != "" {
		page, err := r.fetch(ctx, r.pageRequest(limitless.DirectionAsc, day, cursor))
		if errors.Is(err, errBudgetExhausted) {
			return r.partial(accumulated, lastProcessed, "budget exhausted mid-walk")
		}
		if err != nil {
			return failResult(r.budget.Used(), fmt.Errorf("forward walk %s: %w", day, err))
		}

		fresh, _ := Partition(page.Records, r.knows, limitless.DirectionAsc)
		accumulated = r.collect(accumulated, fresh)

		if len(page.Records) > 0 && len(fresh) == 0 {
			dupPages++
			if dupPages > r.cfg.DuplicatePageThreshold {
				// Defensive cutoff against an upstream that keeps
				// replaying known records.
				logging.Warn().
					Str("day", day).
					Int("consecutive", dupPages).
					Msg("Stopping walk after repeated duplicate-only pages")
				break walk
			}
		} else if len(fresh) > 0 {
			dupPages = 0
		}

		if len(accumulated) >= r.cfg.MaxNewRecords {
			return r.partial(accumulated, lastProcessed, "max new records per run reached")
		}

		if len(page.Records) < r.cfg.BatchSize || !page.HasMore() {
			// Day exhausted; confirm it and step forward.
			lastProcessed = day
			day = r.walker.NextDay(day)
			cursor = ""
			continue
		}
		cursor = page.NextCursor
	}

	models.SortRecordsAscending(accumulated)
	return &FetchResult{
		Records:           accumulated,
		Success:           true,
		Message:           fmt.Sprintf("well-behaved sync complete, %d records", len(accumulated)),
		LastProcessedDate: lastProcessed,
		APICalls:          r.budget.Used(),
	}
}

// gapCheck scans the given day newest-first until it reaches a known
// record or an empty page, collecting the unknown records on the way.
// The scan is bounded by GapScanCalls on top of the run budget. Any
// other termination means the boundary could not be established and
// the result cannot be trusted.
func (r *runner) gapCheck(ctx context.Context, date string) ([]models.LifelogRecord, error) {
	var fresh []models.LifelogRecord
	cursor := ""

	for i := 0; i < r.cfg.GapScanCalls; i++ {
		page, err := r.fetch(ctx, r.pageRequest(limitless.DirectionDesc, date, cursor))
		if errors.Is(err, errBudgetExhausted) {
			// An unproven gap cannot be saved, partial or not.
			return nil, fmt.Errorf("%w: budget exhausted scanning %s", ErrNeedDupeCondition, date)
		}
		if err != nil {
			return nil, fmt.Errorf("gap check %s: %w", date, err)
		}

		pageFresh, boundaryHit := Partition(page.Records, r.knows, limitless.DirectionDesc)
		fresh = append(fresh, pageFresh...)

		if boundaryHit || len(page.Records) == 0 {
			return fresh, nil
		}
		if !page.HasMore() {
			return nil, fmt.Errorf("%w: day %s ended without a known record", ErrNeedDupeCondition, date)
		}
		cursor = page.NextCursor
	}
	return nil, fmt.Errorf("%w: no boundary within %d calls on %s", ErrNeedDupeCondition, r.cfg.GapScanCalls, date)
}

func (r *runner) partial(records []models.LifelogRecord, lastProcessed, reason string) *FetchResult {
	models.SortRecordsAscending(records)
	return &FetchResult{
		Records:           records,
		Success:           true,
		Partial:           true,
		Message:           fmt.Sprintf("%s, %d records", reason, len(records)),
		LastProcessedDate: lastProcessed,
		APICalls:          r.budget.Used(),
	}
}
