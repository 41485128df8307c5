// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jdbarnes/lifelogd/internal/config"
	"github.com/jdbarnes/lifelogd/internal/ledger"
	"github.com/jdbarnes/lifelogd/internal/limitless"
	"github.com/jdbarnes/lifelogd/internal/models"
)

// errBudgetExhausted signals that the per-run request cap was reached.
// It never escapes a strategy; it is converted into a partial success.
var errBudgetExhausted = errors.New("api call budget exhausted")

// runner carries the per-run state shared by all strategies. Strategies
// never persist anything; they fetch, filter, and hand the records back
// to the engine for the merge step.
type runner struct {
	fetcher Fetcher
	cfg     *config.SyncConfig
	ledger  *ledger.Ledger
	walker  *DayWalker
	budget  *callBudget

	// seen guards against accumulating the same record twice within a
	// run (the gap check and forward walk can overlap at day edges).
	seen map[string]struct{}
}

func newRunner(fetcher Fetcher, cfg *config.SyncConfig, l *ledger.Ledger, walker *DayWalker) *runner {
	return &runner{
		fetcher: fetcher,
		cfg:     cfg,
		ledger:  l,
		walker:  walker,
		budget:  newCallBudget(cfg.MaxAPICalls),
		seen:    make(map[string]struct{}),
	}
}

func (r *runner) fetch(ctx context.Context, req limitless.PageRequest) (*limitless.Page, error) {
	if !r.budget.Spend() {
		return nil, errBudgetExhausted
	}
	return r.fetcher.FetchPage(ctx, req)
}

func (r *runner) knows(id string) bool {
	return r.ledger.Knows(id)
}

// collect appends records not yet accumulated this run.
func (r *runner) collect(dst []models.LifelogRecord, fresh []models.LifelogRecord) []models.LifelogRecord {
	for i := range fresh {
		if _, dup := r.seen[fresh[i].ID]; dup {
			continue
		}
		r.seen[fresh[i].ID] = struct{}{}
		dst = append(dst, fresh[i])
	}
	return dst
}

func (r *runner) pageRequest(direction limitless.Direction, date, cursor string) limitless.PageRequest {
	return limitless.PageRequest{
		Direction:       direction,
		Date:            date,
		Cursor:          cursor,
		Limit:           r.cfg.BatchSize,
		IncludeMarkdown: true,
		IncludeHeadings: true,
	}
}

func failResult(apiCalls int, err error) *FetchResult {
	return &FetchResult{
		Success:  false,
		Message:  err.Error(),
		APICalls: apiCalls,
		Err:      err,
	}
}

// firstSync walks the whole stream oldest-first with cursor
// pagination, unbounded by date. The only stop conditions are stream
// exhaustion (a short page or a missing cursor) and the API-call
// budget.
func (r *runner) firstSync(ctx context.Context) *FetchResult {
	return r.ascendingScan(ctx, "first sync backfill")
}

// plainAscending is the diagnostic oldest-first scan. Identical
// mechanics to the first sync, but run against a populated ledger it
// filters known ids instead of accepting everything.
func (r *runner) plainAscending(ctx context.Context) *FetchResult {
	return r.ascendingScan(ctx, "ascending scan")
}

func (r *runner) ascendingScan(ctx context.Context, label string) *FetchResult {
	var accumulated []models.LifelogRecord
	cursor := ""

	for {
		page, err := r.fetch(ctx, r.pageRequest(limitless.DirectionAsc, "", cursor))
		if errors.Is(err, errBudgetExhausted) {
			models.SortRecordsAscending(accumulated)
			return &FetchResult{
				Records:  accumulated,
				Success:  true,
				Partial:  true,
				Message:  fmt.Sprintf("%s stopped at budget, %d records", label, len(accumulated)),
				APICalls: r.budget.Used(),
			}
		}
		if err != nil {
			return failResult(r.budget.Used(), err)
		}

		fresh, _ := Partition(page.Records, r.knows, limitless.DirectionAsc)
		accumulated = r.collect(accumulated, fresh)

		if len(page.Records) < r.cfg.BatchSize || !page.HasMore() {
			break
		}
		cursor = page.NextCursor
	}

	models.SortRecordsAscending(accumulated)
	return &FetchResult{
		Records:  accumulated,
		Success:  true,
		Message:  fmt.Sprintf("%s complete, %d records", label, len(accumulated)),
		APICalls: r.budget.Used(),
	}
}

// plainDescending is the diagnostic newest-first scan: it stops as
// soon as a known record proves the frontier is covered.
func (r *runner) plainDescending(ctx context.Context) *FetchResult {
	var accumulated []models.LifelogRecord
	cursor := ""

	for {
		page, err := r.fetch(ctx, r.pageRequest(limitless.DirectionDesc, "", cursor))
		if errors.Is(err, errBudgetExhausted) {
			models.SortRecordsAscending(accumulated)
			return &FetchResult{
				Records:  accumulated,
				Success:  true,
				Partial:  true,
				Message:  fmt.Sprintf("descending scan stopped at budget, %d records", len(accumulated)),
				APICalls: r.budget.Used(),
			}
		}
		if err != nil {
			return failResult(r.budget.Used(), err)
		}

		fresh, boundaryHit := Partition(page.Records, r.knows, limitless.DirectionDesc)
		accumulated = r.collect(accumulated, fresh)

		if boundaryHit || len(page.Records) < r.cfg.BatchSize || !page.HasMore() {
			break
		}
		cursor = page.NextCursor
	}

	models.SortRecordsAscending(accumulated)
	return &FetchResult{
		Records:  accumulated,
		Success:  true,
		Message:  fmt.Sprintf("descending scan complete, %d records", len(accumulated)),
		APICalls: r.budget.Used(),
	}
}
