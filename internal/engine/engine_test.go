// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package engine

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/jdbarnes/lifelogd/internal/config"
	"github.com/jdbarnes/lifelogd/internal/ledger"
	"github.com/jdbarnes/lifelogd/internal/limitless"
	"github.com/jdbarnes/lifelogd/internal/models"
	"github.com/jdbarnes/lifelogd/internal/store"
)

// fakeUpstream serves a fixed record set with the upstream's
// pagination semantics: date scoping, asc/desc ordering, offset
// cursors, and page limits. It counts every call so budget tests can
// assert on request totals.
type fakeUpstream struct {
	all   []models.LifelogRecord
	loc   *time.Location
	calls int
	err   error // when set, every fetch fails with it
}

func (f *fakeUpstream) FetchPage(_ context.Context, req limitless.PageRequest) (*limitless.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	view := make([]models.LifelogRecord, 0, len(f.all))
	for _, r := range f.all {
		if req.Date != "" && r.StartDate(f.loc) != req.Date {
			continue
		}
		if req.Date == "" && !req.Start.IsZero() && r.StartTime < req.Start.UnixMilli() {
			continue
		}
		view = append(view, r)
	}
	sort.Slice(view, func(i, j int) bool { return view[i].StartTime < view[j].StartTime })
	if req.Direction == limitless.DirectionDesc {
		for i, j := 0, len(view)-1; i < j; i, j = i+1, j-1 {
			view[i], view[j] = view[j], view[i]
		}
	}

	offset := 0
	if req.Cursor != "" {
		offset, _ = strconv.Atoi(req.Cursor)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 25
	}
	end := offset + limit
	if end > len(view) {
		end = len(view)
	}
	if offset > len(view) {
		offset = len(view)
	}

	page := &limitless.Page{
		Records: view[offset:end],
		Count:   end - offset,
	}
	if end < len(view) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

type testEnv struct {
	engine   *Engine
	records  *store.Store
	ledgers  *ledger.Store
	upstream *fakeUpstream
	cfg      *config.SyncConfig
}

func newTestEnv(t *testing.T, now time.Time, upstream *fakeUpstream) *testEnv {
	t.Helper()

	records, err := store.New(&config.DatabaseConfig{Path: "", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("store.New() error: %v", err)
	}
	t.Cleanup(func() { _ = records.Close() })

	ledgers, err := ledger.Open(&config.LedgerConfig{Path: ""})
	if err != nil {
		t.Fatalf("ledger.Open() error: %v", err)
	}
	t.Cleanup(func() { _ = ledgers.Close() })

	cfg := &config.SyncConfig{
		Interval:               15 * time.Minute,
		Strategy:               config.StrategyAuto,
		BatchSize:              3,
		MaxBatchSize:           100,
		MaxAPICalls:            30,
		MaxNewRecords:          300,
		GapScanCalls:           5,
		DuplicatePageThreshold: 3,
		FreshnessWindow:        0, // disabled unless a test opts in
	}
	if upstream.loc == nil {
		upstream.loc = time.UTC
	}

	eng := New(upstream, records, ledgers, cfg, time.UTC, nil, fixedNow(now))
	return &testEnv{engine: eng, records: records, ledgers: ledgers, upstream: upstream, cfg: cfg}
}

func day(d int) time.Time {
	// Test calendar: day(0) = 2026-08-18.
	return time.Date(2026, 8, 18+d, 0, 0, 0, 0, time.UTC)
}

func dayStr(d int) string {
	return day(d).Format(models.DateLayout)
}

func endOfDayMs(d int) int64 {
	return day(d + 1).UnixMilli() - 1
}

func lrec(id string, start time.Time) models.LifelogRecord {
	md := "# " + id
	end := start.Add(30 * time.Minute)
	return models.LifelogRecord{
		ID:        id,
		Title:     id,
		Markdown:  &md,
		StartTime: start.UnixMilli(),
		EndTime:   end.UnixMilli(),
		UpdatedAt: end.UnixMilli(),
	}
}

func TestFirstSyncBackfill(t *testing.T) {
	// 7 records over three days; batch size 3 means pages of 3, 3, 1.
	upstream := &fakeUpstream{all: []models.LifelogRecord{
		lrec("a1", day(0).Add(8*time.Hour)),
		lrec("a2", day(0).Add(10*time.Hour)),
		lrec("b1", day(1).Add(9*time.Hour)),
		lrec("b2", day(1).Add(11*time.Hour)),
		lrec("b3", day(1).Add(13*time.Hour)),
		lrec("c1", day(2).Add(9*time.Hour)),
		lrec("c2", day(2).Add(10*time.Hour)),
	}}
	env := newTestEnv(t, day(2).Add(18*time.Hour), upstream)
	ctx := context.Background()

	result, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Strategy != StrategyFirstSync {
		t.Errorf("Strategy = %q, want first_sync", result.Strategy)
	}
	if result.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %q, want success", result.Outcome)
	}
	if result.NewRecords != 7 || !result.Found() {
		t.Errorf("NewRecords = %d, want 7", result.NewRecords)
	}
	if upstream.calls != 3 {
		t.Errorf("api calls = %d, want 3", upstream.calls)
	}

	l, _ := env.ledgers.Load(ctx)
	if len(l.KnownIDs) != 7 {
		t.Errorf("KnownIDs = %d, want 7", len(l.KnownIDs))
	}
	wantUntil := day(2).Add(10*time.Hour + 30*time.Minute).UnixMilli() // max end time
	if l.SyncedUntil != wantUntil {
		t.Errorf("SyncedUntil = %d, want %d", l.SyncedUntil, wantUntil)
	}

	n, _ := env.records.Count(ctx)
	if n != 7 {
		t.Errorf("stored records = %d, want 7", n)
	}

	// Exactly one audit entry for the run.
	ops, _ := env.records.ListOperations(ctx, 10)
	if len(ops) != 1 || ops[0].Operation != models.OperationSync || !ops[0].Success {
		t.Errorf("operation log = %+v, want one successful sync entry", ops)
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	upstream := &fakeUpstream{all: []models.LifelogRecord{
		lrec("a1", day(0).Add(8*time.Hour)),
		lrec("a2", day(0).Add(10*time.Hour)),
	}}
	// "Today" is the day of the newest record.
	env := newTestEnv(t, day(0).Add(20*time.Hour), upstream)
	ctx := context.Background()

	if _, err := env.engine.Run(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := env.ledgers.Load(ctx)
	countBefore, _ := env.records.Count(ctx)

	result, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Strategy != StrategyWellBehaved {
		t.Errorf("Strategy = %q, want well_behaved", result.Strategy)
	}
	if result.Outcome != OutcomeNoop || result.Found() {
		t.Errorf("Outcome = %q with %d records, want noop with 0", result.Outcome, result.NewRecords)
	}

	after, _ := env.ledgers.Load(ctx)
	if after.SyncedUntil != before.SyncedUntil {
		t.Errorf("SyncedUntil changed on idempotent run: %d -> %d", before.SyncedUntil, after.SyncedUntil)
	}
	if len(after.KnownIDs) != len(before.KnownIDs) {
		t.Errorf("KnownIDs changed on idempotent run: %d -> %d", len(before.KnownIDs), len(after.KnownIDs))
	}
	countAfter, _ := env.records.Count(ctx)
	if countAfter != countBefore {
		t.Errorf("record count changed on idempotent run: %d -> %d", countBefore, countAfter)
	}
}

func TestProbeAdvancesThenWalksForward(t *testing.T) {
	// Day 0 is already synced; new records appear on day 1 (today).
	upstream := &fakeUpstream{all: []models.LifelogRecord{
		lrec("a1", day(0).Add(8*time.Hour)),
		lrec("a2", day(0).Add(10*time.Hour)),
	}}
	env := newTestEnv(t, day(1).Add(18*time.Hour), upstream)
	ctx := context.Background()

	if _, err := env.engine.Run(ctx); err != nil {
		t.Fatal(err)
	}
	beforeUntil := mustLedger(t, env).SyncedUntil

	upstream.all = append(upstream.all,
		lrec("b1", day(1).Add(9*time.Hour)),
		lrec("b2", day(1).Add(11*time.Hour)),
	)

	result, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %q (%s), want success", result.Outcome, result.Message)
	}
	if result.NewRecords != 2 {
		t.Errorf("NewRecords = %d, want 2", result.NewRecords)
	}
	if result.LastProcessedDate != dayStr(1) {
		t.Errorf("LastProcessedDate = %q, want %q", result.LastProcessedDate, dayStr(1))
	}

	l := mustLedger(t, env)
	if !l.Knows("b1") || !l.Knows("b2") {
		t.Error("day 1 records missing from ledger")
	}
	// Monotonicity: watermark moved forward, never back.
	if l.SyncedUntil <= beforeUntil {
		t.Errorf("SyncedUntil = %d, want > %d", l.SyncedUntil, beforeUntil)
	}
	if l.SyncedUntil != endOfDayMs(1) {
		t.Errorf("SyncedUntil = %d, want end of day 1 (%d)", l.SyncedUntil, endOfDayMs(1))
	}
}

func TestGapCheckCollectsMissedRecords(t *testing.T) {
	// Day 0 synced with two records, then two more appear on day 0
	// after the sync (the gap), and today is day 1 with nothing new.
	upstream := &fakeUpstream{all: []models.LifelogRecord{
		lrec("a1", day(0).Add(8*time.Hour)),
		lrec("a2", day(0).Add(10*time.Hour)),
	}}
	env := newTestEnv(t, day(1).Add(12*time.Hour), upstream)
	ctx := context.Background()

	if _, err := env.engine.Run(ctx); err != nil {
		t.Fatal(err)
	}

	upstream.all = append(upstream.all,
		lrec("a3", day(0).Add(14*time.Hour)),
		lrec("a4", day(0).Add(16*time.Hour)),
	)

	result, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %q (%s), want success", result.Outcome, result.Message)
	}
	if result.NewRecords != 2 {
		t.Errorf("NewRecords = %d, want the 2 missed records", result.NewRecords)
	}

	l := mustLedger(t, env)
	if !l.Knows("a3") || !l.Knows("a4") {
		t.Error("gap records missing from ledger")
	}
	n, _ := env.records.Count(ctx)
	if n != 4 {
		t.Errorf("stored records = %d, want 4", n)
	}
}

func TestNeedDupeConditionLeavesLedgerUntouched(t *testing.T) {
	// The ledger claims day 0 is synced with ids the upstream never
	// returns; the gap scan exhausts the day without proving a
	// boundary, so the run must be rejected wholesale.
	upstream := &fakeUpstream{all: []models.LifelogRecord{
		lrec("u1", day(0).Add(8*time.Hour)),
		lrec("u2", day(0).Add(10*time.Hour)),
		lrec("u3", day(0).Add(12*time.Hour)),
	}}
	env := newTestEnv(t, day(1).Add(12*time.Hour), upstream)
	ctx := context.Background()

	seeded := ledger.New()
	for _, id := range []string{"g1", "g2", "g3", "g4", "g5"} {
		seeded.KnownIDs[id] = struct{}{}
	}
	seeded.EarliestTime = day(0).Add(6 * time.Hour).UnixMilli()
	seeded.LatestTime = day(0).Add(7 * time.Hour).UnixMilli()
	seeded.SyncedUntil = endOfDayMs(0)
	if err := env.ledgers.Save(ctx, seeded); err != nil {
		t.Fatal(err)
	}

	result, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeFailure {
		t.Fatalf("Outcome = %q, want failure", result.Outcome)
	}
	if !errors.Is(result.Err, ErrNeedDupeCondition) {
		t.Errorf("Err = %v, want ErrNeedDupeCondition", result.Err)
	}

	l := mustLedger(t, env)
	if l.SyncedUntil != endOfDayMs(0) {
		t.Errorf("SyncedUntil = %d, ledger was touched by a rejected run", l.SyncedUntil)
	}
	if len(l.KnownIDs) != 5 {
		t.Errorf("KnownIDs = %d, want the 5 seeded ids", len(l.KnownIDs))
	}
	n, _ := env.records.Count(ctx)
	if n != 0 {
		t.Errorf("stored records = %d, want 0 after rejected run", n)
	}
}

func TestBudgetExhaustionIsPartialSuccess(t *testing.T) {
	// Day 0 is synced; days 1-3 are empty; today is day 4. With a
	// budget of 3 (one probe plus two day fetches) the walk stops
	// after day 2 and resumes there next time.
	upstream := &fakeUpstream{all: []models.LifelogRecord{
		lrec("a1", day(0).Add(8*time.Hour)),
	}}
	env := newTestEnv(t, day(4).Add(12*time.Hour), upstream)
	ctx := context.Background()

	if _, err := env.engine.Run(ctx); err != nil {
		t.Fatal(err)
	}

	env.cfg.MaxAPICalls = 3
	callsBefore := upstream.calls

	result, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomePartial {
		t.Fatalf("Outcome = %q (%s), want partial", result.Outcome, result.Message)
	}
	if result.LastProcessedDate != dayStr(2) {
		t.Errorf("LastProcessedDate = %q, want %q", result.LastProcessedDate, dayStr(2))
	}
	if got := upstream.calls - callsBefore; got > 3 {
		t.Errorf("issued %d api calls, budget was 3", got)
	}

	l := mustLedger(t, env)
	if l.SyncedUntil != endOfDayMs(2) {
		t.Errorf("SyncedUntil = %d, want end of day 2 (%d)", l.SyncedUntil, endOfDayMs(2))
	}

	// The next run resumes from day 3, not day 1.
	env.cfg.MaxAPICalls = 30
	result, err = env.engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeNoop {
		t.Errorf("resume Outcome = %q (%s), want noop", result.Outcome, result.Message)
	}
	l = mustLedger(t, env)
	if l.SyncedUntil != endOfDayMs(4) {
		t.Errorf("SyncedUntil = %d, want end of day 4 (%d)", l.SyncedUntil, endOfDayMs(4))
	}
}

func TestDuplicatePageCutoff(t *testing.T) {
	// The watermark points at empty day 0 while day 1 holds 15
	// already-known records. The forward walk sees four consecutive
	// duplicate-only pages and cuts out instead of paging to the end.
	var all []models.LifelogRecord
	seeded := ledger.New()
	for i := 0; i < 15; i++ {
		r := lrec("k"+strconv.Itoa(i), day(1).Add(time.Duration(i)*time.Hour))
		all = append(all, r)
		seeded.KnownIDs[r.ID] = struct{}{}
	}
	seeded.EarliestTime = all[0].StartTime
	seeded.LatestTime = all[len(all)-1].EndTime
	seeded.SyncedUntil = endOfDayMs(0)

	upstream := &fakeUpstream{all: all}
	env := newTestEnv(t, day(1).Add(20*time.Hour), upstream)
	ctx := context.Background()
	if err := env.ledgers.Save(ctx, seeded); err != nil {
		t.Fatal(err)
	}

	result, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome == OutcomeFailure {
		t.Fatalf("Outcome = failure (%s), want defensive stop", result.Message)
	}
	if result.NewRecords != 0 {
		t.Errorf("NewRecords = %d, want 0", result.NewRecords)
	}
	// Probe plus 4 duplicate pages; the 5th page is never requested.
	if upstream.calls != 5 {
		t.Errorf("api calls = %d, want 5 (cutoff after 4 duplicate pages)", upstream.calls)
	}
}

func TestFreshnessGuardSkipsRun(t *testing.T) {
	upstream := &fakeUpstream{all: []models.LifelogRecord{
		lrec("a1", day(0).Add(8*time.Hour)),
	}}
	env := newTestEnv(t, day(0).Add(20*time.Hour), upstream)
	ctx := context.Background()

	if _, err := env.engine.Run(ctx); err != nil {
		t.Fatal(err)
	}
	callsBefore := upstream.calls

	env.cfg.FreshnessWindow = 2 * time.Minute
	result, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeNoop {
		t.Errorf("Outcome = %q, want noop", result.Outcome)
	}
	if upstream.calls != callsBefore {
		t.Errorf("fresh-ledger run issued %d api calls", upstream.calls-callsBefore)
	}
}

func TestDescendingStrategy(t *testing.T) {
	upstream := &fakeUpstream{all: []models.LifelogRecord{
		lrec("old1", day(0).Add(8*time.Hour)),
		lrec("old2", day(0).Add(10*time.Hour)),
	}}
	env := newTestEnv(t, day(1).Add(12*time.Hour), upstream)
	ctx := context.Background()

	if _, err := env.engine.Run(ctx); err != nil {
		t.Fatal(err)
	}

	upstream.all = append(upstream.all,
		lrec("new1", day(1).Add(9*time.Hour)),
		lrec("new2", day(1).Add(10*time.Hour)),
	)
	env.cfg.Strategy = config.StrategyDescending

	result, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Strategy != StrategyDescending {
		t.Errorf("Strategy = %q, want descending", result.Strategy)
	}
	if result.NewRecords != 2 {
		t.Errorf("NewRecords = %d, want 2", result.NewRecords)
	}
	l := mustLedger(t, env)
	if !l.Knows("new1") || !l.Knows("new2") {
		t.Error("descending scan missed new records")
	}
}

func TestUndoLastSync(t *testing.T) {
	upstream := &fakeUpstream{all: []models.LifelogRecord{
		lrec("a1", day(0).Add(8*time.Hour)),
		lrec("a2", day(0).Add(10*time.Hour)),
	}}
	env := newTestEnv(t, day(1).Add(12*time.Hour), upstream)
	ctx := context.Background()

	if _, err := env.engine.Run(ctx); err != nil {
		t.Fatal(err)
	}

	upstream.all = append(upstream.all,
		lrec("b1", day(1).Add(9*time.Hour)),
		lrec("b2", day(1).Add(10*time.Hour)),
	)
	if _, err := env.engine.Run(ctx); err != nil {
		t.Fatal(err)
	}
	n, _ := env.records.Count(ctx)
	if n != 4 {
		t.Fatalf("stored records = %d, want 4 before undo", n)
	}

	removed, err := env.engine.UndoLastSync(ctx)
	if err != nil {
		t.Fatalf("UndoLastSync() error: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	n, _ = env.records.Count(ctx)
	if n != 2 {
		t.Errorf("stored records = %d after undo, want 2", n)
	}
	l := mustLedger(t, env)
	if l.Knows("b1") || l.Knows("b2") {
		t.Error("undone records still in ledger")
	}
	if !l.Knows("a1") || !l.Knows("a2") {
		t.Error("undo removed records from an earlier sync")
	}

	if _, err := env.engine.UndoLastSync(ctx); !errors.Is(err, ErrNoUndo) {
		t.Errorf("second undo = %v, want ErrNoUndo", err)
	}
}

func TestDeleteAll(t *testing.T) {
	upstream := &fakeUpstream{all: []models.LifelogRecord{
		lrec("a1", day(0).Add(8*time.Hour)),
	}}
	env := newTestEnv(t, day(0).Add(20*time.Hour), upstream)
	ctx := context.Background()

	if _, err := env.engine.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if err := env.engine.DeleteAll(ctx, false); !errors.Is(err, ErrConfirmRequired) {
		t.Errorf("DeleteAll(false) = %v, want ErrConfirmRequired", err)
	}
	if err := env.engine.DeleteAll(ctx, true); err != nil {
		t.Fatalf("DeleteAll(true) error: %v", err)
	}

	n, _ := env.records.Count(ctx)
	if n != 0 {
		t.Errorf("stored records = %d, want 0", n)
	}
	l := mustLedger(t, env)
	if !l.IsFirstSync() {
		t.Error("ledger not reset to first-sync state")
	}
}

func TestReconcilePatchesUpdatedRecords(t *testing.T) {
	rec := lrec("a1", day(0).Add(8*time.Hour))
	upstream := &fakeUpstream{all: []models.LifelogRecord{rec}}
	env := newTestEnv(t, day(0).Add(20*time.Hour), upstream)
	ctx := context.Background()

	if _, err := env.engine.Run(ctx); err != nil {
		t.Fatal(err)
	}

	// Upstream edits the record after the merge.
	edited := rec
	edited.Title = "edited upstream"
	edited.UpdatedAt = rec.UpdatedAt + time.Hour.Milliseconds()
	upstream.all = []models.LifelogRecord{edited}

	patched, err := env.engine.Reconcile(ctx, 7)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if patched != 1 {
		t.Errorf("patched = %d, want 1", patched)
	}
	got, err := env.records.GetByID(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "edited upstream" {
		t.Errorf("Title = %q, want patched value", got.Title)
	}

	// A second sweep finds nothing newer.
	patched, err = env.engine.Reconcile(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if patched != 0 {
		t.Errorf("second sweep patched = %d, want 0", patched)
	}
}

func TestUpstreamFailureLeavesStateUntouched(t *testing.T) {
	upstream := &fakeUpstream{
		err: &limitless.APIError{StatusCode: 500, Category: limitless.CategoryServer},
	}
	env := newTestEnv(t, day(0).Add(12*time.Hour), upstream)
	ctx := context.Background()

	result, err := env.engine.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error: %v (failures must come back in the result)", err)
	}
	if result.Outcome != OutcomeFailure {
		t.Errorf("Outcome = %q, want failure", result.Outcome)
	}

	l := mustLedger(t, env)
	if !l.IsFirstSync() {
		t.Error("failed run advanced the ledger")
	}

	ops, _ := env.records.ListOperations(ctx, 10)
	if len(ops) != 1 || ops[0].Success {
		t.Errorf("operation log = %+v, want one failed entry", ops)
	}
}

func TestSelectStrategy(t *testing.T) {
	empty := ledger.New()
	synced := ledger.New()
	synced.SyncedUntil = 1

	tests := []struct {
		name string
		cfg  string
		l    *ledger.Ledger
		want Strategy
	}{
		{"first sync wins over config", config.StrategyDescending, empty, StrategyFirstSync},
		{"auto means well-behaved", config.StrategyAuto, synced, StrategyWellBehaved},
		{"explicit descending", config.StrategyDescending, synced, StrategyDescending},
		{"explicit ascending", config.StrategyAscending, synced, StrategyAscending},
		{"explicit well-behaved", config.StrategyWellBehaved, synced, StrategyWellBehaved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectStrategy(tt.cfg, tt.l); got != tt.want {
				t.Errorf("SelectStrategy(%q) = %q, want %q", tt.cfg, got, tt.want)
			}
		})
	}
}

func mustLedger(t *testing.T, env *testEnv) *ledger.Ledger {
	t.Helper()
	l, err := env.ledgers.Load(context.Background())
	if err != nil {
		t.Fatalf("ledger load: %v", err)
	}
	return l
}
