// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package engine

import (
	"context"
	"errors"

	"github.com/jdbarnes/lifelogd/internal/limitless"
	"github.com/jdbarnes/lifelogd/internal/models"
)

// Fetcher issues one upstream page request per call. Both the plain
// client and its circuit breaker wrapper satisfy it.
type Fetcher interface {
	FetchPage(ctx context.Context, req limitless.PageRequest) (*limitless.Page, error)
}

// Outcome classifies how a sync run ended.
type Outcome string

const (
	// OutcomeSuccess means the run covered everything it set out to.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means the API-call budget ran out mid-walk; the
	// ledger advanced to the last confirmed point and the next run
	// resumes there.
	OutcomePartial Outcome = "partial"
	// OutcomeNoop means the run was skipped (ledger fresh) or found
	// the stream already current.
	OutcomeNoop Outcome = "noop"
	// OutcomeFailure means nothing was merged and the ledger is
	// untouched.
	OutcomeFailure Outcome = "failure"
)

// ErrNeedDupeCondition is the engine-internal failure raised when the
// gap check cannot prove it reached already-known territory. Accepting
// such a result would record a gap as if it were complete coverage, so
// the whole run is discarded instead.
var ErrNeedDupeCondition = errors.New("gap check could not establish a duplicate boundary")

// FetchResult is the outcome of one strategy invocation. It lives for
// a single run and is never persisted.
type FetchResult struct {
	Records []models.LifelogRecord
	Success bool
	// Partial marks a successful run that stopped early on a bound
	// (API-call budget or max-new-records cap).
	Partial bool
	Message string
	// LastProcessedDate is the newest calendar day fully covered by
	// the run, or "" when no day-scoped progress was made. It
	// advances the watermark even when Records is empty.
	LastProcessedDate string
	APICalls          int
	Err               error
}

// Result is what a full engine run reports to callers.
type Result struct {
	Strategy          Strategy
	Outcome           Outcome
	NewRecords        int
	APICalls          int
	LastProcessedDate string
	Message           string
	Err               error
}

// Found reports whether the run merged any new records, the boolean
// the operator-facing trigger returns.
func (r *Result) Found() bool {
	return r.NewRecords > 0
}

// callBudget enforces the per-run cap on upstream requests. Every
// fetch goes through Spend, so the cap holds across probe, gap check,
// and forward walk together.
type callBudget struct {
	max  int
	used int
}

func newCallBudget(max int) *callBudget {
	return &callBudget{max: max}
}

// Spend consumes one call. It returns false when the budget is already
// exhausted, in which case no request may be issued.
func (b *callBudget) Spend() bool {
	if b.used >= b.max {
		return false
	}
	b.used++
	return true
}

func (b *callBudget) Used() int {
	return b.used
}

func (b *callBudget) Exhausted() bool {
	return b.used >= b.max
}
