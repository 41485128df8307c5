// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package engine

import (
	"github.com/jdbarnes/lifelogd/internal/config"
	"github.com/jdbarnes/lifelogd/internal/ledger"
)

// Strategy names the sync algorithm used for one run.
type Strategy string

const (
	// StrategyFirstSync is the full ascending backfill used when no
	// sync has ever completed.
	StrategyFirstSync Strategy = "first_sync"
	// StrategyWellBehaved is the default incremental path: probe, gap
	// check, bounded forward day-walk.
	StrategyWellBehaved Strategy = "well_behaved"
	// StrategyDescending fetches newest-first until it hits a known
	// record. Kept for diagnostics.
	StrategyDescending Strategy = "descending"
	// StrategyAscending fetches oldest-first until exhaustion,
	// filtering known ids. Kept for diagnostics.
	StrategyAscending Strategy = "ascending"
)

// SelectStrategy picks the algorithm for a run. A ledger that has
// never completed a sync always gets the full backfill; otherwise the
// configured strategy applies, with "auto" meaning well-behaved.
func SelectStrategy(cfg string, l *ledger.Ledger) Strategy {
	if l.IsFirstSync() {
		return StrategyFirstSync
	}
	switch cfg {
	case config.StrategyDescending:
		return StrategyDescending
	case config.StrategyAscending:
		return StrategyAscending
	default:
		return StrategyWellBehaved
	}
}
