// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

// Package ledger tracks what has already been synchronized: the known
// record identifiers, the time bounds of the local copy, and the
// watermark up to which the stream is considered complete.
package ledger

import (
	"time"

	"github.com/jdbarnes/lifelogd/internal/models"
)

// Ledger is the sync metadata for the local lifelog copy. All
// timestamps are Unix milliseconds. The zero value means no sync has
// ever completed.
//
// Invariants maintained by Merge:
//   - EarliestTime <= LatestTime when any record is known
//   - SyncedUntil never decreases
//   - KnownIDs contains exactly the ids of locally stored records
type Ledger struct {
	EarliestTime int64
	LatestTime   int64

	// SyncedUntil is the watermark: everything upstream with a start
	// time at or before it is known locally. Days at or before this
	// point are never re-walked.
	SyncedUntil int64

	// UpdatedAt stamps the last completed merge and doubles as the
	// cooperative staleness guard between overlapping runs.
	UpdatedAt int64

	KnownIDs map[string]struct{}
}

// New returns an empty ledger ready for a first sync.
func New() *Ledger {
	return &Ledger{KnownIDs: make(map[string]struct{})}
}

// Knows reports whether the record id has already been merged.
func (l *Ledger) Knows(id string) bool {
	_, ok := l.KnownIDs[id]
	return ok
}

// IsFirstSync reports whether no sync has ever completed. The selector
// uses this to choose the full ascending backfill.
func (l *Ledger) IsFirstSync() bool {
	return l.SyncedUntil == 0
}

// IsFresh reports whether the ledger was updated within the window.
// Runs against a fresh ledger are skipped; the window also serves as
// the lock timeout when a previous run died mid-flight.
func (l *Ledger) IsFresh(now time.Time, window time.Duration) bool {
	if l.UpdatedAt == 0 || window <= 0 {
		return false
	}
	return now.UnixMilli()-l.UpdatedAt < window.Milliseconds()
}

// LatestDate returns the calendar day of the newest known record in
// the given location, or "" when the ledger is empty.
func (l *Ledger) LatestDate(loc *time.Location) string {
	if l.LatestTime == 0 {
		return ""
	}
	return time.UnixMilli(l.LatestTime).In(loc).Format(models.DateLayout)
}

// Clone returns a deep copy, used to snapshot the ledger before a
// merge so the merge can be undone.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		EarliestTime: l.EarliestTime,
		LatestTime:   l.LatestTime,
		SyncedUntil:  l.SyncedUntil,
		UpdatedAt:    l.UpdatedAt,
		KnownIDs:     make(map[string]struct{}, len(l.KnownIDs)),
	}
	for id := range l.KnownIDs {
		c.KnownIDs[id] = struct{}{}
	}
	return c
}

// Merge folds fresh records into the ledger and returns the subset
// that was genuinely new. Records whose id is already known are
// dropped here regardless of what the caller believed; this re-filter
// is the last line of defense against double insertion.
//
// lastProcessedDate, when non-empty, is the newest calendar day the
// sync run fully processed; the watermark advances to at least the end
// of that day even if its pages held no new records. now stamps
// UpdatedAt.
func (l *Ledger) Merge(records []models.LifelogRecord, lastProcessedDate string, loc *time.Location, now time.Time) []models.LifelogRecord {
	if l.KnownIDs == nil {
		l.KnownIDs = make(map[string]struct{})
	}

	fresh := make([]models.LifelogRecord, 0, len(records))
	for i := range records {
		rec := &records[i]
		if l.Knows(rec.ID) {
			continue
		}
		l.KnownIDs[rec.ID] = struct{}{}
		if l.EarliestTime == 0 || rec.StartTime < l.EarliestTime {
			l.EarliestTime = rec.StartTime
		}
		if rec.EndTime > l.LatestTime {
			l.LatestTime = rec.EndTime
		}
		fresh = append(fresh, *rec)
	}

	watermark := l.LatestTime
	if lastProcessedDate != "" {
		if eod, ok := endOfDay(lastProcessedDate, loc); ok && eod > watermark {
			watermark = eod
		}
	}
	if watermark > l.SyncedUntil {
		l.SyncedUntil = watermark
	}
	l.UpdatedAt = now.UnixMilli()
	return fresh
}

// RemoveIDs drops the given ids and recomputes nothing: time bounds
// deliberately stay put after an undo, since the watermark describes
// what has been seen, not what is retained.
func (l *Ledger) RemoveIDs(ids []string) {
	for _, id := range ids {
		delete(l.KnownIDs, id)
	}
}

// Touch stamps UpdatedAt without changing sync state. Used by runs
// that complete without merging anything.
func (l *Ledger) Touch(now time.Time) {
	l.UpdatedAt = now.UnixMilli()
}

// endOfDay returns the last millisecond of the given YYYY-MM-DD day in
// loc. ok is false when the date does not parse.
func endOfDay(date string, loc *time.Location) (int64, bool) {
	t, err := time.ParseInLocation(models.DateLayout, date, loc)
	if err != nil {
		return 0, false
	}
	return t.AddDate(0, 0, 1).UnixMilli() - 1, true
}
