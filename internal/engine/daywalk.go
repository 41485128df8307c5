// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package engine

import (
	"time"

	"github.com/jdbarnes/lifelogd/internal/models"
)

// DayWalker advances a calendar-day cursor one day at a time for
// date-scoped ascending fetches. The clock is injected so tests can
// pin "today".
type DayWalker struct {
	loc *time.Location
	now func() time.Time
}

// NewDayWalker builds a walker in the given location. now defaults to
// time.Now.
func NewDayWalker(loc *time.Location, now func() time.Time) *DayWalker {
	if now == nil {
		now = time.Now
	}
	return &DayWalker{loc: loc, now: now}
}

// NextDay returns the day after date, or "" when that day is strictly
// after today: a future day has nothing to fetch, which is the
// caught-up terminal condition. A malformed date also returns "".
func (w *DayWalker) NextDay(date string) string {
	t, err := time.ParseInLocation(models.DateLayout, date, w.loc)
	if err != nil {
		return ""
	}
	next := t.AddDate(0, 0, 1)
	today, err := time.ParseInLocation(models.DateLayout, w.Today(), w.loc)
	if err != nil {
		return ""
	}
	if next.After(today) {
		return ""
	}
	return next.Format(models.DateLayout)
}

// Today returns the current day in the walker's location.
func (w *DayWalker) Today() string {
	return w.now().In(w.loc).Format(models.DateLayout)
}

// DayOf returns the calendar day of a Unix-millisecond timestamp in
// the walker's location.
func (w *DayWalker) DayOf(unixMilli int64) string {
	return time.UnixMilli(unixMilli).In(w.loc).Format(models.DateLayout)
}
