// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package engine

import (
	"github.com/jdbarnes/lifelogd/internal/limitless"
	"github.com/jdbarnes/lifelogd/internal/models"
)

// Partition splits a fetched page into records not yet known and
// reports whether a known record (the boundary) was encountered.
//
// For descending pages the walk stops at the first known id: everything
// after it in API order is presumed already known. This assumes the
// upstream returns records in strict time order with no gaps; if it
// ever back-fills edited records out of order, unseen records past the
// first duplicate would be skipped. The ascending walk checks every
// record independently because its goal is to capture everything new,
// not to find a frontier.
func Partition(records []models.LifelogRecord, knows func(string) bool, direction limitless.Direction) (fresh []models.LifelogRecord, boundaryHit bool) {
	for i := range records {
		if knows(records[i].ID) {
			boundaryHit = true
			if direction == limitless.DirectionDesc {
				return fresh, true
			}
			continue
		}
		fresh = append(fresh, records[i])
	}
	return fresh, boundaryHit
}
