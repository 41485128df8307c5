// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

// Package models defines the domain types shared across lifelogd packages:
// lifelog records, their structured content tree, and the operation log.
package models

import (
	"time"
)

// NodeType identifies the kind of a structured content node.
type NodeType string

const (
	NodeHeading1   NodeType = "heading1"
	NodeHeading2   NodeType = "heading2"
	NodeHeading3   NodeType = "heading3"
	NodeBlockquote NodeType = "blockquote"
	NodeParagraph  NodeType = "paragraph"
)

// ContentNode is one node of a lifelog's structured content tree.
// Children are owned exclusively by their parent record.
type ContentNode struct {
	Type              NodeType      `json:"type"`
	Content           string        `json:"content"`
	StartTime         *int64        `json:"startTime,omitempty"` // Unix ms
	EndTime           *int64        `json:"endTime,omitempty"`   // Unix ms
	StartOffsetMs     *int64        `json:"startOffsetMs,omitempty"`
	EndOffsetMs       *int64        `json:"endOffsetMs,omitempty"`
	SpeakerName       *string       `json:"speakerName,omitempty"`
	SpeakerIdentifier *string       `json:"speakerIdentifier,omitempty"`
	Children          []ContentNode `json:"children,omitempty"`
}

// LifelogRecord is one record of the upstream lifelog stream.
//
// ID is the stable external identifier and is unique. All timestamps are
// Unix milliseconds. StartTime <= EndTime holds for records accepted by
// the sync engine. Once merged, a record is immutable except for the
// reconciliation sweep, which compares UpdatedAt to decide patches.
type LifelogRecord struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Markdown  *string       `json:"markdown"`
	StartTime int64         `json:"startTime"`
	EndTime   int64         `json:"endTime"`
	UpdatedAt int64         `json:"updatedAt"`
	IsStarred bool          `json:"isStarred"`
	Contents  []ContentNode `json:"contents,omitempty"`
}

// Start returns the record start as time.Time.
func (r *LifelogRecord) Start() time.Time {
	return time.UnixMilli(r.StartTime).UTC()
}

// End returns the record end as time.Time.
func (r *LifelogRecord) End() time.Time {
	return time.UnixMilli(r.EndTime).UTC()
}

// StartDate returns the record's calendar day (YYYY-MM-DD) in the given
// location. Date scoping of fetches uses the same location, so a record's
// day is stable across the probe, gap check, and forward walk.
func (r *LifelogRecord) StartDate(loc *time.Location) string {
	return time.UnixMilli(r.StartTime).In(loc).Format(DateLayout)
}

// DateLayout is the calendar-day format used for date-scoped fetches.
const DateLayout = "2006-01-02"

// SortRecordsAscending orders records by start time, oldest first.
// Ties are broken by id so the order is deterministic.
func SortRecordsAscending(records []LifelogRecord) {
	// Insertion sort keeps the common already-sorted case cheap; pages
	// arrive mostly ordered from the upstream API.
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && recordLess(&records[j], &records[j-1]); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}

func recordLess(a, b *LifelogRecord) bool {
	if a.StartTime != b.StartTime {
		return a.StartTime < b.StartTime
	}
	return a.ID < b.ID
}
