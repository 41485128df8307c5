// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package limitless

import (
	"fmt"
	"time"

	"github.com/jdbarnes/lifelogd/internal/models"
)

// Direction orders a paginated fetch by record start time.
type Direction string

const (
	DirectionAsc  Direction = "asc"
	DirectionDesc Direction = "desc"
)

// PageRequest describes one page fetch against the lifelogs endpoint.
// Zero-value fields are omitted from the request.
type PageRequest struct {
	Direction Direction
	// Date scopes the fetch to one calendar day (YYYY-MM-DD) in the
	// client's configured timezone. Mutually exclusive with Start.
	Date string
	// Start scopes the fetch to records at or after this instant.
	Start time.Time
	// Cursor continues a previous page. Empty starts from the edge.
	Cursor string
	// Limit is the page size. Values above the client's cap are
	// clamped, zero uses the client default.
	Limit int

	IncludeMarkdown bool
	IncludeHeadings bool
}

// Page is the result of one page fetch. NextCursor is empty when the
// upstream has no further pages in the requested direction.
type Page struct {
	Records    []models.LifelogRecord
	NextCursor string
	Count      int
}

// HasMore reports whether another page can be requested.
func (p *Page) HasMore() bool {
	return p.NextCursor != ""
}

// Wire types below mirror the upstream JSON envelope:
// {"data": {"lifelogs": [...]}, "meta": {"lifelogs": {"nextCursor": ..., "count": ...}}}

type lifelogResponse struct {
	Data struct {
		Lifelogs []wireLifelog `json:"lifelogs"`
	} `json:"data"`
	Meta struct {
		Lifelogs struct {
			NextCursor *string `json:"nextCursor"`
			Count      int     `json:"count"`
		} `json:"lifelogs"`
	} `json:"meta"`
}

type wireLifelog struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Markdown  *string           `json:"markdown"`
	StartTime string            `json:"startTime"`
	EndTime   string            `json:"endTime"`
	UpdatedAt string            `json:"updatedAt"`
	IsStarred bool              `json:"isStarred"`
	Contents  []wireContentNode `json:"contents"`
}

type wireContentNode struct {
	Type              string            `json:"type"`
	Content           string            `json:"content"`
	StartTime         string            `json:"startTime,omitempty"`
	EndTime           string            `json:"endTime,omitempty"`
	StartOffsetMs     *int64            `json:"startOffsetMs,omitempty"`
	EndOffsetMs       *int64            `json:"endOffsetMs,omitempty"`
	SpeakerName       *string           `json:"speakerName,omitempty"`
	SpeakerIdentifier *string           `json:"speakerIdentifier,omitempty"`
	Children          []wireContentNode `json:"children,omitempty"`
}

// toRecord converts one wire lifelog into the internal record form,
// parsing ISO-8601 timestamps into Unix milliseconds. A record with an
// unparseable required timestamp is rejected rather than merged with a
// zero time, which would corrupt ledger bounds.
func (w *wireLifelog) toRecord() (models.LifelogRecord, error) {
	start, err := parseAPITime(w.StartTime)
	if err != nil {
		return models.LifelogRecord{}, fmt.Errorf("record %s: bad startTime: %w", w.ID, err)
	}
	end, err := parseAPITime(w.EndTime)
	if err != nil {
		return models.LifelogRecord{}, fmt.Errorf("record %s: bad endTime: %w", w.ID, err)
	}
	// updatedAt is absent on some older records; fall back to endTime
	// so the reconciliation sweep has a stable comparison point.
	updated := end
	if w.UpdatedAt != "" {
		if u, err := parseAPITime(w.UpdatedAt); err == nil {
			updated = u
		}
	}

	rec := models.LifelogRecord{
		ID:        w.ID,
		Title:     w.Title,
		Markdown:  w.Markdown,
		StartTime: start,
		EndTime:   end,
		UpdatedAt: updated,
		IsStarred: w.IsStarred,
	}
	if len(w.Contents) > 0 {
		rec.Contents = make([]models.ContentNode, 0, len(w.Contents))
		for i := range w.Contents {
			rec.Contents = append(rec.Contents, w.Contents[i].toNode())
		}
	}
	return rec, nil
}

func (w *wireContentNode) toNode() models.ContentNode {
	node := models.ContentNode{
		Type:              models.NodeType(w.Type),
		Content:           w.Content,
		StartOffsetMs:     w.StartOffsetMs,
		EndOffsetMs:       w.EndOffsetMs,
		SpeakerName:       w.SpeakerName,
		SpeakerIdentifier: w.SpeakerIdentifier,
	}
	if ms, err := parseAPITime(w.StartTime); err == nil && w.StartTime != "" {
		node.StartTime = &ms
	}
	if ms, err := parseAPITime(w.EndTime); err == nil && w.EndTime != "" {
		node.EndTime = &ms
	}
	for i := range w.Children {
		node.Children = append(node.Children, w.Children[i].toNode())
	}
	return node
}

// apiTimeLayouts are tried in order. The upstream emits RFC 3339 with
// and without sub-second precision, and occasionally without a zone
// offset (treated as UTC).
var apiTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func parseAPITime(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	for _, layout := range apiTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", s)
}
