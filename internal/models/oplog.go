// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package models

import "time"

// Operation categorizes entries in the append-only operation log.
type Operation string

const (
	OperationSync   Operation = "sync"
	OperationCreate Operation = "create"
	OperationRead   Operation = "read"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// OperationLogEntry is one row of the append-only audit trail. The engine
// writes exactly one entry per completed action; entries are never mutated
// or deleted by the engine.
type OperationLogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation Operation `json:"operation"`
	Table     string    `json:"table"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}
