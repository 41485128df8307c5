// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

// Package services adapts lifelogd's long-running components to
// suture's Serve(ctx) lifecycle.
package services

import (
	"context"
)

// StartStopManager matches the sync manager's lifecycle: Start spawns
// the periodic loop and returns, Stop blocks until it has drained.
type StartStopManager interface {
	Start(ctx context.Context)
	Stop()
}

// SyncService wraps the sync manager as a supervised service.
type SyncService struct {
	manager StartStopManager
}

// NewSyncService creates the wrapper.
func NewSyncService(manager StartStopManager) *SyncService {
	return &SyncService{manager: manager}
}

// Serve implements suture.Service: start the manager, block until the
// context is canceled, then stop it and wait for the in-flight run.
func (s *SyncService) Serve(ctx context.Context) error {
	s.manager.Start(ctx)
	<-ctx.Done()
	s.manager.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for supervision logs.
func (s *SyncService) String() string {
	return "sync-manager"
}
