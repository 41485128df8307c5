// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/jdbarnes/lifelogd/internal/config"
	"github.com/jdbarnes/lifelogd/internal/logging"
)

// Manager runs the engine periodically and serializes runs: the ticker
// loop and operator-triggered runs share one mutex, so no two runs
// ever race the ledger from inside this process.
type Manager struct {
	engine *Engine
	cfg    *config.SyncConfig

	syncMu sync.Mutex // held for the duration of a run
	mu     sync.RWMutex
	last   time.Time
	result *Result

	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	lastReconcile time.Time
}

// NewManager creates a manager for the engine.
func NewManager(engine *Engine, cfg *config.SyncConfig) *Manager {
	return &Manager{
		engine:   engine,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start launches the periodic loop. An initial run fires immediately.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.syncLoop(ctx)
	logging.Info().Dur("interval", m.cfg.Interval).Msg("Sync manager started")
}

// Stop halts the loop and waits for an in-flight run to finish.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")
}

func (m *Manager) syncLoop(ctx context.Context) {
	defer m.wg.Done()

	m.runOnce(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runOnce(ctx)
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) runOnce(ctx context.Context) {
	result, err := m.TriggerSync(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Scheduled sync failed")
		return
	}

	if m.cfg.ReconcileEnabled && result.Outcome != OutcomeFailure {
		m.maybeReconcile(ctx)
	}
}

// TriggerSync runs one sync invocation immediately. Concurrent callers
// queue behind the mutex rather than racing. Returns the run result;
// callers wanting the operator-facing boolean use Result.Found.
func (m *Manager) TriggerSync(ctx context.Context) (*Result, error) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	result, err := m.engine.Run(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.last = time.Now()
	m.result = result
	m.mu.Unlock()
	return result, nil
}

// maybeReconcile runs the updated-record sweep at most once a day.
func (m *Manager) maybeReconcile(ctx context.Context) {
	m.mu.Lock()
	due := time.Since(m.lastReconcile) >= 24*time.Hour
	if due {
		m.lastReconcile = time.Now()
	}
	m.mu.Unlock()
	if !due {
		return
	}

	if _, err := m.engine.Reconcile(ctx, m.cfg.ReconcileWindowDays); err != nil {
		logging.Error().Err(err).Msg("Reconciliation sweep failed")
	}
}

// LastSyncTime returns when the last run completed, zero if none has.
func (m *Manager) LastSyncTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// LastResult returns the most recent run result, nil if none has run.
func (m *Manager) LastResult() *Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.result
}
