// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/jdbarnes/lifelogd/internal/config"
	"github.com/jdbarnes/lifelogd/internal/logging"
	"github.com/jdbarnes/lifelogd/internal/metrics"
)

const (
	// currentKey holds the live ledger.
	currentKey = "ledger:current"
	// snapshotKey holds the ledger as it was before the last merge.
	snapshotKey = "ledger:snapshot"
	// snapshotAddedKey holds the record ids added by the last merge.
	snapshotAddedKey = "ledger:snapshot:added"
)

// ErrNoSnapshot is returned by LoadSnapshot when there is nothing to
// undo.
var ErrNoSnapshot = errors.New("ledger: no snapshot available")

// Store persists the ledger in BadgerDB. The ledger and the record
// store are written in lockstep by the engine; the snapshot written on
// each merge makes the last merge reversible.
type Store struct {
	db *badger.DB
}

// Open creates a Badger-backed ledger store. An empty path opens an
// in-memory database, used by tests.
func Open(cfg *config.LedgerConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing Badger instance.
func NewWithDB(db *badger.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ledgerWire is the serialized ledger form. Ids are stored as a sorted
// list so the on-disk value is deterministic.
type ledgerWire struct {
	EarliestTime int64    `json:"earliestTime"`
	LatestTime   int64    `json:"latestTime"`
	SyncedUntil  int64    `json:"syncedUntil"`
	UpdatedAt    int64    `json:"updatedAt"`
	KnownIDs     []string `json:"knownIds"`
}

func toWire(l *Ledger) *ledgerWire {
	ids := make([]string, 0, len(l.KnownIDs))
	for id := range l.KnownIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &ledgerWire{
		EarliestTime: l.EarliestTime,
		LatestTime:   l.LatestTime,
		SyncedUntil:  l.SyncedUntil,
		UpdatedAt:    l.UpdatedAt,
		KnownIDs:     ids,
	}
}

func fromWire(w *ledgerWire) *Ledger {
	l := &Ledger{
		EarliestTime: w.EarliestTime,
		LatestTime:   w.LatestTime,
		SyncedUntil:  w.SyncedUntil,
		UpdatedAt:    w.UpdatedAt,
		KnownIDs:     make(map[string]struct{}, len(w.KnownIDs)),
	}
	for _, id := range w.KnownIDs {
		l.KnownIDs[id] = struct{}{}
	}
	return l
}

// Load retrieves the current ledger. A store that has never been
// written returns a fresh empty ledger, not an error.
func (s *Store) Load(ctx context.Context) (*Ledger, error) {
	var wire *ledgerWire
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(currentKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			wire = &ledgerWire{}
			return json.Unmarshal(val, wire)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if wire == nil {
		return New(), nil
	}
	ledger := fromWire(wire)
	metrics.LedgerKnownIDs.Set(float64(len(ledger.KnownIDs)))
	metrics.LedgerSyncedUntil.Set(float64(ledger.SyncedUntil) / 1000)
	return ledger, nil
}

// Save persists the current ledger without touching the snapshot.
func (s *Store) Save(ctx context.Context, l *Ledger) error {
	data, err := json.Marshal(toWire(l))
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(currentKey), data)
	})
	if err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	metrics.LedgerKnownIDs.Set(float64(len(l.KnownIDs)))
	metrics.LedgerSyncedUntil.Set(float64(l.SyncedUntil) / 1000)
	return nil
}

// SaveWithSnapshot persists the merged ledger and, in the same
// transaction, the pre-merge ledger plus the ids the merge added. The
// snapshot overwrites any previous one, so only the most recent merge
// is reversible.
func (s *Store) SaveWithSnapshot(ctx context.Context, merged, previous *Ledger, addedIDs []string) error {
	mergedData, err := json.Marshal(toWire(merged))
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	prevData, err := json.Marshal(toWire(previous))
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	addedData, err := json.Marshal(addedIDs)
	if err != nil {
		return fmt.Errorf("marshal added ids: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(currentKey), mergedData); err != nil {
			return err
		}
		if err := txn.Set([]byte(snapshotKey), prevData); err != nil {
			return err
		}
		return txn.Set([]byte(snapshotAddedKey), addedData)
	})
	if err != nil {
		return fmt.Errorf("save ledger with snapshot: %w", err)
	}

	metrics.LedgerKnownIDs.Set(float64(len(merged.KnownIDs)))
	metrics.LedgerSyncedUntil.Set(float64(merged.SyncedUntil) / 1000)
	logging.Debug().
		Int("known_ids", len(merged.KnownIDs)).
		Int("added", len(addedIDs)).
		Msg("Ledger saved with undo snapshot")
	return nil
}

// LoadSnapshot returns the pre-merge ledger and the ids added by the
// last merge. ErrNoSnapshot means no merge has happened since the last
// undo.
func (s *Store) LoadSnapshot(ctx context.Context) (*Ledger, []string, error) {
	var wire *ledgerWire
	var added []string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoSnapshot
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			wire = &ledgerWire{}
			return json.Unmarshal(val, wire)
		}); err != nil {
			return err
		}

		addedItem, err := txn.Get([]byte(snapshotAddedKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return addedItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &added)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return nil, nil, ErrNoSnapshot
		}
		return nil, nil, fmt.Errorf("load snapshot: %w", err)
	}
	return fromWire(wire), added, nil
}

// Restore replaces the current ledger with the given one and clears
// the snapshot, completing an undo.
func (s *Store) Restore(ctx context.Context, l *Ledger) error {
	data, err := json.Marshal(toWire(l))
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(currentKey), data); err != nil {
			return err
		}
		if err := deleteIgnoreMissing(txn, snapshotKey); err != nil {
			return err
		}
		return deleteIgnoreMissing(txn, snapshotAddedKey)
	})
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	metrics.LedgerKnownIDs.Set(float64(len(l.KnownIDs)))
	metrics.LedgerSyncedUntil.Set(float64(l.SyncedUntil) / 1000)
	return nil
}

// Reset wipes the ledger and snapshot. Pairs with the destructive
// delete-all operation on the record store.
func (s *Store) Reset(ctx context.Context) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{currentKey, snapshotKey, snapshotAddedKey} {
			if err := deleteIgnoreMissing(txn, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	metrics.LedgerKnownIDs.Set(0)
	metrics.LedgerSyncedUntil.Set(0)
	return nil
}

func deleteIgnoreMissing(txn *badger.Txn, key string) error {
	err := txn.Delete([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}
