// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

// Package store persists lifelog records and the operation log in
// DuckDB. Structured content trees are stored as JSON alongside the
// scalar columns so range queries stay cheap while the full record
// survives round trips.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/jdbarnes/lifelogd/internal/config"
	"github.com/jdbarnes/lifelogd/internal/logging"
	"github.com/jdbarnes/lifelogd/internal/metrics"
	"github.com/jdbarnes/lifelogd/internal/models"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("store: record not found")

// Store wraps the DuckDB connection for lifelog records and the
// operation log. Safe for concurrent use; database/sql pools
// connections underneath.
type Store struct {
	conn *sql.DB
}

// New opens (or creates) the DuckDB database and runs schema setup.
// An empty path opens an in-memory database, used by tests.
func New(cfg *config.DatabaseConfig) (*Store, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	path := cfg.Path
	if path != "" {
		dbDir := filepath.Dir(path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	// Disable auto-install/auto-load to avoid hangs in restricted
	// network environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// DuckDB is embedded; a small pool is plenty and avoids write
	// contention on the single file.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}
	if err := s.initialize(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().Str("path", path).Int("threads", numThreads).Msg("Record store opened")
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Conn exposes the underlying pool for health checks.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS lifelogs (
			id VARCHAR PRIMARY KEY,
			title VARCHAR NOT NULL,
			markdown VARCHAR,
			start_time BIGINT NOT NULL,
			end_time BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			is_starred BOOLEAN NOT NULL DEFAULT FALSE,
			contents JSON,
			inserted_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lifelogs_start_time ON lifelogs(start_time)`,
		`CREATE TABLE IF NOT EXISTS operation_log (
			id VARCHAR PRIMARY KEY,
			ts BIGINT NOT NULL,
			operation VARCHAR NOT NULL,
			table_name VARCHAR NOT NULL,
			success BOOLEAN NOT NULL,
			message VARCHAR,
			error VARCHAR
		)`,
		`CREATE INDEX IF NOT EXISTS idx_oplog_ts ON operation_log(ts)`,
	}
	for _, stmt := range schema {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema setup: %w", err)
		}
	}
	return nil
}

// InsertLifelogs inserts the given records in one transaction. Records
// whose id already exists abort the whole batch; the engine's ledger
// re-filter guarantees the batch only holds new ids.
func (s *Store) InsertLifelogs(ctx context.Context, records []models.LifelogRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert", "lifelogs", time.Since(start), err) }()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO lifelogs
		(id, title, markdown, start_time, end_time, updated_at, is_starred, contents, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	insertedAt := time.Now().UnixMilli()
	for i := range records {
		rec := &records[i]
		contents, merr := marshalContents(rec.Contents)
		if merr != nil {
			err = fmt.Errorf("marshal contents for %s: %w", rec.ID, merr)
			return err
		}
		if _, err = stmt.ExecContext(ctx, rec.ID, rec.Title, rec.Markdown,
			rec.StartTime, rec.EndTime, rec.UpdatedAt, rec.IsStarred, contents, insertedAt); err != nil {
			err = fmt.Errorf("insert record %s: %w", rec.ID, err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit insert tx: %w", err)
	}
	return nil
}

// PatchLifelog replaces a record in place, keyed by id. Used by the
// reconciliation sweep when upstream edited a record after merge.
func (s *Store) PatchLifelog(ctx context.Context, rec *models.LifelogRecord) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("update", "lifelogs", time.Since(start), err) }()

	contents, err := marshalContents(rec.Contents)
	if err != nil {
		return fmt.Errorf("marshal contents for %s: %w", rec.ID, err)
	}

	res, err := s.conn.ExecContext(ctx, `UPDATE lifelogs
		SET title = ?, markdown = ?, start_time = ?, end_time = ?, updated_at = ?, is_starred = ?, contents = ?
		WHERE id = ?`,
		rec.Title, rec.Markdown, rec.StartTime, rec.EndTime, rec.UpdatedAt, rec.IsStarred, contents, rec.ID)
	if err != nil {
		return fmt.Errorf("update record %s: %w", rec.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		err = ErrNotFound
		return err
	}
	return nil
}

// GetByID fetches one record.
func (s *Store) GetByID(ctx context.Context, id string) (rec *models.LifelogRecord, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "lifelogs", time.Since(start), err) }()

	row := s.conn.QueryRowContext(ctx, `SELECT id, title, markdown, start_time, end_time, updated_at, is_starred, contents
		FROM lifelogs WHERE id = ?`, id)
	rec, err = scanLifelog(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, err
	}
	return rec, err
}

// ListRange returns records whose start time falls in [from, to),
// oldest first. Zero bounds are open.
func (s *Store) ListRange(ctx context.Context, from, to int64, limit int) (recs []models.LifelogRecord, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "lifelogs", time.Since(start), err) }()

	if to == 0 {
		to = int64(1) << 62
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT id, title, markdown, start_time, end_time, updated_at, is_starred, contents
		FROM lifelogs WHERE start_time >= ? AND start_time < ?
		ORDER BY start_time ASC, id ASC LIMIT ?`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list range: %w", err)
	}
	defer rows.Close()
	return scanLifelogs(rows)
}

// Latest returns the n newest records, newest first.
func (s *Store) Latest(ctx context.Context, n int) (recs []models.LifelogRecord, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "lifelogs", time.Since(start), err) }()

	if n <= 0 {
		n = 1
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT id, title, markdown, start_time, end_time, updated_at, is_starred, contents
		FROM lifelogs ORDER BY start_time DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	defer rows.Close()
	return scanLifelogs(rows)
}

// UpdatedSince returns records whose start time is at or after the
// given instant, for the reconciliation sweep.
func (s *Store) UpdatedSince(ctx context.Context, since int64) ([]models.LifelogRecord, error) {
	return s.ListRange(ctx, since, 0, 10000)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "lifelogs", time.Since(start), err) }()

	err = s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM lifelogs`).Scan(&n)
	return n, err
}

// DeleteLifelogs removes the given record ids in one transaction.
// Missing ids are not an error; undo must be idempotent.
func (s *Store) DeleteLifelogs(ctx context.Context, ids []string) (err error) {
	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete", "lifelogs", time.Since(start), err) }()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM lifelogs WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err = stmt.ExecContext(ctx, id); err != nil {
			err = fmt.Errorf("delete record %s: %w", id, err)
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

// DeleteAll wipes every lifelog record. The operation log survives;
// the wipe itself is recorded there.
func (s *Store) DeleteAll(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete", "lifelogs", time.Since(start), err) }()

	_, err = s.conn.ExecContext(ctx, `DELETE FROM lifelogs`)
	if err != nil {
		return fmt.Errorf("delete all: %w", err)
	}
	return nil
}

// AppendOperation writes one audit entry. Entries are never updated or
// deleted.
func (s *Store) AppendOperation(ctx context.Context, entry *models.OperationLogEntry) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert", "operation_log", time.Since(start), err) }()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err = s.conn.ExecContext(ctx, `INSERT INTO operation_log
		(id, ts, operation, table_name, success, message, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UnixMilli(), string(entry.Operation), entry.Table,
		entry.Success, entry.Message, entry.Error)
	if err != nil {
		return fmt.Errorf("append operation: %w", err)
	}
	return nil
}

// ListOperations returns the n most recent audit entries, newest first.
func (s *Store) ListOperations(ctx context.Context, n int) (entries []models.OperationLogEntry, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "operation_log", time.Since(start), err) }()

	if n <= 0 {
		n = 100
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT id, ts, operation, table_name, success, message, error
		FROM operation_log ORDER BY ts DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.OperationLogEntry
		var ts int64
		var op string
		var message, errMsg sql.NullString
		if err = rows.Scan(&e.ID, &ts, &op, &e.Table, &e.Success, &message, &errMsg); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		e.Operation = models.Operation(op)
		e.Message = message.String
		e.Error = errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLifelog(row rowScanner) (*models.LifelogRecord, error) {
	var rec models.LifelogRecord
	var markdown sql.NullString
	var contents sql.NullString
	if err := row.Scan(&rec.ID, &rec.Title, &markdown, &rec.StartTime, &rec.EndTime,
		&rec.UpdatedAt, &rec.IsStarred, &contents); err != nil {
		return nil, err
	}
	if markdown.Valid {
		rec.Markdown = &markdown.String
	}
	if contents.Valid && contents.String != "" {
		if err := json.Unmarshal([]byte(contents.String), &rec.Contents); err != nil {
			return nil, fmt.Errorf("unmarshal contents for %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func scanLifelogs(rows *sql.Rows) ([]models.LifelogRecord, error) {
	var recs []models.LifelogRecord
	for rows.Next() {
		rec, err := scanLifelog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func marshalContents(nodes []models.ContentNode) (any, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
