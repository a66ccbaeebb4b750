package accrual

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite accrual store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row into a Record struct.
func scanRecord(s scanner) (*Record, error) {
	r := &Record{}
	err := s.Scan(
		&r.ID, &r.ConditionID, &r.CohortID, &r.Source,
		&r.Events, &r.N,
		&r.Alpha, &r.Beta, &r.Mean, &r.CILow, &r.CIHigh,
		&r.Provenance, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// createSchema creates the database tables and indexes. The table has no
// updated_at column: rows are never updated.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accrual_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		condition_id TEXT NOT NULL,
		cohort_id TEXT NOT NULL,
		source TEXT DEFAULT '',
		events INTEGER NOT NULL,
		n INTEGER NOT NULL,
		alpha REAL NOT NULL,
		beta REAL NOT NULL,
		mean REAL NOT NULL,
		ci_low REAL NOT NULL,
		ci_high REAL NOT NULL,
		provenance TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(condition_id, cohort_id)
	);

	CREATE INDEX IF NOT EXISTS idx_condition_id ON accrual_records(condition_id);
	CREATE INDEX IF NOT EXISTS idx_created_at ON accrual_records(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Append persists one new accrual record. The unique constraint on
// (condition_id, cohort_id) rejects accidental re-submission of a cohort.
func (s *SQLiteStore) Append(ctx context.Context, record *Record) error {
	now := time.Now()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO accrual_records (
			condition_id, cohort_id, source, events, n,
			alpha, beta, mean, ci_low, ci_high,
			provenance, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ConditionID,
		record.CohortID,
		record.Source,
		record.Events,
		record.N,
		record.Alpha,
		record.Beta,
		record.Mean,
		record.CILow,
		record.CIHigh,
		record.Provenance,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	record.ID = id
	record.CreatedAt = now

	return nil
}

// History returns all records for a condition in accrual order.
func (s *SQLiteStore) History(ctx context.Context, conditionID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, condition_id, cohort_id, source, events, n,
			alpha, beta, mean, ci_low, ci_high,
			provenance, created_at
		FROM accrual_records
		WHERE condition_id = ?
		ORDER BY id ASC
	`, conditionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Latest returns the most recent record for a condition.
func (s *SQLiteStore) Latest(ctx context.Context, conditionID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, condition_id, cohort_id, source, events, n,
			alpha, beta, mean, ci_low, ci_high,
			provenance, created_at
		FROM accrual_records
		WHERE condition_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, conditionID)

	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return r, nil
}

// Conditions lists condition IDs with accrued evidence.
func (s *SQLiteStore) Conditions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT condition_id FROM accrual_records ORDER BY condition_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the total number of accrual records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accrual_records").Scan(&count)
	return count, err
}

// ExportJSON exports the full history to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, condition_id, cohort_id, source, events, n,
			alpha, beta, mean, ci_low, ci_high,
			provenance, created_at
		FROM accrual_records
		ORDER BY id ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var all []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Records:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// Ping verifies the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
