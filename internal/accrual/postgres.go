package accrual

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL accrual store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL accrual store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Append persists one new accrual record. Plain INSERT, no ON CONFLICT:
// re-submitting a cohort is an error, not an upsert.
func (s *PostgresStore) Append(ctx context.Context, record *Record) error {
	now := time.Now()

	query := `
		INSERT INTO accrual_records (
			condition_id, cohort_id, source, events, n,
			alpha, beta, mean, ci_low, ci_high,
			provenance, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
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
	).Scan(&record.ID, &record.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

// History returns all records for a condition in accrual order.
func (s *PostgresStore) History(ctx context.Context, conditionID string) ([]*Record, error) {
	query := `
		SELECT id, condition_id, cohort_id, source, events, n,
			alpha, beta, mean, ci_low, ci_high,
			provenance, created_at
		FROM accrual_records
		WHERE condition_id = $1
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conditionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		r := &Record{}
		err := rows.Scan(
			&r.ID, &r.ConditionID, &r.CohortID, &r.Source,
			&r.Events, &r.N,
			&r.Alpha, &r.Beta, &r.Mean, &r.CILow, &r.CIHigh,
			&r.Provenance, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, r)
	}

	return result, rows.Err()
}

// Latest returns the most recent record for a condition.
func (s *PostgresStore) Latest(ctx context.Context, conditionID string) (*Record, error) {
	query := `
		SELECT id, condition_id, cohort_id, source, events, n,
			alpha, beta, mean, ci_low, ci_high,
			provenance, created_at
		FROM accrual_records
		WHERE condition_id = $1
		ORDER BY id DESC
		LIMIT 1
	`

	r := &Record{}
	err := s.db.QueryRowContext(ctx, query, conditionID).Scan(
		&r.ID, &r.ConditionID, &r.CohortID, &r.Source,
		&r.Events, &r.N,
		&r.Alpha, &r.Beta, &r.Mean, &r.CILow, &r.CIHigh,
		&r.Provenance, &r.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest record: %w", err)
	}
	return r, nil
}

// Conditions lists condition IDs with accrued evidence.
func (s *PostgresStore) Conditions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT condition_id FROM accrual_records ORDER BY condition_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accrual_records").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// ExportJSON exports the full history to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	query := `
		SELECT id, condition_id, cohort_id, source, events, n,
			alpha, beta, mean, ci_low, ci_high,
			provenance, created_at
		FROM accrual_records
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var all []*Record
	for rows.Next() {
		r := &Record{}
		err := rows.Scan(
			&r.ID, &r.ConditionID, &r.CohortID, &r.Source,
			&r.Events, &r.N,
			&r.Alpha, &r.Beta, &r.Mean, &r.CILow, &r.CIHigh,
			&r.Provenance, &r.CreatedAt,
		)
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

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
