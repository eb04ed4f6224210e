// Package postgres provides a run archive backed by a Postgres table of JSONB
// payloads, registered through the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sqldocs "udesign/docs/schema/sql"
	"udesign/pkg/design"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ design.RunArchive = (*Archive)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/udesign?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Archive persists run records to Postgres. Timestamps land in a BIGINT
// column as Unix nanoseconds so listings order without touching the payload.
type Archive struct {
	db *sql.DB
}

// NewArchive opens a Postgres-backed archive using the provided DSN (falls
// back to defaultDSN), pings the server, and ensures the runs table exists.
func NewArchive(dsn string) (*Archive, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureRunsTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

func ensureRunsTable(ctx context.Context, db *sql.DB) error {
	for _, stmt := range sqldocs.Statements(sqldocs.Postgres) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure runs table: %w", err)
		}
	}
	return nil
}

// SaveRun stores one run. Reusing an id fails on the primary key.
func (a *Archive) SaveRun(ctx context.Context, record design.RunRecord) error {
	if record.ID == "" {
		return fmt.Errorf("save run: empty id")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	if _, err := a.db.ExecContext(ctx,
		`INSERT INTO runs (id, design_type, created_at, record) VALUES ($1, $2, $3, $4)`,
		record.ID, record.Type, record.CreatedAt.UTC().UnixNano(), payload,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun fetches one run by id; the boolean reports presence.
func (a *Archive) GetRun(ctx context.Context, id string) (design.RunRecord, bool, error) {
	var payload []byte
	err := a.db.QueryRowContext(ctx, `SELECT record FROM runs WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return design.RunRecord{}, false, nil
	}
	if err != nil {
		return design.RunRecord{}, false, fmt.Errorf("select run: %w", err)
	}
	var record design.RunRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return design.RunRecord{}, false, fmt.Errorf("decode run: %w", err)
	}
	return record, true, nil
}

// ListRuns returns runs newest first, optionally narrowed by design type and
// capped at filter.Limit.
func (a *Archive) ListRuns(ctx context.Context, filter design.RunFilter) ([]design.RunRecord, error) {
	query := `SELECT record FROM runs`
	args := []any{}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(` WHERE design_type = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var records []design.RunRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var record design.RunRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return records, nil
}

// Close releases the underlying database handle.
func (a *Archive) Close() error { return a.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (a *Archive) DB() *sql.DB { return a.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
