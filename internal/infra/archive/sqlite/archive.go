// Package sqlite provides a run archive backed by an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqldocs "udesign/docs/schema/sql"
	"udesign/pkg/design"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ design.RunArchive = (*Archive)(nil)

// Archive persists run records to a single SQLite table as JSON blobs. The
// created_at column carries the timestamp as Unix nanoseconds so listings
// order correctly without parsing the payload.
type Archive struct {
	db   *sql.DB
	path string
}

// NewArchive opens the archive database at path, creating the file and any
// parent directories as needed. An empty path defaults to udesign.db in the
// working directory.
func NewArchive(path string) (*Archive, error) {
	if path == "" {
		path = "udesign.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := ensureRunsTable(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Archive{db: db, path: path}, nil
}

func ensureRunsTable(db *sql.DB) error {
	for _, stmt := range sqldocs.Statements(sqldocs.SQLite) {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply runs schema: %w", err)
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
		`INSERT INTO runs (id, design_type, created_at, record) VALUES (?, ?, ?, ?)`,
		record.ID, record.Type, record.CreatedAt.UTC().UnixNano(), payload,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun fetches one run by id; the boolean reports presence.
func (a *Archive) GetRun(ctx context.Context, id string) (design.RunRecord, bool, error) {
	var payload []byte
	err := a.db.QueryRowContext(ctx, `SELECT record FROM runs WHERE id = ?`, id).Scan(&payload)
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
		query += ` WHERE design_type = ?`
		args = append(args, filter.Type)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
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

// Path returns the database file location.
func (a *Archive) Path() string { return a.path }

// DB exposes the raw handle for maintenance tooling and tests.
func (a *Archive) DB() *sql.DB { return a.db }
