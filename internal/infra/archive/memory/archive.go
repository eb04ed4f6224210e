// Package memory provides a run archive held entirely in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"udesign/pkg/design"
)

var _ design.RunArchive = (*Archive)(nil)

// Archive stores run records in memory. It is safe for concurrent use and
// backs tests and one-shot CLI invocations that have nothing to persist.
type Archive struct {
	mu      sync.RWMutex
	records []design.RunRecord
	index   map[string]int
}

// NewArchive constructs an empty in-memory archive.
func NewArchive() *Archive {
	return &Archive{index: map[string]int{}}
}

// SaveRun stores a deep copy of record. The id must be non-empty and unused.
func (a *Archive) SaveRun(_ context.Context, record design.RunRecord) error {
	if record.ID == "" {
		return fmt.Errorf("save run: empty id")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.index[record.ID]; exists {
		return fmt.Errorf("save run: duplicate id %s", record.ID)
	}
	a.index[record.ID] = len(a.records)
	a.records = append(a.records, record.Clone())
	return nil
}

// GetRun returns the record with the given id; the boolean reports presence.
func (a *Archive) GetRun(_ context.Context, id string) (design.RunRecord, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	i, ok := a.index[id]
	if !ok {
		return design.RunRecord{}, false, nil
	}
	return a.records[i].Clone(), true, nil
}

// ListRuns returns stored runs newest first, ties broken by descending id so
// listings match the SQL-backed archives.
func (a *Archive) ListRuns(_ context.Context, filter design.RunFilter) ([]design.RunRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]design.RunRecord, 0, len(a.records))
	for _, rec := range a.records {
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory archive.
func (a *Archive) Close() error { return nil }
