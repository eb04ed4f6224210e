package design

import (
	"context"
	"time"

	"udesign/pkg/optics"
)

// RunRecord is the archived outcome of one design run.
type RunRecord struct {
	ID          string                     `json:"id"`
	Type        string                     `json:"type"`
	SpecVersion string                     `json:"spec_version"`
	CreatedAt   time.Time                  `json:"created_at"`
	Inputs      map[string]optics.Quantity `json:"inputs"`
	Results     ResultSet                  `json:"results"`
	Violations  []Violation                `json:"violations"`
}

// Clone returns a deep copy of the record.
func (r RunRecord) Clone() RunRecord {
	cloned := r
	if r.Inputs != nil {
		cloned.Inputs = make(map[string]optics.Quantity, len(r.Inputs))
		for k, v := range r.Inputs {
			cloned.Inputs[k] = v
		}
	}
	cloned.Results = NewResultSet(r.Results.Ordered())
	cloned.Violations = append([]Violation(nil), r.Violations...)
	return cloned
}

// RunFilter narrows archive listings.
type RunFilter struct {
	Type  string
	Limit int
}

// RunArchive persists completed design runs. Implementations are selected by
// configuration; the engine works against this interface only.
type RunArchive interface {
	// SaveRun stores one completed run.
	SaveRun(ctx context.Context, record RunRecord) error
	// GetRun fetches a run by id; the boolean reports presence.
	GetRun(ctx context.Context, id string) (RunRecord, bool, error)
	// ListRuns returns runs matching the filter, newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)
	// Close releases underlying resources.
	Close() error
}
