package memory

import (
	"context"
	"reflect"
	"testing"
	"time"

	"udesign/pkg/design"
	"udesign/pkg/optics"
)

func testRecord(id, designType string, created time.Time) design.RunRecord {
	return design.RunRecord{
		ID:          id,
		Type:        designType,
		SpecVersion: "0.1.0",
		CreatedAt:   created,
		Inputs: map[string]optics.Quantity{
			"source.wavelength": optics.NewQuantity(0.488, optics.Micrometer),
		},
		Results: design.NewResultSet([]design.Result{{
			Name:     "fresnel_number",
			Title:    "Fresnel number",
			Equation: `\( F = \frac{p^2}{4 f \lambda} \)`,
			Value:    optics.Scalar(9.65),
		}}),
		Violations: []design.Violation{{Constraint: "crosstalk", Message: "spot exceeds pitch"}},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	archive := NewArchive()
	ctx := context.Background()
	want := testRecord("run-1", "dpm", time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC))
	if err := archive.SaveRun(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := archive.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected record to exist")
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
	if _, ok, err := archive.GetRun(ctx, "absent"); err != nil || ok {
		t.Fatalf("expected miss without error, got ok=%v err=%v", ok, err)
	}
}

func TestSaveRunRejectsBadIDs(t *testing.T) {
	archive := NewArchive()
	ctx := context.Background()
	if err := archive.SaveRun(ctx, design.RunRecord{}); err == nil {
		t.Fatal("expected error for empty id")
	}
	rec := testRecord("run-1", "dpm", time.Now().UTC())
	if err := archive.SaveRun(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := archive.SaveRun(ctx, rec); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestListRunsFiltersAndOrders(t *testing.T) {
	archive := NewArchive()
	ctx := context.Background()
	base := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	for _, rec := range []design.RunRecord{
		testRecord("run-1", "dpm", base),
		testRecord("run-2", "koehler", base.Add(time.Minute)),
		testRecord("run-3", "dpm", base.Add(2*time.Minute)),
	} {
		if err := archive.SaveRun(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", rec.ID, err)
		}
	}

	all, err := archive.ListRuns(ctx, design.RunFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(all); !reflect.DeepEqual(got, []string{"run-3", "run-2", "run-1"}) {
		t.Fatalf("expected newest first, got %v", got)
	}

	dpm, err := archive.ListRuns(ctx, design.RunFilter{Type: "dpm"})
	if err != nil {
		t.Fatalf("list dpm: %v", err)
	}
	if got := ids(dpm); !reflect.DeepEqual(got, []string{"run-3", "run-1"}) {
		t.Fatalf("expected dpm runs only, got %v", got)
	}

	limited, err := archive.ListRuns(ctx, design.RunFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if got := ids(limited); !reflect.DeepEqual(got, []string{"run-3", "run-2"}) {
		t.Fatalf("expected two newest runs, got %v", got)
	}
}

func TestListRunsBreaksTimestampTiesByID(t *testing.T) {
	archive := NewArchive()
	ctx := context.Background()
	created := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	if err := archive.SaveRun(ctx, testRecord("run-a", "dpm", created)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := archive.SaveRun(ctx, testRecord("run-b", "dpm", created)); err != nil {
		t.Fatalf("save: %v", err)
	}
	runs, err := archive.ListRuns(ctx, design.RunFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(runs); !reflect.DeepEqual(got, []string{"run-b", "run-a"}) {
		t.Fatalf("expected descending id on ties, got %v", got)
	}
}

func TestStoredRecordsAreIsolatedFromCallers(t *testing.T) {
	archive := NewArchive()
	ctx := context.Background()
	rec := testRecord("run-1", "dpm", time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC))
	if err := archive.SaveRun(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec.Inputs["source.wavelength"] = optics.Scalar(0)
	rec.Violations[0].Message = "mutated"

	got, _, err := archive.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Inputs["source.wavelength"].Magnitude != 0.488 {
		t.Fatalf("stored inputs mutated: %+v", got.Inputs)
	}
	if got.Violations[0].Message != "spot exceeds pitch" {
		t.Fatalf("stored violations mutated: %+v", got.Violations)
	}

	got.Inputs["extra"] = optics.Scalar(1)
	again, _, err := archive.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if _, leaked := again.Inputs["extra"]; leaked {
		t.Fatal("mutating a returned record leaked into the archive")
	}
}

func ids(records []design.RunRecord) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ID)
	}
	return out
}
