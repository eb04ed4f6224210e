package reports

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"udesign/internal/engine"
	blobmem "udesign/internal/infra/blob/memory"
)

func newWorkerHarness(t *testing.T) (*engine.Service, *Worker, *blobmem.Store, *MemoryAuditLog) {
	t.Helper()
	svc := newEngine(t)
	store := blobmem.New()
	audit := &MemoryAuditLog{}
	worker := NewWorker(svc, store, audit)
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })
	return svc, worker, store, audit
}

func waitForExport(t *testing.T, worker *Worker, id string) ExportRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		current, ok := worker.GetExport(id)
		if !ok {
			t.Fatalf("export %s missing", id)
		}
		if current.Status == ExportStatusSucceeded || current.Status == ExportStatusFailed {
			return current
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for export %s (status %s)", id, current.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWorkerProcessesExport(t *testing.T) {
	svc, worker, store, audit := newWorkerHarness(t)
	run := runDesign(t, svc, "dpm")

	record, err := worker.EnqueueExport(context.Background(), ExportInput{
		RunID:       run.ID,
		Formats:     []Format{FormatJSON, FormatCSV},
		RequestedBy: "optics@udesign",
		Reason:      "bench review",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if record.Status != ExportStatusQueued || record.Type != "dpm" || record.RunID != run.ID {
		t.Fatalf("queued record = %+v", record)
	}

	final := waitForExport(t, worker, record.ID)
	if final.Status != ExportStatusSucceeded {
		t.Fatalf("export failed: %s", final.Error)
	}
	if final.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}
	if len(final.Artifacts) != 2 {
		t.Fatalf("artifacts = %+v", final.Artifacts)
	}
	wantKey := "exports/" + record.ID + "/report.json"
	if final.Artifacts[0].Key != wantKey || final.Artifacts[0].Format != FormatJSON {
		t.Fatalf("artifact = %+v", final.Artifacts[0])
	}
	if final.Artifacts[0].SizeBytes == 0 {
		t.Fatal("expected artifact size")
	}

	infos, err := store.List(context.Background(), "exports/"+record.ID+"/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("stored artifacts = %d", len(infos))
	}

	entries := audit.Entries()
	if len(entries) < 3 {
		t.Fatalf("audit entries = %d", len(entries))
	}
	last := entries[len(entries)-1]
	if last.Action != "design_export" || last.Status != ExportStatusSucceeded || last.Design != "dpm" {
		t.Fatalf("last audit entry = %+v", last)
	}
}

func TestWorkerEnqueueRejectsBadInput(t *testing.T) {
	svc, worker, _, _ := newWorkerHarness(t)
	ctx := context.Background()

	if _, err := worker.EnqueueExport(ctx, ExportInput{}); err == nil || !strings.Contains(err.Error(), "run id required") {
		t.Fatalf("empty run id error = %v", err)
	}
	if _, err := worker.EnqueueExport(ctx, ExportInput{RunID: "ghost"}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("unknown run error = %v", err)
	}
	run := runDesign(t, svc, "dpm")
	if _, err := worker.EnqueueExport(ctx, ExportInput{RunID: run.ID, Formats: []Format{"xml"}}); err == nil ||
		!strings.Contains(err.Error(), "unsupported export format") {
		t.Fatalf("bad format error = %v", err)
	}
}

func TestWorkerDefaultsAndDedupesFormats(t *testing.T) {
	svc, worker, _, _ := newWorkerHarness(t)
	run := runDesign(t, svc, "dpm")
	ctx := context.Background()

	record, err := worker.EnqueueExport(ctx, ExportInput{RunID: run.ID})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	want := []Format{FormatJSON, FormatCSV}
	if !reflect.DeepEqual(record.Formats, want) {
		t.Fatalf("formats = %v", record.Formats)
	}

	dup, err := worker.EnqueueExport(ctx, ExportInput{RunID: run.ID, Formats: []Format{FormatJSON, FormatJSON, FormatCSV}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !reflect.DeepEqual(dup.Formats, want) {
		t.Fatalf("deduped formats = %v", dup.Formats)
	}
}

func TestWorkerFailsWhenPlotImpossible(t *testing.T) {
	svc, worker, _, audit := newWorkerHarness(t)
	run := runDesign(t, svc, "koehler")

	record, err := worker.EnqueueExport(context.Background(), ExportInput{RunID: run.ID, Formats: []Format{FormatPNG}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	final := waitForExport(t, worker, record.ID)
	if final.Status != ExportStatusFailed {
		t.Fatalf("status = %s", final.Status)
	}
	if !strings.Contains(final.Error, "no fourier-plane results") {
		t.Fatalf("error = %s", final.Error)
	}

	entries := audit.Entries()
	last := entries[len(entries)-1]
	if last.Status != ExportStatusFailed {
		t.Fatalf("last audit entry = %+v", last)
	}
}

func TestGetExportMissing(t *testing.T) {
	_, worker, _, _ := newWorkerHarness(t)
	if _, ok := worker.GetExport("ghost"); ok {
		t.Fatal("expected miss for unknown export")
	}
}
