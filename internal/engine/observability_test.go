package engine

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"
)

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "run", true, 20*time.Millisecond)
	rec.Observe(ctx, "run", true, 30*time.Millisecond)
	rec.Observe(ctx, "run", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	snap := rec.Snapshot()
	if got := snap.DurationsMS["run"]; got != 55 {
		t.Fatalf("durations = %v", got)
	}
	if got := snap.Results["run"]["success"]; got != 2 {
		t.Fatalf("success count = %d", got)
	}
	if got := snap.Results["run"]["error"]; got != 1 {
		t.Fatalf("error count = %d", got)
	}
	if len(snap.Results) != 1 {
		t.Fatalf("empty operation recorded: %v", snap.Results)
	}

	if v := expvar.Get(rec.Name()); v == nil {
		t.Fatalf("expvar %s not published", rec.Name())
	} else if !strings.Contains(v.String(), "durations_ms_total") {
		t.Fatalf("unexpected expvar payload: %s", v.String())
	}
}

func TestExpvarMetricsRecorderSnapshotIsolated(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "run", true, time.Millisecond)

	snap := rec.Snapshot()
	snap.DurationsMS["run"] = 999
	snap.Results["run"]["success"] = 999

	again := rec.Snapshot()
	if again.DurationsMS["run"] == 999 || again.Results["run"]["success"] == 999 {
		t.Fatal("snapshot aliases recorder state")
	}
}

func TestJSONTracerRecordsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	_, span := tracer.Start(context.Background(), "run")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "run")
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Status != "success" || entries[0].Operation != "run" {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Fatalf("second entry = %+v", entries[1])
	}
	if entries[1].EndedAt.Before(entries[1].StartedAt) {
		t.Fatalf("span ended before it started: %+v", entries[1])
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("encoded lines = %d", len(lines))
	}
	if !strings.Contains(lines[1], `"status":"error"`) {
		t.Fatalf("unexpected line: %s", lines[1])
	}
}

func TestJSONTracerNilWriter(t *testing.T) {
	tracer := NewJSONTracer(nil)
	_, span := tracer.Start(context.Background(), "run")
	span.End(nil)
	if len(tracer.Entries()) != 1 {
		t.Fatal("entry not retained without writer")
	}
}
