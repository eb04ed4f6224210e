package sqldocs

import (
	"strings"
	"testing"
)

func TestBundlesSplitIntoRunsStatements(t *testing.T) {
	for _, tc := range []struct {
		name   string
		bundle string
	}{
		{name: "sqlite", bundle: SQLite},
		{name: "postgres", bundle: Postgres},
	} {
		t.Run(tc.name, func(t *testing.T) {
			stmts := Statements(tc.bundle)
			if len(stmts) != 2 {
				t.Fatalf("statements = %d, want 2: %q", len(stmts), stmts)
			}
			if !strings.Contains(stmts[0], "CREATE TABLE IF NOT EXISTS runs") {
				t.Fatalf("first statement = %q", stmts[0])
			}
			if !strings.Contains(stmts[1], "CREATE INDEX IF NOT EXISTS runs_type_created") {
				t.Fatalf("second statement = %q", stmts[1])
			}
		})
	}
}

func TestStatementsSkipsCommentOnlyChunks(t *testing.T) {
	bundle := "-- header\nCREATE TABLE t (id TEXT);\n-- trailing note\n"
	stmts := Statements(bundle)
	if len(stmts) != 1 {
		t.Fatalf("statements = %d, want 1: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[0], "CREATE TABLE t") {
		t.Fatalf("statement = %q", stmts[0])
	}
}
