// Package sqldocs exposes the runs archive DDL directly from the docs tree,
// so the documented schema and the schema the archives apply cannot drift.
package sqldocs

import (
	_ "embed"
	"strings"
)

// SQLite contains the runs archive SQLite DDL bundle.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the runs archive Postgres DDL bundle.
//
//go:embed postgres.sql
var Postgres string

// Statements splits a DDL bundle into executable statements. Drivers under
// database/sql do not reliably accept multi-statement strings.
func Statements(bundle string) []string {
	parts := strings.Split(bundle, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(stripLineComments(part)) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(part))
	}
	return out
}

func stripLineComments(stmt string) string {
	var b strings.Builder
	for _, line := range strings.Split(stmt, "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
