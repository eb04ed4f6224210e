// Package archive selects and opens run archive backends.
package archive

import (
	"fmt"

	"udesign/internal/infra/archive/memory"
	"udesign/internal/infra/archive/postgres"
	"udesign/internal/infra/archive/sqlite"
	"udesign/pkg/design"
)

// Driver identifies a concrete run archive implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Open constructs the backend named by driver. An empty driver selects
// sqlite. The path and DSN arguments apply to the sqlite and postgres
// backends respectively; each falls back to its own default when empty.
func Open(driver Driver, sqlitePath, postgresDSN string) (design.RunArchive, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return memory.NewArchive(), nil
	case DriverSQLite:
		return sqlite.NewArchive(sqlitePath)
	case DriverPostgres:
		return postgres.NewArchive(postgresDSN)
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}
