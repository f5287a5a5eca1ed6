package sqlbuild

import (
	"fmt"
	"strconv"
)

// Dialect identifies the SQL flavour a statement is rendered for.
type Dialect string

// Supported dialects.
const (
	DuckDB   Dialect = "duckdb"
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch driver {
	case "duckdb":
		return DuckDB, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported driver %q: use duckdb, sqlite3 or pgx", driver)
	}
}

// Placeholder returns the bind marker for the n-th argument (1-based).
func (d Dialect) Placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}
