package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"duck-export/internal/sqlbuild"
)

// OpenTestSQLite opens a write pool on a fresh SQLite file in t.TempDir(),
// seeds it with rows demo products and registers cleanup.
func OpenTestSQLite(t *testing.T, rows int) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")
	conn, err := OpenSQLite(path, SQLiteWrite, 0)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if _, err := Seed(context.Background(), conn, sqlbuild.SQLite, rows); err != nil {
		t.Fatalf("seed test sqlite: %v", err)
	}
	return conn
}
