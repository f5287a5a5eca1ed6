package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-export/internal/sqlbuild"
)

func TestBuildDSN(t *testing.T) {
	t.Parallel()

	write := buildDSN("/tmp/test.sqlite", SQLiteWrite)
	assert.True(t, strings.HasPrefix(write, "/tmp/test.sqlite?"))
	assert.Contains(t, write, "_journal_mode=WAL")
	assert.Contains(t, write, "_busy_timeout=5000")
	assert.Contains(t, write, "_synchronous=NORMAL")
	assert.Contains(t, write, "_foreign_keys=on")
	assert.Contains(t, write, "_txlock=immediate")

	read := buildDSN("/tmp/test.sqlite", SQLiteRead)
	assert.Contains(t, read, "_journal_mode=WAL")
	assert.NotContains(t, read, "_txlock")
}

func TestBuildDSN_KeepsCallerParams(t *testing.T) {
	t.Parallel()

	dsn := buildDSN("file:shop.db?cache=shared&_busy_timeout=100", SQLiteRead)
	assert.True(t, strings.HasPrefix(dsn, "file:shop.db?"))
	assert.Contains(t, dsn, "cache=shared")
	assert.Contains(t, dsn, "_busy_timeout=100")
	assert.NotContains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_journal_mode=WAL")
}

func TestOpenSQLite(t *testing.T) {
	t.Parallel()

	_, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), "invalid", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")

	_, err = OpenSQLite("/nonexistent/dir/test.db", "write", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")

	path := filepath.Join(t.TempDir(), "test.db")
	w, err := OpenSQLite(path, "write", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	assert.Equal(t, 1, w.Stats().MaxOpenConnections)

	r, err := OpenSQLite(path, "read", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	assert.Equal(t, 4, r.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, r.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))
}

func TestUpStatements(t *testing.T) {
	t.Parallel()

	src := `-- +goose Up
-- +goose StatementBegin
CREATE TABLE a (
    id INTEGER
);
-- +goose StatementEnd

-- comment
CREATE INDEX i ON a (id);

-- +goose Down
DROP TABLE a;
`
	got := upStatements(src)
	require.Len(t, got, 2)
	assert.Equal(t, "CREATE TABLE a (\n    id INTEGER\n);", got[0])
	assert.Equal(t, "CREATE INDEX i ON a (id);", got[1])
}

func TestDemoProduct(t *testing.T) {
	t.Parallel()

	p := DemoProduct(42)
	assert.Equal(t, "Product 42", p.Name)
	assert.Equal(t, "SKU-00042", p.SKU)
	assert.InDelta(t, 42.99, p.Price, 0.0001)
	assert.Equal(t, int64(294), p.StockQuantity)
	assert.Equal(t, time.Date(2024, 1, 2, 17, 0, 0, 0, time.UTC), p.CreatedAt)

	assert.InDelta(t, 0.99, DemoProduct(100).Price, 0.0001)
}

func TestSeed_SQLite(t *testing.T) {
	t.Parallel()
	conn := OpenTestSQLite(t, 25)

	var count int
	require.NoError(t, conn.QueryRow("SELECT count(*) FROM products").Scan(&count))
	assert.Equal(t, 25, count)

	var name, sku string
	require.NoError(t, conn.QueryRow("SELECT name, sku FROM products WHERE id = 7").Scan(&name, &sku))
	assert.Equal(t, "Product 7", name)
	assert.Equal(t, "SKU-00007", sku)

	// Reseeding replaces the rows and is safe to repeat.
	n, err := Seed(context.Background(), conn, sqlbuild.SQLite, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, conn.QueryRow("SELECT count(*) FROM products").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestSeed_DuckDB(t *testing.T) {
	t.Parallel()

	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	conn.SetMaxOpenConns(1)

	ctx := context.Background()
	n, err := Seed(ctx, conn, sqlbuild.DuckDB, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	var total string
	require.NoError(t, conn.QueryRow("SELECT CAST(sum(price) AS VARCHAR) FROM products").Scan(&total))
	assert.Equal(t, "64.90", total)

	// Applying the schema twice is a no-op.
	require.NoError(t, EnsureSchema(ctx, conn, sqlbuild.DuckDB))
}

func TestSeed_Validation(t *testing.T) {
	t.Parallel()

	_, err := Seed(context.Background(), nil, sqlbuild.SQLite, -1)
	require.Error(t, err)

	conn := OpenTestSQLite(t, 0)
	require.Error(t, EnsureSchema(context.Background(), conn, sqlbuild.Dialect("oracle")))
}
