package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"

	"duck-export/internal/sqlbuild"
)

const productsMigration = "migrations/00001_products.sql"

// EnsureSchema creates the demo products schema on the given source.
// SQLite and Postgres are migrated with goose; DuckDB, which goose has no
// dialect for, runs the Up section of the same migration directly.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect sqlbuild.Dialect) error {
	switch dialect {
	case sqlbuild.SQLite:
		return runMigrations(ctx, db, goose.DialectSQLite3)
	case sqlbuild.Postgres:
		return runMigrations(ctx, db, goose.DialectPostgres)
	case sqlbuild.DuckDB:
		return applyUp(ctx, db)
	default:
		return fmt.Errorf("ensure schema: unsupported dialect %q", dialect)
	}
}

func runMigrations(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	fsys, err := fs.Sub(EmbedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func applyUp(ctx context.Context, db *sql.DB) error {
	data, err := EmbedMigrations.ReadFile(productsMigration)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	for _, stmt := range upStatements(string(data)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// upStatements returns the statements of a goose file's Up section.
func upStatements(src string) []string {
	var (
		inUp  bool
		stmts []string
		cur   strings.Builder
	)
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-- +goose Up"):
			inUp = true
			continue
		case strings.HasPrefix(trimmed, "-- +goose Down"):
			inUp = false
			continue
		case strings.HasPrefix(trimmed, "-- +goose"), strings.HasPrefix(trimmed, "--"):
			continue
		}
		if !inUp || trimmed == "" {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
