// Package source opens the relational data source exports read from and
// pages query results into bounded chunks.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"duck-export/internal/db"
	"duck-export/internal/sqlbuild"
)

// Config selects and tunes the data source connection.
type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	PingTimeout  time.Duration
}

// Open opens and pings the configured data source and reports its dialect.
// An empty DuckDB DSN opens an in-memory database.
func Open(ctx context.Context, cfg Config) (*sql.DB, sqlbuild.Dialect, error) {
	dialect, err := sqlbuild.DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	var conn *sql.DB
	switch dialect {
	case sqlbuild.SQLite:
		if cfg.DSN == "" {
			return nil, "", fmt.Errorf("sqlite3 source requires a database path")
		}
		// Exports only read; the hardened read pool is enough.
		conn, err = db.OpenSQLite(cfg.DSN, db.SQLiteRead, cfg.MaxOpenConns)
		if err != nil {
			return nil, "", err
		}
		return conn, dialect, nil
	case sqlbuild.Postgres:
		if cfg.DSN == "" {
			return nil, "", fmt.Errorf("pgx source requires a connection string")
		}
		conn, err = sql.Open("pgx", cfg.DSN)
	default:
		conn, err = sql.Open("duckdb", cfg.DSN)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	conn.SetConnMaxLifetime(time.Hour)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, "", fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return conn, dialect, nil
}
