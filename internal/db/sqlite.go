// Package db opens SQLite sources and manages the demo products schema
// used for seeding and tests.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

// SQLiteMode selects how a SQLite pool is tuned.
type SQLiteMode string

const (
	// SQLiteWrite is a single connection with immediate transactions, for seeding.
	SQLiteWrite SQLiteMode = "write"
	// SQLiteRead is a small pool of connections, for exports.
	SQLiteRead SQLiteMode = "read"
)

const defaultReadConns = 4

// Connection defaults. A DSN that sets one of these keys itself keeps its value.
var sqliteDefaults = [][2]string{
	{"_journal_mode", "WAL"},
	{"_busy_timeout", "5000"},
	{"_synchronous", "NORMAL"},
	{"_foreign_keys", "on"},
}

// OpenSQLite opens a pool on dsn, which is a file path or a "file:" URI,
// optionally with its own query parameters. maxOpen bounds a read pool
// (0 means 4); write pools always hold one connection.
func OpenSQLite(dsn string, mode SQLiteMode, maxOpen int) (*sql.DB, error) {
	if mode != SQLiteRead && mode != SQLiteWrite {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be \"read\" or \"write\"", mode)
	}

	db, err := sql.Open("sqlite3", buildDSN(dsn, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	if mode == SQLiteWrite {
		maxOpen = 1
	} else if maxOpen <= 0 {
		maxOpen = defaultReadConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}

	return db, nil
}

// buildDSN merges the connection defaults into dsn's query string.
func buildDSN(dsn string, mode SQLiteMode) string {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		params = url.Values{}
	}
	for _, kv := range sqliteDefaults {
		if !params.Has(kv[0]) {
			params.Set(kv[0], kv[1])
		}
	}
	if mode == SQLiteWrite && !params.Has("_txlock") {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}
