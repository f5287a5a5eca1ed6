//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"duck-export/internal/app"
	"duck-export/internal/config"
	"duck-export/internal/db"
	"duck-export/internal/source"
	"duck-export/internal/sqlbuild"
)

// testEnv is a running exporter backed by a seeded data source.
type testEnv struct {
	Server *httptest.Server
	App    *app.App
	Dir    string
}

type envOpts struct {
	Driver  string // duckdb when empty
	DSN     string // a fresh file under t.TempDir() when empty
	Paging  string
	Rows    int
	RPS     float64
	Burst   int
	MaxJobs int
	Catalog string // YAML written to a temp file when set
}

// setupServer seeds a data source, wires the app on it and serves the router.
func setupServer(t *testing.T, opts envOpts) *testEnv {
	t.Helper()

	tmp := t.TempDir()
	vars := map[string]string{
		"SOURCE_DRIVER":          opts.Driver,
		"SOURCE_DSN":             opts.DSN,
		"EXPORT_DIR":             filepath.Join(tmp, "exports"),
		"EXPORT_PAGING":          opts.Paging,
		"EXPORT_PAGE_SIZE":       "100",
		"RATE_LIMIT_RPS":         "1000",
		"RATE_LIMIT_BURST":       "1000",
		"MAX_CONCURRENT_EXPORTS": "8",
	}
	if opts.Driver == "" {
		vars["SOURCE_DRIVER"] = "duckdb"
	}
	if opts.DSN == "" {
		name := "shop.duckdb"
		if opts.Driver == "sqlite3" {
			name = "shop.db"
		}
		vars["SOURCE_DSN"] = filepath.Join(tmp, name)
	}
	if opts.RPS > 0 {
		vars["RATE_LIMIT_RPS"] = strconv.FormatFloat(opts.RPS, 'f', -1, 64)
		vars["RATE_LIMIT_BURST"] = strconv.Itoa(opts.Burst)
	}
	if opts.MaxJobs > 0 {
		vars["MAX_CONCURRENT_EXPORTS"] = strconv.Itoa(opts.MaxJobs)
	}
	if opts.Catalog != "" {
		path := filepath.Join(tmp, "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte(opts.Catalog), 0o600))
		vars["ENTITY_CATALOG"] = path
	}
	require.NoError(t, os.MkdirAll(vars["EXPORT_DIR"], 0o755))

	cfg, err := config.Load(func(key string) string { return vars[key] })
	require.NoError(t, err)

	ctx := context.Background()
	rows := opts.Rows
	if rows == 0 {
		rows = 250
	}
	seedSource(t, cfg, rows)

	a, err := app.Open(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srvCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	srv := httptest.NewServer(a.Router(srvCtx))
	t.Cleanup(srv.Close)

	return &testEnv{Server: srv, App: a, Dir: vars["EXPORT_DIR"]}
}

// seedSource fills the products table through a write connection that is
// closed before the app opens its own.
func seedSource(t *testing.T, cfg *config.Config, rows int) {
	t.Helper()
	ctx := context.Background()

	if cfg.Source.Driver == "sqlite3" {
		conn, err := db.OpenSQLite(cfg.Source.DSN, db.SQLiteWrite, 0)
		require.NoError(t, err)
		defer conn.Close() //nolint:errcheck
		_, err = db.Seed(ctx, conn, sqlbuild.SQLite, rows)
		require.NoError(t, err)
		return
	}

	conn, dialect, err := source.Open(ctx, app.SourceConfig(cfg))
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck
	_, err = db.Seed(ctx, conn, dialect, rows)
	require.NoError(t, err)
}

func doRequest(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
