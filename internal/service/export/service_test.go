package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-export/internal/domain"
	"duck-export/internal/metrics"
	"duck-export/internal/queryspec"
	"duck-export/internal/source"
	"duck-export/internal/sqlbuild"
)

var (
	productKeys   = []string{"name", "price", "stock_quantity"}
	productLabels = []string{"Name", "Price", "Stock Quantity"}
)

type fakePublisher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, localPath, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.calls = append(p.calls, localPath)
	return "https://downloads.example.com/" + name, nil
}

func setupDuckDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		price DECIMAL(10,2),
		stock_quantity INTEGER DEFAULT 0
	)`)
	require.NoError(t, err)
	return db
}

func insertProducts(t *testing.T, db *sql.DB, n int) {
	t.Helper()
	_, err := db.Exec(fmt.Sprintf(`INSERT INTO products
		SELECT i + 1, concat('Product ', i + 1), ((i %% 100) + 0.99)::DECIMAL(10,2), i * 10
		FROM range(%d) t(i)`, n))
	require.NoError(t, err)
}

func newTestService(t *testing.T, db *sql.DB, mode source.Mode) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc := NewService(
		queryspec.NewResolver(sqlbuild.DuckDB, nil),
		source.NewReader(db, mode),
		Config{Dir: dir},
		nil,
	)
	return svc, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestGenerateCSV_ProductScenario(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	_, err := db.Exec(`INSERT INTO products VALUES
		(1, 'Test Product 1', 19.99, 100),
		(2, 'Test Product 2', 29.99, 200)`)
	require.NoError(t, err)

	for _, spec := range []string{
		`products.objects.order_by("id").values("name", "price", "stock_quantity")`,
		`products.objects.order_by("id").values("stock_quantity", "price", "name")`,
		`products.objects.all().order_by("id")`,
		`{"entity": "products", "fields": ["price", "name", "stock_quantity"], "order_by": ["id"]}`,
	} {
		t.Run(spec, func(t *testing.T) {
			svc, _ := newTestService(t, db, source.ModeCursor)
			art, err := svc.GenerateCSV(context.Background(), spec, productKeys, productLabels, Options{})
			require.NoError(t, err)

			want := "Name,Price,Stock Quantity\r\nTest Product 1,19.99,100\r\nTest Product 2,29.99,200\r\n"
			assert.Equal(t, want, readFile(t, art.Path))
			assert.Equal(t, int64(2), art.Rows)
			assert.Equal(t, 1, art.Chunks)
			assert.Equal(t, int64(len(want)), art.Bytes)
			assert.NotEmpty(t, art.ID)
			assert.True(t, strings.HasPrefix(filepath.Base(art.Path), "export-"))
		})
	}
}

func TestGenerateCSV_ChunkBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rows int
		want []int
	}{
		{rows: 2500, want: []int{1000, 1000, 500}},
		{rows: 2000, want: []int{1000, 1000}},
		{rows: 0, want: nil},
	}

	for _, mode := range []source.Mode{source.ModeCursor, source.ModeOffset} {
		for _, tt := range tests {
			t.Run(fmt.Sprintf("%s/%d", mode, tt.rows), func(t *testing.T) {
				t.Parallel()
				db := setupDuckDB(t)
				insertProducts(t, db, tt.rows)
				svc, _ := newTestService(t, db, mode)

				var sizes []int
				art, err := svc.GenerateCSV(context.Background(),
					`products.objects.order_by("id").values("name", "price", "stock_quantity")`,
					productKeys, productLabels,
					Options{OnChunk: func(info domain.ChunkInfo) { sizes = append(sizes, info.Size) }},
				)
				require.NoError(t, err)
				assert.Equal(t, tt.want, sizes)
				assert.Equal(t, len(tt.want), art.Chunks)
				assert.Equal(t, int64(tt.rows), art.Rows)

				content := readFile(t, art.Path)
				assert.Equal(t, tt.rows+1, strings.Count(content, "\r\n"))
				assert.True(t, strings.HasPrefix(content, "Name,Price,Stock Quantity\r\n"))
			})
		}
	}
}

func TestGenerateCSV_PageSizeOption(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	insertProducts(t, db, 25)
	svc, _ := newTestService(t, db, source.ModeCursor)

	art, err := svc.GenerateCSV(context.Background(), `products.order_by("id")`, productKeys, productLabels, Options{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, art.Chunks)

	_, err = svc.GenerateCSV(context.Background(), `products.order_by("id")`, productKeys, productLabels, Options{PageSize: -1})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestInvalidQuery_CreatesNoFile(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	svc, dir := newTestService(t, db, source.ModeCursor)

	for _, spec := range []string{"DROP TABLE products", "not a query at all", `{"entity": 1}`} {
		_, err := svc.GetQuery(spec)
		var invalid *domain.InvalidQueryError
		require.ErrorAs(t, err, &invalid, spec)
		assert.Contains(t, err.Error(), "not a recognized query representation")

		_, err = svc.GenerateCSV(context.Background(), spec, productKeys, productLabels, Options{})
		require.ErrorAs(t, err, &invalid, spec)
	}
	assert.Empty(t, dirEntries(t, dir))
}

func TestGenerateCSV_HeaderValidation(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	svc, dir := newTestService(t, db, source.ModeCursor)

	_, err := svc.GenerateCSV(context.Background(), "products.all()", []string{"name", "price"}, []string{"Name"}, Options{})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "2 keys but 1 labels")
	assert.Empty(t, dirEntries(t, dir))
}

func TestGenerateCSV_MissingFieldKnownProjection(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	insertProducts(t, db, 3)
	svc, dir := newTestService(t, db, source.ModeCursor)

	_, err := svc.GenerateCSV(context.Background(), `products.values("name", "price")`, productKeys, productLabels, Options{})
	var missing *domain.MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "stock_quantity", missing.Key)
	assert.Equal(t, int64(-1), missing.Offset)
	assert.Empty(t, dirEntries(t, dir))
}

func TestGenerateCSV_MissingFieldAtRuntimeLeavesPartialFile(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	insertProducts(t, db, 3)
	svc, dir := newTestService(t, db, source.ModeCursor)

	_, err := svc.GenerateCSV(context.Background(), `products.all()`, []string{"name", "sku"}, []string{"Name", "SKU"}, Options{})
	var missing *domain.MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "sku", missing.Key)
	assert.Equal(t, int64(0), missing.Offset)

	files := dirEntries(t, dir)
	require.Len(t, files, 1)
	assert.Equal(t, "Name,SKU\r\n", readFile(t, filepath.Join(dir, files[0])))
}

func TestGenerateCSV_MissingFieldOnEmptyResult(t *testing.T) {
	t.Parallel()

	for _, mode := range []source.Mode{source.ModeCursor, source.ModeOffset} {
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()
			db := setupDuckDB(t)
			svc, dir := newTestService(t, db, mode)

			_, err := svc.GenerateCSV(context.Background(), `products.objects.order_by("id")`, []string{"sku"}, []string{"SKU"}, Options{})
			var missing *domain.MissingFieldError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, "sku", missing.Key)
			assert.Equal(t, int64(0), missing.Offset)

			files := dirEntries(t, dir)
			require.Len(t, files, 1)
			assert.Equal(t, "SKU\r\n", readFile(t, filepath.Join(dir, files[0])))
		})
	}
}

func TestGenerateCSV_EmptyResultKnownColumns(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	svc, _ := newTestService(t, db, source.ModeCursor)

	art, err := svc.GenerateCSV(context.Background(), `products.all()`, []string{"NAME"}, []string{"Name"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), art.Rows)
	assert.Equal(t, 0, art.Chunks)
	assert.Equal(t, "Name\r\n", readFile(t, art.Path))
}

func TestGenerateCSV_SingleColumnNull(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	_, err := db.Exec(`INSERT INTO products VALUES (1, 'a', NULL, 0), (2, 'b', 2.50, 0)`)
	require.NoError(t, err)
	svc, _ := newTestService(t, db, source.ModeCursor)

	art, err := svc.GenerateCSV(context.Background(), `products.objects.order_by("id").values("price")`, []string{"price"}, []string{"Price"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), art.Rows)
	assert.Equal(t, "Price\r\n\"\"\r\n2.50\r\n", readFile(t, art.Path))
}

func TestGenerateCSV_DataSourceError(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	svc, dir := newTestService(t, db, source.ModeCursor)
	m := metrics.NewCollector()
	svc.SetMetrics(m)

	_, err := svc.GenerateCSV(context.Background(), `missing_table.all()`, productKeys, productLabels, Options{})
	var dsErr *domain.DataSourceError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, int64(0), dsErr.Offset)

	files := dirEntries(t, dir)
	require.Len(t, files, 1)
	assert.Equal(t, "Name,Price,Stock Quantity\r\n", readFile(t, filepath.Join(dir, files[0])))
	n, err := testutil.GatherAndCount(m.Registry(), "csvexport_exports_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExport_Metrics(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	insertProducts(t, db, 2500)
	svc, _ := newTestService(t, db, source.ModeCursor)
	m := metrics.NewCollector()
	svc.SetMetrics(m)

	_, err := svc.GenerateCSV(context.Background(), `products.order_by("id")`, productKeys, productLabels, Options{})
	require.NoError(t, err)
	_, err = svc.GenerateCSV(context.Background(), `DROP TABLE products`, productKeys, productLabels, Options{})
	require.Error(t, err)

	out, err := testutil.GatherAndCount(m.Registry(), "csvexport_exports_total", "csvexport_export_chunks_total")
	require.NoError(t, err)
	assert.Equal(t, 3, out)
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP csvexport_export_rows_total Data rows written to export files.
# TYPE csvexport_export_rows_total counter
csvexport_export_rows_total 2500
# HELP csvexport_exports_in_flight Exports currently streaming.
# TYPE csvexport_exports_in_flight gauge
csvexport_exports_in_flight 0
`), "csvexport_export_rows_total", "csvexport_exports_in_flight"))
}

func TestExport_Publish(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	insertProducts(t, db, 5)
	svc, _ := newTestService(t, db, source.ModeCursor)
	h, err := domain.NewHeader(productKeys, productLabels)
	require.NoError(t, err)

	_, err = svc.Export(context.Background(), "products.all()", h, Options{Publish: true})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "publishing is not configured")

	pub := &fakePublisher{}
	svc.SetPublisher(pub)
	art, err := svc.Export(context.Background(), "products.all()", h, Options{Publish: true})
	require.NoError(t, err)
	assert.Equal(t, "https://downloads.example.com/"+filepath.Base(art.Path), art.URL)
	assert.Equal(t, []string{art.Path}, pub.calls)

	pub.err = errors.New("bucket not found")
	_, err = svc.Export(context.Background(), "products.all()", h, Options{Publish: true})
	require.ErrorContains(t, err, "bucket not found")
}

func TestExportQuery_Structured(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	insertProducts(t, db, 30)
	svc, _ := newTestService(t, db, source.ModeOffset)

	rq, err := svc.ResolveQuery(domain.Query{
		Entity:  "products",
		Fields:  []string{"id", "name"},
		Filters: []domain.Filter{{Conditions: []domain.Condition{{Field: "id", Lookup: domain.LookupLTE, Value: int64(3)}}}},
		OrderBy: []string{"-id"},
	})
	require.NoError(t, err)

	art, err := svc.ExportQuery(context.Background(), rq, domain.Header{{Key: "name", Label: "Product"}, {Key: "id", Label: "ID"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Product,ID\r\nProduct 3,3\r\nProduct 2,2\r\nProduct 1,1\r\n", readFile(t, art.Path))
}

func TestExport_Cancelled(t *testing.T) {
	t.Parallel()
	db := setupDuckDB(t)
	insertProducts(t, db, 2500)
	svc, _ := newTestService(t, db, source.ModeCursor)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.GenerateCSV(ctx, `products.order_by("id")`, productKeys, productLabels,
		Options{OnChunk: func(domain.ChunkInfo) { cancel() }})
	require.ErrorIs(t, err, context.Canceled)
}
