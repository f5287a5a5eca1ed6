package publish

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    Target
		wantErr string
	}{
		{raw: "s3://exports", want: Target{Scheme: "s3", Bucket: "exports"}},
		{raw: "s3://exports/daily/", want: Target{Scheme: "s3", Bucket: "exports", Prefix: "daily"}},
		{raw: "gs://lake/csv/products", want: Target{Scheme: "gs", Bucket: "lake", Prefix: "csv/products"}},
		{raw: "az://container/out", want: Target{Scheme: "az", Bucket: "container", Prefix: "out"}},
		{raw: "ftp://host/x", wantErr: "unsupported publish scheme"},
		{raw: "s3:///prefix", wantErr: "empty bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTarget(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTargetKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "export-1.csv", Target{}.Key("export-1.csv"))
	assert.Equal(t, "daily/export-1.csv", Target{Prefix: "daily"}.Key("export-1.csv"))
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := New(ctx, Config{})
	require.Error(t, err)

	_, err = New(ctx, Config{URL: "s3://bucket"})
	require.ErrorContains(t, err, "S3_KEY_ID")

	_, err = New(ctx, Config{URL: "gs://bucket"})
	require.ErrorContains(t, err, "GCS_KEY_FILE")

	_, err = New(ctx, Config{URL: "az://container"})
	require.ErrorContains(t, err, "AZURE_ACCOUNT_NAME")

	p, err := New(ctx, Config{URL: "az://container", AzureAccountName: "acct", AzureAccountKey: "c2VjcmV0LWtleQ=="})
	require.NoError(t, err)
	assert.IsType(t, &Azure{}, p)
}

func TestS3_PublishUploadsAndPresigns(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(data)
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	local := filepath.Join(t.TempDir(), "export-1.csv")
	require.NoError(t, os.WriteFile(local, []byte("Name\r\nWidget\r\n"), 0o600))

	p, err := New(context.Background(), Config{
		URL:        "s3://exports/daily",
		S3KeyID:    "key",
		S3Secret:   "secret",
		S3Endpoint: srv.URL,
		Expiry:     15 * time.Minute,
	})
	require.NoError(t, err)

	url, err := p.Publish(context.Background(), local, "export-1.csv")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/exports/daily/export-1.csv", path)
	assert.Contains(t, body, "Widget")
	assert.True(t, strings.HasPrefix(url, srv.URL+"/exports/daily/export-1.csv?"), url)
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=900")
}

func TestPublish_MissingLocalFile(t *testing.T) {
	t.Parallel()

	p, err := NewS3(Config{S3KeyID: "k", S3Secret: "s", Expiry: time.Minute}, Target{Scheme: "s3", Bucket: "b"})
	require.NoError(t, err)
	_, err = p.Publish(context.Background(), filepath.Join(t.TempDir(), "gone.csv"), "gone.csv")
	require.ErrorIs(t, err, os.ErrNotExist)
}
