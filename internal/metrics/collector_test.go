package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-export/internal/domain"
)

func TestCollector_RecordsExport(t *testing.T) {
	t.Parallel()
	c := NewCollector()

	c.ExportStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight))

	for _, size := range []int{1000, 1000, 500} {
		c.ObserveChunk(domain.ChunkInfo{Size: size})
	}
	c.ExportFinished(StatusSuccess, 250*time.Millisecond)
	c.ExportRejected(StatusInvalidQuery)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.chunks))
	assert.Equal(t, 2500.0, testutil.ToFloat64(c.rows))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.exports.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.exports.WithLabelValues(StatusInvalidQuery)))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestCollector_NilIsNoop(t *testing.T) {
	t.Parallel()
	var c *Collector

	assert.NotPanics(t, func() {
		c.ExportStarted()
		c.ObserveChunk(domain.ChunkInfo{Size: 1})
		c.ExportFinished(StatusError, time.Second)
		c.ExportRejected(StatusInvalidQuery)
	})
}

func TestCollector_Handler(t *testing.T) {
	t.Parallel()
	c := NewCollector()
	c.ObserveChunk(domain.ChunkInfo{Size: 7})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "csvexport_export_rows_total 7")
	assert.Contains(t, string(body), "go_goroutines")
}
