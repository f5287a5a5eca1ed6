package domain

import (
	"context"
	"time"
)

// DefaultPageSize is the number of rows per chunk when none is configured.
const DefaultPageSize = 1000

// Chunk is one bounded batch of result rows in result order.
type Chunk struct {
	Index   int
	Offset  int64 // cumulative row offset of Rows[0]
	Columns []string
	Rows    [][]any
}

// Info returns the observable metadata of the chunk.
func (c Chunk) Info() ChunkInfo {
	return ChunkInfo{Index: c.Index, Offset: c.Offset, Size: len(c.Rows)}
}

// ChunkInfo describes a delivered chunk without its rows.
type ChunkInfo struct {
	Index  int   `json:"index"`
	Offset int64 `json:"offset"`
	Size   int   `json:"size"`
}

// ChunkObserver is notified once per chunk, after it has been written.
type ChunkObserver func(ChunkInfo)

// Artifact is a finished export file. The caller owns Path and may delete it
// once read.
type Artifact struct {
	ID       string        `json:"id"`
	Path     string        `json:"path"`
	Rows     int64         `json:"rows"`
	Chunks   int           `json:"chunks"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
	URL      string        `json:"url,omitempty"`
}

// ChunkReader executes a resolved query and hands its rows to fn in chunks of
// at most pageSize rows. onColumns, when non-nil, receives the result columns
// once before the first chunk, also for an empty result. It returns the number
// of rows delivered.
type ChunkReader interface {
	ForEachChunk(ctx context.Context, q *ResolvedQuery, pageSize int, onColumns func([]string) error, fn func(Chunk) error) (int64, error)
}

// Publisher uploads a finished artifact and returns a download URL.
type Publisher interface {
	Publish(ctx context.Context, localPath, name string) (string, error)
}
