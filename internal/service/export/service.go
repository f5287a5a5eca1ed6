// Package export runs the query-to-CSV pipeline: resolve the query, read it
// in chunks, project each chunk through the header and stream it to a file.
package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"duck-export/internal/csvout"
	"duck-export/internal/domain"
	"duck-export/internal/header"
	"duck-export/internal/metrics"
	"duck-export/internal/queryspec"
)

// Config holds the service-wide export defaults.
type Config struct {
	// Dir is where export files are created; empty means the platform temp dir.
	Dir      string
	PageSize int
}

// Options tune a single export call.
type Options struct {
	// PageSize overrides the configured page size when positive.
	PageSize int
	// OnChunk is called after each chunk has been written.
	OnChunk domain.ChunkObserver
	// Publish uploads the finished file through the configured publisher.
	Publish bool
}

// Service exports query results to CSV files.
type Service struct {
	resolver  *queryspec.Resolver
	reader    domain.ChunkReader
	publisher domain.Publisher
	metrics   *metrics.Collector
	logger    *slog.Logger
	cfg       Config
}

// NewService creates an export Service. A nil logger discards log output.
func NewService(resolver *queryspec.Resolver, reader domain.ChunkReader, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = domain.DefaultPageSize
	}
	return &Service{resolver: resolver, reader: reader, cfg: cfg, logger: logger}
}

// SetPublisher enables Options.Publish.
func (s *Service) SetPublisher(p domain.Publisher) {
	s.publisher = p
}

// SetMetrics configures the metrics collector.
func (s *Service) SetMetrics(m *metrics.Collector) {
	s.metrics = m
}

// CanPublish reports whether a publisher is configured.
func (s *Service) CanPublish() bool { return s.publisher != nil }

// GetQuery resolves spec without executing it.
func (s *Service) GetQuery(spec string) (*domain.ResolvedQuery, error) {
	return s.resolver.Resolve(spec)
}

// ResolveQuery validates and compiles a structured query.
func (s *Service) ResolveQuery(q domain.Query) (*domain.ResolvedQuery, error) {
	return s.resolver.ResolveQuery(q)
}

// GenerateCSV exports spec with a header given as parallel key and label
// sequences, which must have equal length.
func (s *Service) GenerateCSV(ctx context.Context, spec string, keys, labels []string, opts Options) (*domain.Artifact, error) {
	h, err := domain.NewHeader(keys, labels)
	if err != nil {
		s.metrics.ExportRejected(metrics.StatusInvalidQuery)
		return nil, err
	}
	return s.Export(ctx, spec, h, opts)
}

// Export resolves spec and exports it with header h.
func (s *Service) Export(ctx context.Context, spec string, h domain.Header, opts Options) (*domain.Artifact, error) {
	rq, err := s.resolver.Resolve(spec)
	if err != nil {
		s.metrics.ExportRejected(metrics.StatusInvalidQuery)
		s.logger.Info("export rejected", "error", err)
		return nil, err
	}
	return s.ExportQuery(ctx, rq, h, opts)
}

// ExportQuery exports an already resolved query. No file is created when the
// header or options are invalid. On any later failure the partial file is
// closed and left on disk.
func (s *Service) ExportQuery(ctx context.Context, rq *domain.ResolvedQuery, h domain.Header, opts Options) (*domain.Artifact, error) {
	pageSize := s.cfg.PageSize
	if opts.PageSize > 0 {
		pageSize = opts.PageSize
	} else if opts.PageSize < 0 {
		s.metrics.ExportRejected(metrics.StatusInvalidQuery)
		return nil, domain.ErrValidation("page size must be positive, got %d", opts.PageSize)
	}
	if opts.Publish && s.publisher == nil {
		s.metrics.ExportRejected(metrics.StatusInvalidQuery)
		return nil, domain.ErrValidation("publishing is not configured")
	}
	if err := header.CheckKeys(h, rq.Columns); err != nil {
		s.metrics.ExportRejected(metrics.StatusInvalidQuery)
		return nil, err
	}

	id := uuid.NewString()
	log := s.logger.With("export_id", id, "table", rq.Table, "shape", string(rq.Shape))
	start := time.Now()
	s.metrics.ExportStarted()
	log.Info("export started", "page_size", pageSize, "columns", len(h))

	artifact, err := s.run(ctx, log, rq, h, pageSize, opts)
	elapsed := time.Since(start)
	s.metrics.ExportFinished(statusOf(err), elapsed)
	if err != nil {
		log.Error("export failed", "error", err, "duration", elapsed)
		return nil, err
	}

	artifact.ID = id
	artifact.Duration = elapsed
	log.Info("export finished",
		"path", artifact.Path,
		"rows", artifact.Rows,
		"chunks", artifact.Chunks,
		"bytes", artifact.Bytes,
		"duration", elapsed,
	)
	return artifact, nil
}

func (s *Service) run(ctx context.Context, log *slog.Logger, rq *domain.ResolvedQuery, h domain.Header, pageSize int, opts Options) (*domain.Artifact, error) {
	w, err := csvout.Create(s.cfg.Dir)
	if err != nil {
		return nil, err
	}
	if err := w.WriteHeader(h.Labels()); err != nil {
		return nil, err
	}

	var (
		proj   *header.Projection
		chunks int
	)
	bind := func(columns []string) error {
		p, err := header.Bind(h, columns)
		if err != nil {
			return err
		}
		proj = p
		return nil
	}
	rows, err := s.reader.ForEachChunk(ctx, rq, pageSize, bind, func(c domain.Chunk) error {
		if proj == nil {
			if err := bind(c.Columns); err != nil {
				return err
			}
		}
		records, err := proj.Project(c)
		if err != nil {
			return err
		}
		if err := w.WriteRows(records); err != nil {
			return err
		}
		chunks++
		info := c.Info()
		log.Debug("chunk written", "index", info.Index, "offset", info.Offset, "size", info.Size)
		s.metrics.ObserveChunk(info)
		if opts.OnChunk != nil {
			opts.OnChunk(info)
		}
		return nil
	})
	if err != nil {
		return nil, w.Abort(err)
	}

	path, err := w.Close()
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &domain.IOError{Op: "stat", Path: path, Err: err}
	}

	artifact := &domain.Artifact{Path: path, Rows: rows, Chunks: chunks, Bytes: info.Size()}
	if opts.Publish {
		url, err := s.publisher.Publish(ctx, path, filepath.Base(path))
		if err != nil {
			return nil, err
		}
		artifact.URL = url
	}
	return artifact, nil
}

func statusOf(err error) string {
	var (
		invalid *domain.InvalidQueryError
		missing *domain.MissingFieldError
		valid   *domain.ValidationError
		source  *domain.DataSourceError
		ioErr   *domain.IOError
	)
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.StatusCanceled
	case errors.As(err, &invalid), errors.As(err, &missing), errors.As(err, &valid):
		return metrics.StatusInvalidQuery
	case errors.As(err, &source):
		return metrics.StatusSourceError
	case errors.As(err, &ioErr):
		return metrics.StatusIOError
	default:
		return metrics.StatusError
	}
}
