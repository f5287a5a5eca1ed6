// Package api serves the export pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"duck-export/internal/domain"
	"duck-export/internal/middleware"
	"duck-export/internal/service/export"
)

const (
	maxRequestBytes = 1 << 20
	healthTimeout   = 2 * time.Second
)

// ExportService is the part of the export service the handlers need.
type ExportService interface {
	Export(ctx context.Context, spec string, h domain.Header, opts export.Options) (*domain.Artifact, error)
	GetQuery(spec string) (*domain.ResolvedQuery, error)
	CanPublish() bool
}

// Pinger reports whether the data source is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// APIHandler implements the export endpoints.
type APIHandler struct {
	exports ExportService
	source  Pinger
	logger  *slog.Logger
}

// NewHandler creates an APIHandler. A nil logger discards log output.
func NewHandler(exports ExportService, source Pinger, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &APIHandler{exports: exports, source: source, logger: logger}
}

// ExportRequest is the body of POST /v1/exports. Columns takes precedence
// over the parallel Keys/Labels form.
type ExportRequest struct {
	Query    string          `json:"query"`
	Columns  []domain.Column `json:"columns,omitempty"`
	Keys     []string        `json:"keys,omitempty"`
	Labels   []string        `json:"labels,omitempty"`
	PageSize int             `json:"page_size,omitempty"`
	Publish  bool            `json:"publish,omitempty"`
}

func (r ExportRequest) header() (domain.Header, error) {
	if len(r.Columns) > 0 {
		h := domain.Header(r.Columns)
		return h, h.Validate()
	}
	return domain.NewHeader(r.Keys, r.Labels)
}

// ExportResponse is returned for published exports.
type ExportResponse struct {
	ID         string `json:"id"`
	Rows       int64  `json:"rows"`
	Chunks     int    `json:"chunks"`
	Bytes      int64  `json:"bytes"`
	DurationMs int64  `json:"duration_ms"`
	URL        string `json:"url"`
}

// ValidateRequest is the body of POST /v1/queries/validate.
type ValidateRequest struct {
	Query string `json:"query"`
}

// ValidateResponse describes a resolved query.
type ValidateResponse struct {
	Entity  string   `json:"entity"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Shape   string   `json:"shape"`
	Dialect string   `json:"dialect"`
	SQL     string   `json:"sql"`
	Args    []any    `json:"args"`
}

// CreateExport runs an export and streams the CSV back as an attachment.
// Published exports return their download URL as JSON instead. The local file
// is removed once it has been served or published.
func (h *APIHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFromContext(r.Context(), h.logger)

	var req ExportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	hdr, err := req.header()
	if err != nil {
		writeError(w, err)
		return
	}

	artifact, err := h.exports.Export(r.Context(), req.Query, hdr, export.Options{
		PageSize: req.PageSize,
		Publish:  req.Publish,
	})
	if err != nil {
		log.Warn("export request failed", "error", err)
		writeError(w, err)
		return
	}
	defer removeArtifact(log, artifact.Path)

	if req.Publish {
		writeJSON(w, http.StatusCreated, ExportResponse{
			ID:         artifact.ID,
			Rows:       artifact.Rows,
			Chunks:     artifact.Chunks,
			Bytes:      artifact.Bytes,
			DurationMs: artifact.Duration.Milliseconds(),
			URL:        artifact.URL,
		})
		return
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		writeError(w, &domain.IOError{Op: "open", Path: artifact.Path, Err: err})
		return
	}
	defer f.Close() //nolint:errcheck

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "export-"+artifact.ID+".csv"))
	w.Header().Set("Content-Length", strconv.FormatInt(artifact.Bytes, 10))
	w.Header().Set("X-Export-ID", artifact.ID)
	w.Header().Set("X-Export-Rows", strconv.FormatInt(artifact.Rows, 10))
	w.Header().Set("X-Export-Chunks", strconv.Itoa(artifact.Chunks))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		log.Warn("stream export", "export_id", artifact.ID, "error", err)
	}
}

// ValidateQuery resolves a query without running it.
func (h *APIHandler) ValidateQuery(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	rq, err := h.exports.GetQuery(req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	args := rq.Args
	if args == nil {
		args = []any{}
	}
	writeJSON(w, http.StatusOK, ValidateResponse{
		Entity:  rq.Query.Entity,
		Table:   rq.Table,
		Columns: rq.Columns,
		Shape:   string(rq.Shape),
		Dialect: rq.Dialect,
		SQL:     rq.SQL,
		Args:    args,
	})
}

// Health pings the data source.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := h.source.PingContext(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"publish": h.exports.CanPublish(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}

func removeArtifact(log *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("remove export file", "path", path, "error", err)
	}
}
