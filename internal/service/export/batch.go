package export

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"duck-export/internal/domain"
)

// DefaultBatchConcurrency bounds how many manifest jobs run at once.
const DefaultBatchConcurrency = 4

// Manifest lists exports to run together.
//
//	concurrency: 2
//	jobs:
//	  - name: products
//	    query: products.objects.values("name", "price")
//	    columns:
//	      - {key: name, label: Name}
//	      - {key: price, label: Price}
type Manifest struct {
	Concurrency int   `yaml:"concurrency"`
	Jobs        []Job `yaml:"jobs"`
}

// Job is one export in a manifest. Columns takes precedence over the
// parallel Keys/Labels form.
type Job struct {
	Name     string          `yaml:"name"`
	Query    string          `yaml:"query"`
	Columns  []domain.Column `yaml:"columns"`
	Keys     []string        `yaml:"keys"`
	Labels   []string        `yaml:"labels"`
	PageSize int             `yaml:"page_size"`
	Publish  bool            `yaml:"publish"`
}

// Header returns the job's header.
func (j Job) Header() (domain.Header, error) {
	if len(j.Columns) > 0 {
		h := domain.Header(j.Columns)
		return h, h.Validate()
	}
	return domain.NewHeader(j.Keys, j.Labels)
}

// JobResult is the outcome of one manifest job.
type JobResult struct {
	Name     string
	Artifact *domain.Artifact
	Err      error
	Duration time.Duration
}

// LoadManifest reads and validates a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Jobs) == 0 {
		return nil, domain.ErrValidation("manifest declares no jobs")
	}
	if m.Concurrency < 0 {
		return nil, domain.ErrValidation("manifest concurrency must not be negative")
	}
	seen := make(map[string]bool, len(m.Jobs))
	for i, j := range m.Jobs {
		if strings.TrimSpace(j.Name) == "" {
			return nil, domain.ErrValidation("manifest job %d has no name", i)
		}
		if seen[j.Name] {
			return nil, domain.ErrValidation("manifest job %q is declared more than once", j.Name)
		}
		seen[j.Name] = true
		if strings.TrimSpace(j.Query) == "" {
			return nil, domain.ErrValidation("manifest job %q has no query", j.Name)
		}
	}
	return &m, nil
}

// RunBatch runs every job in m with bounded parallelism. A failing job does
// not stop the others. Results are returned in manifest order.
func (s *Service) RunBatch(ctx context.Context, m *Manifest) []JobResult {
	results := make([]JobResult, len(m.Jobs))
	limit := m.Concurrency
	if limit <= 0 {
		limit = DefaultBatchConcurrency
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i := range m.Jobs {
		job := m.Jobs[i]
		g.Go(func() error {
			start := time.Now()
			res := JobResult{Name: job.Name}
			h, err := job.Header()
			if err == nil {
				res.Artifact, err = s.Export(ctx, job.Query, h, Options{PageSize: job.PageSize, Publish: job.Publish})
			}
			res.Err = err
			res.Duration = time.Since(start)
			if err != nil {
				s.logger.Warn("batch job failed", "job", job.Name, "error", err)
			}
			results[i] = res
			return nil // don't fail the other jobs
		})
	}
	_ = g.Wait()
	return results
}
