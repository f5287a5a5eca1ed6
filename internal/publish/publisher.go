// Package publish uploads finished export files to object storage and returns
// time-limited download URLs.
package publish

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"duck-export/internal/domain"
)

// DefaultExpiry is how long a published download URL stays valid.
const DefaultExpiry = time.Hour

// Config selects the publish target and carries the credentials for it.
type Config struct {
	// URL is the destination prefix: s3://bucket/prefix, gs://bucket/prefix
	// or az://container/prefix.
	URL    string
	Expiry time.Duration

	S3KeyID    string
	S3Secret   string
	S3Endpoint string
	S3Region   string

	GCSKeyFile string

	AzureAccountName string
	AzureAccountKey  string
	// AzureServiceURL overrides https://<account>.blob.core.windows.net.
	AzureServiceURL string
}

// Target is a parsed publish destination.
type Target struct {
	Scheme string
	Bucket string
	Prefix string
}

// Key returns the object key for name under the target prefix.
func (t Target) Key(name string) string {
	return strings.TrimPrefix(path.Join(t.Prefix, name), "/")
}

// ParseTarget parses a publish URL into its scheme, bucket and key prefix.
func ParseTarget(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parse publish url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "s3", "gs", "az":
	default:
		return Target{}, fmt.Errorf("unsupported publish scheme %q in %q: use s3, gs or az", u.Scheme, raw)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("empty bucket in publish url %q", raw)
	}
	return Target{
		Scheme: u.Scheme,
		Bucket: u.Host,
		Prefix: strings.Trim(u.Path, "/"),
	}, nil
}

// New builds the Publisher for cfg.URL.
func New(ctx context.Context, cfg Config) (domain.Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("publish url is not configured")
	}
	target, err := ParseTarget(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}

	switch target.Scheme {
	case "s3":
		return NewS3(cfg, target)
	case "gs":
		return NewGCS(ctx, cfg, target)
	default:
		return NewAzure(cfg, target)
	}
}
