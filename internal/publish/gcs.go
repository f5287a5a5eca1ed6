package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"duck-export/internal/domain"
)

var _ domain.Publisher = (*GCS)(nil)

// GCS publishes to Google Cloud Storage with a service-account key.
type GCS struct {
	client *storage.Client
	target Target
	expiry time.Duration
}

// NewGCS creates a GCS publisher from the key file in cfg.
func NewGCS(ctx context.Context, cfg Config, target Target) (*GCS, error) {
	if cfg.GCSKeyFile == "" {
		return nil, fmt.Errorf("GCS publishing requires GCS_KEY_FILE")
	}
	client, err := storage.NewClient(ctx, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.GCSKeyFile))
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCS{client: client, target: target, expiry: cfg.Expiry}, nil
}

// Publish uploads localPath as name and returns a signed GET URL.
func (p *GCS) Publish(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", &domain.IOError{Op: "open", Path: localPath, Err: err}
	}
	defer f.Close()

	key := p.target.Key(name)
	obj := p.client.Bucket(p.target.Bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = "text/csv"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload gs://%s/%s: %w", p.target.Bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload gs://%s/%s: %w", p.target.Bucket, key, err)
	}

	signed, err := p.client.Bucket(p.target.Bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(p.expiry),
	})
	if err != nil {
		return "", fmt.Errorf("sign gs://%s/%s: %w", p.target.Bucket, key, err)
	}
	return signed, nil
}
