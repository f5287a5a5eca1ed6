package publish

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"duck-export/internal/domain"
)

var _ domain.Publisher = (*S3)(nil)

// S3 publishes to S3-compatible object storage using path-style addressing.
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	target  Target
	expiry  time.Duration
}

// NewS3 creates an S3 publisher with static credentials.
func NewS3(cfg Config, target Target) (*S3, error) {
	if cfg.S3KeyID == "" || cfg.S3Secret == "" {
		return nil, fmt.Errorf("S3 publishing requires S3_KEY_ID and S3_SECRET")
	}
	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}

	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.S3KeyID, cfg.S3Secret, ""),
		UsePathStyle: true,
	}
	if cfg.S3Endpoint != "" {
		endpoint := cfg.S3Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
	}
	client := s3.New(opts)

	return &S3{
		client:  client,
		presign: s3.NewPresignClient(client),
		target:  target,
		expiry:  cfg.Expiry,
	}, nil
}

// Publish uploads localPath as name and returns a presigned GET URL.
func (p *S3) Publish(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", &domain.IOError{Op: "open", Path: localPath, Err: err}
	}
	defer f.Close()

	key := p.target.Key(name)
	if _, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.target.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	}); err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", p.target.Bucket, key, err)
	}

	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.target.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", p.target.Bucket, key, err)
	}
	return req.URL, nil
}
