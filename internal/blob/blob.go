// Package blob turns stored image paths into URLs an operator can open.
package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Placeholder is shown in place of an image that cannot be resolved.
const Placeholder = "no image"

// ErrNoImage is returned for an empty path.
var ErrNoImage = errors.New("no image path")

// Resolver maps a blob path to a fetchable URL.
type Resolver interface {
	Resolve(ctx context.Context, path string) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, path string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// isURL reports whether path is already an absolute http(s) URL.
func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// ResolveOrPlaceholder resolves path, degrading to Placeholder on any
// failure. Failures other than an empty path are logged.
func ResolveOrPlaceholder(ctx context.Context, r Resolver, path string, logger *slog.Logger) string {
	if r == nil {
		return Placeholder
	}
	url, err := r.Resolve(ctx, path)
	if err != nil {
		if !errors.Is(err, ErrNoImage) && logger != nil {
			logger.Warn("image not resolved", "path", path, "err", err)
		}
		return Placeholder
	}
	return url
}

// S3Resolver presigns GET requests for objects in one bucket.
type S3Resolver struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// DefaultTTL is how long a presigned URL stays valid.
const DefaultTTL = 15 * time.Minute

// NewS3Client loads the default AWS configuration for region. If endpoint
// is non-empty, path-style addressing is enabled (for MinIO and similar).
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(cfg, s3opts...), nil
}

// NewS3Resolver presigns against bucket using the default AWS configuration.
func NewS3Resolver(ctx context.Context, bucket, region, endpoint string, ttl time.Duration) (*S3Resolver, error) {
	if bucket == "" {
		return nil, errors.New("blob bucket is required")
	}
	client, err := NewS3Client(ctx, region, endpoint)
	if err != nil {
		return nil, err
	}
	return NewS3ResolverFromClient(client, bucket, ttl), nil
}

func NewS3ResolverFromClient(client *s3.Client, bucket string, ttl time.Duration) *S3Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &S3Resolver{
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		ttl:     ttl,
	}
}

// Resolve returns a presigned URL for path. Absolute URLs pass through.
func (r *S3Resolver) Resolve(ctx context.Context, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", ErrNoImage
	}
	if isURL(path) {
		return path, nil
	}
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(strings.TrimPrefix(path, "/")),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", path, err)
	}
	return req.URL, nil
}

// Static resolves paths against a fixed base URL. Used when images are
// served publicly.
type Static struct {
	BaseURL string
}

func (s Static) Resolve(_ context.Context, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", ErrNoImage
	}
	if isURL(path) {
		return path, nil
	}
	if s.BaseURL == "" {
		return "", errors.New("no blob base URL configured")
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/"), nil
}
