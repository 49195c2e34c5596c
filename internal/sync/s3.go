package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alfredjeanlab/gatekeep/internal/blob"
)

const exportContentType = "application/x-ndjson"

// objectPutter is the subset of *s3.Client the destination needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination writes the JSONL export to one object in an S3-compatible
// bucket, replacing it on every delivered run.
type S3Destination struct {
	client objectPutter
	bucket string
	key    string
}

// NewS3Destination builds a destination on the shared S3 client setup used
// for image blobs.
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	client, err := blob.NewS3Client(ctx, region, endpoint)
	if err != nil {
		return nil, err
	}
	return newS3Destination(client, bucket, key)
}

func newS3Destination(client objectPutter, bucket, key string) (*S3Destination, error) {
	if bucket == "" || key == "" {
		return nil, errors.New("export bucket and key are required")
	}
	return &S3Destination{client: client, bucket: bucket, key: key}, nil
}

func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(exportContentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", d.bucket, d.key, err)
	}
	return nil
}
