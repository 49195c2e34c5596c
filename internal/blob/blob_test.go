package blob

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func testS3Resolver(ttl time.Duration) *S3Resolver {
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		BaseEndpoint: aws.String("http://minio.local:9000"),
		UsePathStyle: true,
	})
	return NewS3ResolverFromClient(client, "scans", ttl)
}

func TestS3Resolver_Presigns(t *testing.T) {
	r := testS3Resolver(10 * time.Minute)
	got, err := r.Resolve(context.Background(), "u1/passport.jpg")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse %q: %v", got, err)
	}
	if u.Host != "minio.local:9000" || u.Path != "/scans/u1/passport.jpg" {
		t.Errorf("unexpected URL %q", got)
	}
	if u.Query().Get("X-Amz-Expires") != "600" {
		t.Errorf("X-Amz-Expires = %q, want 600", u.Query().Get("X-Amz-Expires"))
	}
	if u.Query().Get("X-Amz-Signature") == "" {
		t.Error("missing signature")
	}
}

func TestS3Resolver_PassThroughAndEmpty(t *testing.T) {
	r := testS3Resolver(0)
	if r.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", r.ttl, DefaultTTL)
	}
	got, err := r.Resolve(context.Background(), "https://cdn.example.com/a.jpg")
	if err != nil || got != "https://cdn.example.com/a.jpg" {
		t.Errorf("pass-through = %q, %v", got, err)
	}
	if _, err := r.Resolve(context.Background(), "  "); !errors.Is(err, ErrNoImage) {
		t.Errorf("empty path error = %v, want ErrNoImage", err)
	}
}

func TestStatic(t *testing.T) {
	s := Static{BaseURL: "https://img.example.com/"}
	got, err := s.Resolve(context.Background(), "/u1/iris_l.jpg")
	if err != nil || got != "https://img.example.com/u1/iris_l.jpg" {
		t.Errorf("Resolve = %q, %v", got, err)
	}
	if _, err := (Static{}).Resolve(context.Background(), "a.jpg"); err == nil {
		t.Error("expected error without base URL")
	}
}

func TestResolveOrPlaceholder(t *testing.T) {
	ctx := context.Background()
	failing := ResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("object not found")
	})
	if got := ResolveOrPlaceholder(ctx, failing, "x.jpg", nil); got != Placeholder {
		t.Errorf("failing resolver = %q, want placeholder", got)
	}
	if got := ResolveOrPlaceholder(ctx, nil, "x.jpg", nil); got != Placeholder {
		t.Errorf("nil resolver = %q, want placeholder", got)
	}
	ok := Static{BaseURL: "http://h"}
	if got := ResolveOrPlaceholder(ctx, ok, "x.jpg", nil); !strings.HasSuffix(got, "/x.jpg") {
		t.Errorf("resolved = %q", got)
	}
}
