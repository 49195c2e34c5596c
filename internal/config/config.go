// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Store       string     // GATEKEEP_STORE (postgres|memory, default postgres)
	DatabaseURL string     // GATEKEEP_DATABASE_URL (required for postgres)
	HTTPAddr    string     // GATEKEEP_HTTP_ADDR (default ":8080")
	NATSURL     string     // GATEKEEP_NATS_URL (optional, empty = no change feed)
	AuthToken   string     // GATEKEEP_AUTH_TOKEN (optional, empty = auth disabled)
	LogLevel    slog.Level // GATEKEEP_LOG_LEVEL (debug|info|warn|error, default info)

	// Blob settings
	BlobS3Bucket   string        // GATEKEEP_BLOB_S3_BUCKET (enables image URLs when set)
	BlobS3Endpoint string        // GATEKEEP_BLOB_S3_ENDPOINT (custom endpoint for MinIO)
	BlobS3Region   string        // GATEKEEP_BLOB_S3_REGION (default "us-east-1")
	BlobURLTTL     time.Duration // GATEKEEP_BLOB_URL_TTL (default 15m)

	// Sync settings
	SyncInterval   time.Duration // GATEKEEP_SYNC_INTERVAL (default 0 = disabled)
	SyncS3Bucket   string        // GATEKEEP_SYNC_S3_BUCKET (enables S3 export when set)
	SyncS3Endpoint string        // GATEKEEP_SYNC_S3_ENDPOINT (defaults to the blob endpoint)
	SyncS3Key      string        // GATEKEEP_SYNC_S3_KEY (default "gatekeep/export.jsonl")
}

// Load reads the configuration. A .env file in the working directory is
// loaded first when present; variables already set take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	c := &Config{
		Store:          envOrDefault("GATEKEEP_STORE", StorePostgres),
		DatabaseURL:    os.Getenv("GATEKEEP_DATABASE_URL"),
		HTTPAddr:       envOrDefault("GATEKEEP_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("GATEKEEP_NATS_URL"),
		AuthToken:      os.Getenv("GATEKEEP_AUTH_TOKEN"),
		BlobS3Bucket:   os.Getenv("GATEKEEP_BLOB_S3_BUCKET"),
		BlobS3Endpoint: os.Getenv("GATEKEEP_BLOB_S3_ENDPOINT"),
		BlobS3Region:   envOrDefault("GATEKEEP_BLOB_S3_REGION", "us-east-1"),
		SyncS3Bucket:   os.Getenv("GATEKEEP_SYNC_S3_BUCKET"),
		SyncS3Key:      envOrDefault("GATEKEEP_SYNC_S3_KEY", "gatekeep/export.jsonl"),
	}
	c.SyncS3Endpoint = envOrDefault("GATEKEEP_SYNC_S3_ENDPOINT", c.BlobS3Endpoint)

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("GATEKEEP_DATABASE_URL is required")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("GATEKEEP_STORE: unknown store %q", c.Store)
	}

	level, err := parseLevel(envOrDefault("GATEKEEP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	c.LogLevel = level

	if c.BlobURLTTL, err = durationEnv("GATEKEEP_BLOB_URL_TTL", "15m"); err != nil {
		return nil, err
	}
	if c.SyncInterval, err = durationEnv("GATEKEEP_SYNC_INTERVAL", "0"); err != nil {
		return nil, err
	}
	return c, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("GATEKEEP_LOG_LEVEL: %w", err)
	}
	return level, nil
}

func durationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
