package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/gatekeep/internal/blob"
	"github.com/alfredjeanlab/gatekeep/internal/config"
	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/docstore/memstore"
	"github.com/alfredjeanlab/gatekeep/internal/docstore/postgres"
	"github.com/alfredjeanlab/gatekeep/internal/events"
	"github.com/alfredjeanlab/gatekeep/internal/server"
	gksync "github.com/alfredjeanlab/gatekeep/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the gatekeep document server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		slog.SetDefault(logger)

		store, storeCloser, err := openServerStore(cfg, logger)
		if err != nil {
			return err
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				storeCloser.Close()
				return err
			}
			publisher = pub
			logger.Info("change feed enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("change feed disabled (GATEKEEP_NATS_URL not set)")
		}

		// Blob resolver for image URLs.
		var blobs blob.Resolver
		if cfg.BlobS3Bucket != "" {
			r, err := blob.NewS3Resolver(context.Background(), cfg.BlobS3Bucket, cfg.BlobS3Region, cfg.BlobS3Endpoint, cfg.BlobURLTTL)
			if err != nil {
				logger.Error("failed to create blob resolver", "err", err)
			} else {
				blobs = r
				logger.Info("blob URLs enabled", "bucket", cfg.BlobS3Bucket, "ttl", cfg.BlobURLTTL)
			}
		}

		gateServer := server.NewGateServer(store, publisher, blobs, logger)
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           gateServer.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start the export scheduler if a destination is configured.
		var scheduler *gksync.Scheduler
		if cfg.SyncInterval > 0 && cfg.SyncS3Bucket != "" {
			dest, err := gksync.NewS3Destination(
				context.Background(),
				cfg.SyncS3Bucket,
				cfg.SyncS3Key,
				cfg.BlobS3Region,
				cfg.SyncS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 sync destination", "err", err)
			} else {
				scheduler = gksync.NewScheduler(store, []gksync.Destination{dest}, cfg.SyncInterval, logger)
				scheduler.Start(context.Background())
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval, "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
			}
		}

		logger.Info("gatekeep server started", "http_addr", cfg.HTTPAddr, "store", cfg.Store)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := storeCloser.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openServerStore opens the configured backend.
func openServerStore(cfg *config.Config, logger *slog.Logger) (docstore.Backend, io.Closer, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; documents are lost on restart")
		return memstore.New(), nopCloser{}, nil
	default:
		s, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}
