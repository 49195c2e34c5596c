package sync

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/gatekeep/internal/docstore"
)

// Destination is the interface for an export target.
type Destination interface {
	// Write stores one complete JSONL export.
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports the store to its destinations on an interval. A run
// whose store revision matches the last fully delivered export uploads
// nothing.
type Scheduler struct {
	store        docstore.Reader
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	delivered    bool
	lastRevision int64
}

func NewScheduler(r docstore.Reader, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        r,
		destinations: destinations,
		interval:     interval,
		logger:       logger.With("component", "sync"),
	}
}

// Start runs an export immediately and then on every tick until ctx is
// done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for a running export to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.syncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *Scheduler) syncOnce(ctx context.Context) {
	e, err := collect(ctx, s.store)
	if err != nil {
		s.logger.Error("export read failed", "err", err)
		return
	}
	rev := e.header.Revision
	if s.delivered && rev == s.lastRevision {
		s.logger.Debug("export skipped, store unchanged", "revision", rev)
		return
	}

	var buf bytes.Buffer
	if err := e.encode(&buf); err != nil {
		s.logger.Error("export encode failed", "err", err)
		return
	}
	data := buf.Bytes()

	failed := 0
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Error("export write failed", "destination", i, "err", err)
			failed++
		}
	}
	if failed == 0 {
		s.delivered, s.lastRevision = true, rev
	}
	s.logger.Info("export completed",
		"revision", rev,
		"gates", e.header.GateCount,
		"users", e.header.UserCount,
		"destinations", len(s.destinations),
		"failed", failed,
		"bytes", len(data),
	)
}
