// Package server hosts the document store over HTTP and publishes a full
// snapshot of every written path on the event bus.
package server

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/gatekeep/internal/blob"
	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/events"
)

// GateServer serves gate and user documents.
type GateServer struct {
	store     docstore.Backend
	publisher events.Publisher
	blobs     blob.Resolver
	logger    *slog.Logger
}

// NewGateServer returns a server backed by store. publisher may be nil when
// no event bus is configured; blobs may be nil when image resolution is
// not configured.
func NewGateServer(store docstore.Backend, publisher events.Publisher, blobs blob.Resolver, logger *slog.Logger) *GateServer {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GateServer{
		store:     store,
		publisher: publisher,
		blobs:     blobs,
		logger:    logger.With("component", "server"),
	}
}

// publishGate publishes the new state of a gate document. A nil doc is a
// deletion tombstone carrying rev.
func (s *GateServer) publishGate(ctx context.Context, gateID string, doc *docstore.Document, rev int64) {
	snap := docstore.DocSnapshot(docstore.GatePath(gateID), doc)
	if doc == nil {
		snap.Revision = rev
	}
	s.publish(ctx, events.GateTopic(gateID), gateID, snap)
}

// publishUsers re-reads a users collection and publishes it whole.
func (s *GateServer) publishUsers(ctx context.Context, gateID string) {
	c, err := s.store.List(ctx, docstore.UsersPath(gateID))
	if err != nil {
		s.logger.Warn("failed to read users for publish", "gate_id", gateID, "err", err)
		return
	}
	s.publish(ctx, events.UsersTopic(gateID), gateID, docstore.CollectionSnapshot(c))
}

// publish is best-effort; failures are logged but do not fail the write.
func (s *GateServer) publish(ctx context.Context, topic, gateID string, snap docstore.Snapshot) {
	if err := s.publisher.Publish(ctx, topic, snap); err != nil {
		s.logger.Warn("failed to publish snapshot", "topic", topic, "gate_id", gateID, "revision", snap.Revision, "err", err)
	}
}
