// Package client provides an HTTP/JSON implementation of the document
// store contract that talks to the gatekeep REST API.
package client

import (
	"context"

	"github.com/alfredjeanlab/gatekeep/internal/docstore"
)

// GateClient is what CLI commands use to reach the server: the document
// store contract plus the server's extra endpoints.
type GateClient interface {
	docstore.Backend

	// CreateUser registers a user under a gate with a server-generated ID.
	CreateUser(ctx context.Context, gateID string, fields map[string]any) (*docstore.Document, error)
	// ResolveBlob turns an image path into a fetchable URL.
	ResolveBlob(ctx context.Context, path string) (string, error)
	// Health reports the server status.
	Health(ctx context.Context) (string, error)

	Close() error
}

var _ GateClient = (*HTTPClient)(nil)
