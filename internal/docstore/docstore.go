// Package docstore defines the document store contract shared by the
// server, the CLI and the gate session: path-addressed JSON documents with
// partial-merge writes and full-state change feeds.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidPath is returned for paths outside the gates tree, or for
	// operations that do not apply to the kind of path given.
	ErrInvalidPath = errors.New("invalid document path")
)

// Document is one stored JSON object. Revision increases on every write.
type Document struct {
	ID       string          `json:"id"`
	Revision int64           `json:"revision"`
	Data     json.RawMessage `json:"data"`
}

// Decode unmarshals the document data into v.
func (d *Document) Decode(v any) error {
	if d == nil || len(d.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decoding document %s: %w", d.ID, err)
	}
	return nil
}

// Collection is the full set of documents under a collection path.
type Collection struct {
	Path     string     `json:"path"`
	Revision int64      `json:"revision"`
	Docs     []Document `json:"docs"`
}

// Snapshot is one change-feed delivery. Document paths set Doc (nil when
// the document is absent); collection paths set Docs. Err is set instead
// when the feed failed to read the path.
type Snapshot struct {
	Path     string     `json:"path"`
	Revision int64      `json:"revision"`
	Doc      *Document  `json:"doc,omitempty"`
	Docs     []Document `json:"docs,omitempty"`
	Err      error      `json:"-"`
}

// Exists reports whether a document snapshot carries a document.
func (s Snapshot) Exists() bool {
	return s.Doc != nil
}

// DocSnapshot builds the snapshot of a document path.
func DocSnapshot(path string, doc *Document) Snapshot {
	s := Snapshot{Path: path, Doc: doc}
	if doc != nil {
		s.Revision = doc.Revision
	}
	return s
}

// CollectionSnapshot builds the snapshot of a collection.
func CollectionSnapshot(c *Collection) Snapshot {
	return Snapshot{Path: c.Path, Revision: c.Revision, Docs: c.Docs}
}

// Reader performs one-shot reads.
type Reader interface {
	// Get returns the document at a document path, or ErrNotFound.
	Get(ctx context.Context, path string) (*Document, error)
	// List returns every document under a collection path. A collection
	// with no documents is not an error.
	List(ctx context.Context, path string) (*Collection, error)
}

// Writer performs mutations. Field maps are merged into the top level of
// the stored object; a nil value stores JSON null.
type Writer interface {
	// Update merges fields into an existing document, or fails with ErrNotFound.
	Update(ctx context.Context, path string, fields map[string]any) (*Document, error)
	// Set merges fields into the document, creating it when absent.
	Set(ctx context.Context, path string, fields map[string]any) (*Document, error)
	// Delete removes a document, or every document of a users collection.
	// It returns the revision assigned to the deletion.
	Delete(ctx context.Context, path string) (int64, error)
}

// Subscriber opens change feeds. The first snapshot on the channel is the
// current state of the path; later ones follow the store's commit order.
// The cancel func releases the feed and closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context, path string) (<-chan Snapshot, func(), error)
}

// Backend is a store without a change feed, such as the Postgres store or
// the HTTP client.
type Backend interface {
	Reader
	Writer
}

// Store is the full document store.
type Store interface {
	Reader
	Writer
	Subscriber
}

// Read returns the current state of path as a snapshot. An absent
// document yields a snapshot without Doc; other failures set Err.
func Read(ctx context.Context, r Reader, path string) Snapshot {
	p, err := ParsePath(path)
	if err != nil {
		return Snapshot{Path: path, Err: err}
	}
	if p.IsCollection() {
		c, err := r.List(ctx, path)
		if err != nil {
			return Snapshot{Path: path, Err: err}
		}
		return CollectionSnapshot(c)
	}
	doc, err := r.Get(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{Path: path}
	}
	if err != nil {
		return Snapshot{Path: path, Err: err}
	}
	return DocSnapshot(path, doc)
}

// subscribable rejects paths that have no feed of their own. User
// documents are observed through their users collection.
func subscribable(path string) (Path, error) {
	p, err := ParsePath(path)
	if err != nil {
		return p, err
	}
	if p.Kind == KindUser {
		return p, fmt.Errorf("%w: subscribe to %s instead of %s", ErrInvalidPath, UsersPath(p.GateID), path)
	}
	return p, nil
}
