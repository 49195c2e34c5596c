package sync

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/alfredjeanlab/gatekeep/internal/docstore"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version   string    `json:"version"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Revision  int64     `json:"revision"`
	GateCount int       `json:"gate_count"`
	UserCount int       `json:"user_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// gateRecord is a gate document with its current users embedded.
type gateRecord struct {
	ID       string              `json:"id"`
	Revision int64               `json:"revision"`
	Data     json.RawMessage     `json:"data"`
	Users    []docstore.Document `json:"users"`
}

// export is one consistent read of the store, ready to encode.
type export struct {
	header header
	gates  []gateRecord
}

// collect reads every gate and its users collection. The header revision
// is the newest revision seen across all of them, so any write to a gate
// or a user changes it.
func collect(ctx context.Context, r docstore.Reader) (*export, error) {
	gates, err := r.List(ctx, docstore.GatesPath)
	if err != nil {
		return nil, fmt.Errorf("list gates: %w", err)
	}

	e := &export{
		header: header{Version: "1", Type: "header", Timestamp: time.Now().UTC(), Revision: gates.Revision},
		gates:  make([]gateRecord, 0, len(gates.Docs)),
	}
	for _, g := range gates.Docs {
		c, err := r.List(ctx, docstore.UsersPath(g.ID))
		if err != nil {
			return nil, fmt.Errorf("list users for %s: %w", g.ID, err)
		}
		docs := c.Docs
		if docs == nil {
			docs = []docstore.Document{}
		}
		e.header.Revision = max(e.header.Revision, c.Revision, g.Revision)
		e.header.UserCount += len(docs)
		e.gates = append(e.gates, gateRecord{ID: g.ID, Revision: g.Revision, Data: g.Data, Users: docs})
	}
	slices.SortFunc(e.gates, func(a, b gateRecord) int { return cmp.Compare(a.ID, b.ID) })
	e.header.GateCount = len(e.gates)
	return e, nil
}

func (e *export) encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(e.header); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, rec := range e.gates {
		if err := enc.Encode(record{Type: "gate", Data: rec}); err != nil {
			return fmt.Errorf("encode gate %s: %w", rec.ID, err)
		}
	}
	return nil
}

// ExportJSONL writes every gate from r as JSONL to w. Gates are sorted by
// ID and embed the documents of their users collection.
func ExportJSONL(ctx context.Context, r docstore.Reader, w io.Writer) error {
	e, err := collect(ctx, r)
	if err != nil {
		return err
	}
	return e.encode(w)
}
