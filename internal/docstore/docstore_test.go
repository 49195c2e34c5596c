package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// fakeReader serves canned documents and collections.
type fakeReader struct {
	mu   sync.Mutex
	docs map[string]*Document
	cols map[string]*Collection
	err  error
}

func (f *fakeReader) setDoc(path string, d *Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[path] = d
}

func (f *fakeReader) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeReader) Get(_ context.Context, path string) (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if d, ok := f.docs[path]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
}

func (f *fakeReader) List(_ context.Context, path string) (*Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.cols[path]; ok {
		return c, nil
	}
	return &Collection{Path: path}, nil
}

func TestRead(t *testing.T) {
	r := &fakeReader{
		docs: map[string]*Document{
			"gates/g1": {ID: "g1", Revision: 4, Data: json.RawMessage(`{"status":"idle"}`)},
		},
		cols: map[string]*Collection{
			"gates/g1/users": {Path: "gates/g1/users", Revision: 9, Docs: []Document{{ID: "u1", Revision: 9}}},
		},
	}
	ctx := context.Background()

	s := Read(ctx, r, "gates/g1")
	if s.Err != nil || !s.Exists() || s.Revision != 4 {
		t.Errorf("gate snapshot = %+v", s)
	}

	s = Read(ctx, r, "gates/g2")
	if s.Err != nil || s.Exists() {
		t.Errorf("absent gate should be a snapshot without doc, got %+v", s)
	}

	s = Read(ctx, r, "gates/g1/users")
	if s.Err != nil || s.Revision != 9 || len(s.Docs) != 1 {
		t.Errorf("users snapshot = %+v", s)
	}

	s = Read(ctx, r, "nowhere")
	if !errors.Is(s.Err, ErrInvalidPath) {
		t.Errorf("invalid path err = %v", s.Err)
	}

	r.setErr(errors.New("connection refused"))
	s = Read(ctx, r, "gates/g1")
	if s.Err == nil {
		t.Error("read failure should set Err")
	}
}

func TestDocument_Decode(t *testing.T) {
	var v struct {
		Status string `json:"status"`
	}
	d := &Document{ID: "g1", Data: json.RawMessage(`{"status":"entered"}`)}
	if err := d.Decode(&v); err != nil || v.Status != "entered" {
		t.Errorf("Decode = %v, %+v", err, v)
	}
	if err := (&Document{ID: "g1", Data: json.RawMessage(`[`)}).Decode(&v); err == nil {
		t.Error("expected decode error")
	}
	var nilDoc *Document
	if err := nilDoc.Decode(&v); err != nil {
		t.Errorf("nil document decode: %v", err)
	}
}

func TestSnapshot_JSONOmitsErr(t *testing.T) {
	s := Snapshot{Path: "gates/g1", Revision: 2, Err: errors.New("boom")}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"path":"gates/g1","revision":2}` {
		t.Errorf("marshal = %s", data)
	}
}
