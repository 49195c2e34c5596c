package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/notify"
)

// update is one recorded Writer.Update call.
type update struct {
	path   string
	fields map[string]any
}

// fakeStore hands the test direct control over both feeds of one gate.
type fakeStore struct {
	mu      sync.Mutex
	gate    *docstore.Document
	updates []update
	failErr error

	gateCh  chan docstore.Snapshot
	usersCh chan docstore.Snapshot
	once    sync.Once
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		gateCh:  make(chan docstore.Snapshot, 16),
		usersCh: make(chan docstore.Snapshot, 16),
	}
}

func (f *fakeStore) Get(_ context.Context, path string) (*docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		return nil, fmt.Errorf("%s: %w", path, docstore.ErrNotFound)
	}
	return f.gate, nil
}

func (f *fakeStore) List(_ context.Context, path string) (*docstore.Collection, error) {
	return &docstore.Collection{Path: path}, nil
}

func (f *fakeStore) Update(_ context.Context, path string, fields map[string]any) (*docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update{path: path, fields: fields})
	if f.failErr != nil {
		return nil, f.failErr
	}
	return &docstore.Document{}, nil
}

func (f *fakeStore) Set(ctx context.Context, path string, fields map[string]any) (*docstore.Document, error) {
	return f.Update(ctx, path, fields)
}

func (f *fakeStore) Delete(context.Context, string) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Subscribe(_ context.Context, path string) (<-chan docstore.Snapshot, func(), error) {
	p, err := docstore.ParsePath(path)
	if err != nil {
		return nil, nil, err
	}
	if p.Kind == docstore.KindGate {
		return f.gateCh, func() {}, nil
	}
	return f.usersCh, func() {}, nil
}

func (f *fakeStore) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

func (f *fakeStore) recorded() []update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]update(nil), f.updates...)
}

// exits counts recorded writes that command the automatic exit.
func (f *fakeStore) exits() int {
	n := 0
	for _, u := range f.recorded() {
		if u.path == "gates/g1" && fmt.Sprint(u.fields["status"]) == "exiting" {
			n++
		}
	}
	return n
}

func (f *fakeStore) pushGate(t *testing.T, rev int64, fields map[string]any) {
	t.Helper()
	f.gateCh <- docstore.DocSnapshot("gates/g1", doc(t, "g1", rev, fields))
}

func (f *fakeStore) pushUsers(t *testing.T, rev int64, users map[string]string) {
	t.Helper()
	snap := docstore.Snapshot{Path: "gates/g1/users", Revision: rev, Docs: []docstore.Document{}}
	for id, status := range users {
		snap.Docs = append(snap.Docs, *doc(t, id, rev, map[string]any{"scan_status": status}))
	}
	f.usersCh <- snap
}

func doc(t *testing.T, id string, rev int64, fields map[string]any) *docstore.Document {
	t.Helper()
	data, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	return &docstore.Document{ID: id, Revision: rev, Data: data}
}

// recorder collects notifications.
type recorder struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (r *recorder) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) count(kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Kind == kind {
			n++
		}
	}
	return n
}

// scripted answers confirmation prompts from a fixed list, then declines.
type scripted struct {
	mu      sync.Mutex
	answers []bool
	asked   []string
}

func (s *scripted) Confirm(q string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, q)
	if len(s.answers) == 0 {
		return false, nil
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func yes(n int) *scripted {
	s := &scripted{}
	for range n {
		s.answers = append(s.answers, true)
	}
	return s
}

// views forwards OnChange views to a channel the test can wait on.
type views chan View

func (v views) onChange(view View) {
	select {
	case v <- view:
	default:
	}
}
