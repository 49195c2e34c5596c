// Package memstore is an in-process document store with native change
// feeds. It backs `gk serve` when GATEKEEP_STORE=memory and the session
// tests.
package memstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/gatekeep/internal/docstore"
)

const subscriptionBuffer = 16

type entry struct {
	rev  int64
	data map[string]any
}

func (e *entry) document(id string) docstore.Document {
	data, _ := json.Marshal(e.data)
	return docstore.Document{ID: id, Revision: e.rev, Data: data}
}

type subscription struct {
	ch chan docstore.Snapshot
}

// deliver never blocks the writer. When the consumer is behind, the oldest
// queued snapshot is discarded; snapshots are full state, so only
// intermediate states are lost.
func (s *subscription) deliver(snap docstore.Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Store implements docstore.Store in memory.
type Store struct {
	mu      sync.Mutex
	rev     int64
	gates   map[string]*entry
	users   map[string]map[string]*entry
	colRevs map[string]int64
	subs    map[string]map[uuid.UUID]*subscription

	// failWrites, when set, is returned by every write.
	failWrites error
}

var _ docstore.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		gates:   make(map[string]*entry),
		users:   make(map[string]map[string]*entry),
		colRevs: make(map[string]int64),
		subs:    make(map[string]map[uuid.UUID]*subscription),
	}
}

// SetFailWrites makes every write fail with err until called with nil.
// Tests use it to simulate store outages.
func (s *Store) SetFailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

func (s *Store) Get(_ context.Context, path string) (*docstore.Document, error) {
	p, err := docstore.ParsePath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(p)
	if e == nil {
		return nil, fmt.Errorf("%s: %w", path, docstore.ErrNotFound)
	}
	doc := e.document(docID(p))
	return &doc, nil
}

func (s *Store) List(_ context.Context, path string) (*docstore.Collection, error) {
	p, err := docstore.ParsePath(path)
	if err != nil {
		return nil, err
	}
	if !p.IsCollection() {
		return nil, fmt.Errorf("%w: %s is not a collection", docstore.ErrInvalidPath, path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(p)
	return &c, nil
}

func (s *Store) Update(_ context.Context, path string, fields map[string]any) (*docstore.Document, error) {
	return s.write(path, fields, false)
}

func (s *Store) Set(_ context.Context, path string, fields map[string]any) (*docstore.Document, error) {
	return s.write(path, fields, true)
}

func (s *Store) write(path string, fields map[string]any, create bool) (*docstore.Document, error) {
	p, err := docstore.ParsePath(path)
	if err != nil {
		return nil, err
	}
	if p.IsCollection() {
		return nil, fmt.Errorf("%w: cannot write collection %s", docstore.ErrInvalidPath, path)
	}
	// Round-trip through JSON so stored values have the same shapes a
	// remote store would return.
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding fields: %w", err)
	}
	var merged map[string]any
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, fmt.Errorf("encoding fields: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return nil, s.failWrites
	}
	e := s.lookup(p)
	if e == nil {
		if !create {
			return nil, fmt.Errorf("%s: %w", path, docstore.ErrNotFound)
		}
		e = &entry{data: make(map[string]any)}
		s.insert(p, e)
	}
	maps.Copy(e.data, merged)
	s.rev++
	e.rev = s.rev
	s.colRevs[p.Parent()] = s.rev

	doc := e.document(docID(p))
	s.notify(p)
	return &doc, nil
}

func (s *Store) Delete(_ context.Context, path string) (int64, error) {
	p, err := docstore.ParsePath(path)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return 0, s.failWrites
	}
	switch p.Kind {
	case docstore.KindGates:
		return 0, fmt.Errorf("%w: cannot delete %s", docstore.ErrInvalidPath, path)
	case docstore.KindGate:
		delete(s.gates, p.GateID)
	case docstore.KindUsers:
		delete(s.users, p.GateID)
	case docstore.KindUser:
		delete(s.users[p.GateID], p.UserID)
	}
	s.rev++
	if parent := p.Parent(); parent != "" {
		s.colRevs[parent] = s.rev
	} else {
		s.colRevs[path] = s.rev
	}
	s.notify(p)
	return s.rev, nil
}

// Subscribe implements docstore.Subscriber. The current state is queued
// before Subscribe returns.
func (s *Store) Subscribe(ctx context.Context, path string) (<-chan docstore.Snapshot, func(), error) {
	p, err := docstore.ParsePath(path)
	if err != nil {
		return nil, nil, err
	}
	if p.Kind == docstore.KindUser {
		return nil, nil, fmt.Errorf("%w: subscribe to %s instead", docstore.ErrInvalidPath, docstore.UsersPath(p.GateID))
	}
	key := p.String()
	id := uuid.New()
	sub := &subscription{ch: make(chan docstore.Snapshot, subscriptionBuffer)}

	s.mu.Lock()
	if s.subs[key] == nil {
		s.subs[key] = make(map[uuid.UUID]*subscription)
	}
	s.subs[key][id] = sub
	sub.deliver(s.snapshot(p))
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[key], id)
			close(sub.ch)
			s.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return sub.ch, cancel, nil
}

// Subscribers returns the number of open subscriptions on path.
func (s *Store) Subscribers(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[path])
}

// notify fans the new state of p out to its subscribers. Caller holds mu.
func (s *Store) notify(p docstore.Path) {
	switch p.Kind {
	case docstore.KindGate:
		s.publish(p)
		s.publish(docstore.Path{Kind: docstore.KindGates})
	case docstore.KindUsers, docstore.KindUser:
		s.publish(docstore.Path{Kind: docstore.KindUsers, GateID: p.GateID})
	}
}

func (s *Store) publish(p docstore.Path) {
	subs := s.subs[p.String()]
	if len(subs) == 0 {
		return
	}
	snap := s.snapshot(p)
	for _, sub := range subs {
		sub.deliver(snap)
	}
}

func (s *Store) snapshot(p docstore.Path) docstore.Snapshot {
	if p.IsCollection() {
		c := s.collection(p)
		return docstore.CollectionSnapshot(&c)
	}
	e := s.lookup(p)
	if e == nil {
		return docstore.Snapshot{Path: p.String(), Revision: s.colRevs[p.Parent()]}
	}
	doc := e.document(docID(p))
	return docstore.DocSnapshot(p.String(), &doc)
}

func (s *Store) collection(p docstore.Path) docstore.Collection {
	c := docstore.Collection{Path: p.String(), Revision: s.colRevs[p.String()], Docs: []docstore.Document{}}
	src := s.gates
	if p.Kind == docstore.KindUsers {
		src = s.users[p.GateID]
	}
	for id, e := range src {
		c.Docs = append(c.Docs, e.document(id))
	}
	slices.SortFunc(c.Docs, func(a, b docstore.Document) int { return cmp.Compare(a.ID, b.ID) })
	return c
}

func (s *Store) lookup(p docstore.Path) *entry {
	switch p.Kind {
	case docstore.KindGate:
		return s.gates[p.GateID]
	case docstore.KindUser:
		return s.users[p.GateID][p.UserID]
	}
	return nil
}

func (s *Store) insert(p docstore.Path, e *entry) {
	switch p.Kind {
	case docstore.KindGate:
		s.gates[p.GateID] = e
	case docstore.KindUser:
		if s.users[p.GateID] == nil {
			s.users[p.GateID] = make(map[string]*entry)
		}
		s.users[p.GateID][p.UserID] = e
	}
}

func docID(p docstore.Path) string {
	if p.Kind == docstore.KindUser {
		return p.UserID
	}
	return p.GateID
}
