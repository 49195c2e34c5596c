package docstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/alfredjeanlab/gatekeep/internal/events"
)

// feedBuffer is the per-feed channel size.
const feedBuffer = 16

// Feed turns snapshots published on the event bus into per-path change
// feeds. It subscribes to the bus before the initial read so no write that
// commits after the read is missed, then drops any published snapshot
// whose revision is not newer than the last one delivered.
type Feed struct {
	reader Reader
	sub    events.Subscriber
	logger *slog.Logger

	mu      sync.Mutex
	nextID  int
	resyncs map[int]chan struct{}
}

// NewFeed creates a Feed reading initial state from r.
func NewFeed(r Reader, sub events.Subscriber, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		reader:  r,
		sub:     sub,
		logger:  logger.With("component", "feed"),
		resyncs: make(map[int]chan struct{}),
	}
}

// Resync makes every open feed re-read its path. Call it after the bus
// reconnects, since snapshots published while disconnected are lost.
func (f *Feed) Resync() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.resyncs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (f *Feed) register(ch chan struct{}) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.resyncs[f.nextID] = ch
	return f.nextID
}

func (f *Feed) unregister(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resyncs, id)
}

// Subscribe implements Subscriber.
func (f *Feed) Subscribe(ctx context.Context, path string) (<-chan Snapshot, func(), error) {
	p, err := subscribable(path)
	if err != nil {
		return nil, nil, err
	}
	raw, cancelRaw, err := f.sub.Subscribe(p.Topic())
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", path, err)
	}

	out := make(chan Snapshot, feedBuffer)
	done := make(chan struct{})
	resync := make(chan struct{}, 1)
	id := f.register(resync)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			cancelRaw()
			f.unregister(id)
		})
	}

	go func() {
		defer close(out)
		defer cancel()
		f.run(ctx, p, raw, resync, done, out)
	}()
	return out, cancel, nil
}

func (f *Feed) run(ctx context.Context, p Path, raw <-chan []byte, resync <-chan struct{}, done <-chan struct{}, out chan<- Snapshot) {
	emit := func(s Snapshot) bool {
		select {
		case out <- s:
			return true
		case <-done:
			return false
		case <-ctx.Done():
			return false
		}
	}

	st := newFeedState(p)
	if !emit(st.reset(Read(ctx, f.reader, p.String()))) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-resync:
			if !emit(st.reset(Read(ctx, f.reader, p.String()))) {
				return
			}
		case data, ok := <-raw:
			if !ok {
				return
			}
			var s Snapshot
			if err := json.Unmarshal(data, &s); err != nil {
				f.logger.Warn("dropping undecodable snapshot", "path", p.String(), "err", err)
				continue
			}
			if next, ok := st.apply(s); ok && !emit(next) {
				return
			}
		}
	}
}

// feedState tracks what one feed has delivered.
type feedState struct {
	path Path
	rev  int64

	// gates collection only
	docs map[string]Document
}

func newFeedState(p Path) *feedState {
	st := &feedState{path: p}
	if p.Kind == KindGates {
		st.docs = make(map[string]Document)
	}
	return st
}

// reset adopts the result of a full read. Read errors pass through
// without touching the state.
func (st *feedState) reset(s Snapshot) Snapshot {
	if s.Err != nil {
		return s
	}
	st.rev = s.Revision
	if st.docs != nil {
		clear(st.docs)
		for _, d := range s.Docs {
			st.docs[d.ID] = d
		}
	}
	return s
}

// apply folds a published snapshot into the state and reports whether
// the feed should deliver the result.
func (st *feedState) apply(s Snapshot) (Snapshot, bool) {
	if st.docs == nil {
		if s.Path != st.path.String() || s.Revision <= st.rev {
			return Snapshot{}, false
		}
		st.rev = s.Revision
		return s, true
	}

	p, err := ParsePath(s.Path)
	if err != nil || p.Kind != KindGate {
		return Snapshot{}, false
	}
	cur, known := st.docs[p.GateID]
	if known && cur.Revision >= s.Revision {
		return Snapshot{}, false
	}
	if s.Doc == nil {
		if !known {
			return Snapshot{}, false
		}
		delete(st.docs, p.GateID)
	} else {
		doc := *s.Doc
		doc.ID = p.GateID
		st.docs[p.GateID] = doc
	}
	st.rev = max(st.rev, s.Revision)
	return st.collection(), true
}

func (st *feedState) collection() Snapshot {
	docs := make([]Document, 0, len(st.docs))
	for _, d := range st.docs {
		docs = append(docs, d)
	}
	slices.SortFunc(docs, func(a, b Document) int { return cmp.Compare(a.ID, b.ID) })
	return Snapshot{Path: GatesPath, Revision: st.rev, Docs: docs}
}
