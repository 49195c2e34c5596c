// Package session implements the per-gate control loop: it mirrors a gate
// and its users from the document store, drives the automatic exit when
// every user has been scanned, surfaces hardware alerts, and issues
// operator commands.
package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/gatekeep/internal/alerts"
	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/model"
	"github.com/alfredjeanlab/gatekeep/internal/notify"
)

// commandTimeout bounds store writes issued by the loop itself.
const commandTimeout = 10 * time.Second

// View is a consistent copy of the session state.
type View struct {
	SessionID        string
	GateID           string
	Gate             *model.Gate // nil when no gate data is available
	Users            []model.User
	AllProcessed     bool
	PendingOverrides []string
	LastAlert        string
}

// Session observes one gate. Open one per gate view and Close it when the
// view goes away; nothing is shared between sessions.
type Session struct {
	id       uuid.UUID
	gateID   string
	issuer   *Issuer
	parser   alerts.Parser
	notifier notify.Notifier
	logger   *slog.Logger
	onChange func(View)
	now      func() time.Time

	ctx      context.Context
	stop     context.CancelFunc
	cancels  []func()
	loopDone chan struct{}
	inflight sync.WaitGroup
	closed   sync.Once

	// mu guards the fields below. It is never held across a store call,
	// a confirmation prompt, a notification or OnChange.
	mu      sync.Mutex
	cache   Cache
	dedup   alerts.Deduplicator
	pending alerts.OverrideSet
	guard   exitGuard
}

// Open reads the gate once, subscribes to the gate document and its users
// collection, and starts the control loop. The returned session must be
// closed.
func Open(ctx context.Context, store docstore.Store, gateID string, opts Options) (*Session, error) {
	if !model.ValidID(gateID) {
		return nil, fmt.Errorf("%w: gate id %q", docstore.ErrInvalidPath, gateID)
	}
	opts = opts.withDefaults()
	id := uuid.New()
	logger := opts.Logger.With("component", "session", "gate_id", gateID, "session", id.String())

	s := &Session{
		id:       id,
		gateID:   gateID,
		issuer:   NewIssuer(gateID, store, opts),
		parser:   opts.Parser,
		notifier: opts.Notifier,
		logger:   logger,
		onChange: opts.OnChange,
		now:      opts.Now,
		loopDone: make(chan struct{}),
	}
	s.ctx, s.stop = context.WithCancel(ctx)

	gateCh, cancelGate, err := store.Subscribe(s.ctx, docstore.GatePath(gateID))
	if err != nil {
		s.stop()
		return nil, fmt.Errorf("subscribing to gate %s: %w", gateID, err)
	}
	usersCh, cancelUsers, err := store.Subscribe(s.ctx, docstore.UsersPath(gateID))
	if err != nil {
		cancelGate()
		s.stop()
		return nil, fmt.Errorf("subscribing to users of gate %s: %w", gateID, err)
	}
	s.cancels = []func(){cancelGate, cancelUsers}

	s.handleGate(docstore.Read(s.ctx, store, docstore.GatePath(gateID)))

	go s.loop(gateCh, usersCh)
	logger.Debug("session opened")
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id.String()
}

// GateID returns the observed gate.
func (s *Session) GateID() string {
	return s.gateID
}

// Close releases both subscriptions and waits for the loop and any
// in-flight automatic exit. It is safe to call more than once.
func (s *Session) Close() {
	s.closed.Do(func() {
		s.stop()
		for _, cancel := range s.cancels {
			cancel()
		}
		<-s.loopDone
		s.inflight.Wait()
		s.logger.Debug("session closed")
	})
}

// Done is closed once the control loop has exited, either through Close
// or because both feeds ended.
func (s *Session) Done() <-chan struct{} {
	return s.loopDone
}

func (s *Session) loop(gateCh, usersCh <-chan docstore.Snapshot) {
	defer close(s.loopDone)
	for gateCh != nil || usersCh != nil {
		select {
		case <-s.ctx.Done():
			return
		case snap, ok := <-gateCh:
			if !ok {
				gateCh = nil
				continue
			}
			s.handleGate(snap)
		case snap, ok := <-usersCh:
			if !ok {
				usersCh = nil
				continue
			}
			s.handleUsers(snap)
		}
	}
}

func (s *Session) handleGate(snap docstore.Snapshot) {
	if snap.Err != nil {
		s.readFailed("gate", snap.Err)
		return
	}

	s.mu.Lock()
	if err := s.cache.ApplyGate(snap); err != nil {
		s.mu.Unlock()
		s.readFailed("gate", err)
		return
	}
	var notes []notify.Notification
	if g := s.cache.Gate(); g != nil && s.dedup.Observe(g.Alerts) {
		notes = append(notes, s.notification(notify.KindInfo, "Gate alert", g.Alerts))
		s.updateOverridesLocked(g)
	}
	batch, fire := s.evaluateLocked()
	view := s.viewLocked()
	s.mu.Unlock()

	s.deliver(notes, view)
	if fire {
		s.triggerExit(batch)
	}
}

func (s *Session) handleUsers(snap docstore.Snapshot) {
	if snap.Err != nil {
		s.readFailed("users", snap.Err)
		return
	}

	s.mu.Lock()
	if err := s.cache.ApplyUsers(snap); err != nil {
		s.mu.Unlock()
		s.readFailed("users", err)
		return
	}
	batch, fire := s.evaluateLocked()
	view := s.viewLocked()
	s.mu.Unlock()

	s.deliver(nil, view)
	if fire {
		s.triggerExit(batch)
	}
}

// updateOverridesLocked refreshes the pending-override set from a newly
// shown alert. A structured candidate list on the gate wins over parsing.
func (s *Session) updateOverridesLocked(g *model.Gate) {
	if g.OverrideCandidates != nil {
		s.pending.Replace(g.OverrideCandidates)
		return
	}
	ids, err := alerts.SafeParse(s.parser, g.Alerts)
	switch {
	case errors.Is(err, alerts.ErrNoSignature):
		return
	case err != nil:
		s.logger.Warn("ignoring malformed alert", "alert", g.Alerts, "err", err)
		return
	}
	s.pending.Replace(ids)
}

// evaluateLocked re-runs the completion check. Both feeds call it since
// the gate and users streams are not ordered relative to each other.
func (s *Session) evaluateLocked() (string, bool) {
	users := s.cache.Users()
	batch := BatchKey(users)
	return batch, s.guard.shouldFire(AllProcessed(users), batch, s.cache.Status())
}

// triggerExit writes the exit off the loop goroutine so the feeds keep
// flowing. A failed write re-arms the guard for the next snapshot.
func (s *Session) triggerExit(batch string) {
	s.logger.Info("all users processed, exiting gate", "users", batch)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), commandTimeout)
		defer cancel()
		if err := s.issuer.Exit(ctx); err != nil {
			s.mu.Lock()
			s.guard.rollback(batch)
			s.mu.Unlock()
		}
	}()
}

func (s *Session) readFailed(what string, err error) {
	s.logger.Warn("store read failed, keeping last state", "scope", what, "err", err)
	s.notifier.Notify(s.notification(notify.KindError, "Could not load "+what+" data", err.Error()))
}

func (s *Session) notification(kind notify.Kind, title, body string) notify.Notification {
	return notify.Notification{Kind: kind, Title: title, Body: body, GateID: s.gateID, At: s.now()}
}

func (s *Session) deliver(notes []notify.Notification, view View) {
	for _, n := range notes {
		s.notifier.Notify(n)
	}
	s.onChange(view)
}

// View returns a copy of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	v := View{
		SessionID:        s.id.String(),
		GateID:           s.gateID,
		AllProcessed:     AllProcessed(s.cache.Users()),
		PendingOverrides: s.pending.List(),
		LastAlert:        s.dedup.Last(),
	}
	if g := s.cache.Gate(); g != nil {
		gc := *g
		gc.OverrideCandidates = slices.Clone(g.OverrideCandidates)
		v.Gate = &gc
	}
	v.Users = make([]model.User, 0, len(s.cache.Users()))
	for _, u := range s.cache.Users() {
		v.Users = append(v.Users, *u)
	}
	slices.SortFunc(v.Users, func(a, b model.User) int { return cmp.Compare(a.ID, b.ID) })
	return v
}

func (s *Session) status() (model.GateStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Gate() == nil {
		return "", ErrNoGate
	}
	return s.cache.Status(), nil
}

// SetFrontFlap opens or closes the front flap, advancing the lifecycle
// from the cached status.
func (s *Session) SetFrontFlap(ctx context.Context, open bool) error {
	status, err := s.status()
	if err != nil {
		return err
	}
	return s.issuer.SetFrontFlap(ctx, open, status)
}

// SetBackFlap opens or closes the back flap, completing an exit when the
// cached status is exiting.
func (s *Session) SetBackFlap(ctx context.Context, open bool) error {
	status, err := s.status()
	if err != nil {
		return err
	}
	return s.issuer.SetBackFlap(ctx, open, status)
}

// SetTilt requests a tilt mode.
func (s *Session) SetTilt(ctx context.Context, mode model.TiltMode) error {
	return s.issuer.SetTilt(ctx, mode)
}

// OverrideUser approves a user and drops it from the pending-override set.
// Overriding a user that is not pending leaves the set as it is.
func (s *Session) OverrideUser(ctx context.Context, userID string) error {
	if err := s.issuer.OverrideUser(ctx, userID); err != nil {
		return err
	}
	s.mu.Lock()
	removed := s.pending.Remove(userID)
	view := s.viewLocked()
	s.mu.Unlock()
	if removed {
		s.onChange(view)
	}
	return nil
}

// SetUserTilt writes the legacy per-user tilt request.
//
// Deprecated: use SetTilt.
func (s *Session) SetUserTilt(ctx context.Context, userID, direction string) error {
	return s.issuer.SetUserTilt(ctx, userID, direction)
}

// PendingOverrides returns the users awaiting a manual override.
func (s *Session) PendingOverrides() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.List()
}
