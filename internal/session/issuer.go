package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/gatekeep/internal/alerts"
	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/model"
	"github.com/alfredjeanlab/gatekeep/internal/notify"
)

var (
	// ErrCancelled is returned when the operator declines a confirmation.
	// Nothing was written.
	ErrCancelled = errors.New("command cancelled by operator")
	// ErrNoGate is returned for commands that need gate state while no
	// gate document is available.
	ErrNoGate = errors.New("gate information not available")
)

// Confirmer asks the operator a yes/no question before a destructive command.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

type declineAll struct{}

func (declineAll) Confirm(string) (bool, error) { return false, nil }

// Options configures an Issuer or a Session. Zero values get defaults.
type Options struct {
	// OnChange receives a View after every applied snapshot and after
	// OverrideUser shrinks the pending set. It is called from the control
	// loop and from OverrideUser's caller, and must not block.
	OnChange func(View)
	// Parser extracts override candidates from alerts.
	Parser alerts.Parser
	// Notifier receives every operator notification.
	Notifier notify.Notifier
	// Confirmer gates flap and override commands. The default declines.
	Confirmer Confirmer
	Logger    *slog.Logger
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.OnChange == nil {
		o.OnChange = func(View) {}
	}
	if o.Parser == nil {
		o.Parser = alerts.BracketParser{}
	}
	if o.Notifier == nil {
		o.Notifier = notify.Discard
	}
	if o.Confirmer == nil {
		o.Confirmer = declineAll{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Issuer turns operator intents into single-write mutations of the gate
// and user documents. It holds no gate state; callers pass the status
// their decision is based on.
type Issuer struct {
	gateID   string
	store    docstore.Writer
	confirm  Confirmer
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewIssuer creates an Issuer for one gate.
func NewIssuer(gateID string, w docstore.Writer, opts Options) *Issuer {
	opts = opts.withDefaults()
	return &Issuer{
		gateID:   gateID,
		store:    w,
		confirm:  opts.Confirmer,
		notifier: opts.Notifier,
		logger:   opts.Logger.With("component", "issuer", "gate_id", gateID),
		now:      opts.Now,
	}
}

// SetFrontFlap opens or closes the front flap after confirmation.
func (i *Issuer) SetFrontFlap(ctx context.Context, open bool, status model.GateStatus) error {
	return i.flap(ctx, "front", open, FrontFlapPatch(open, status))
}

// SetBackFlap opens or closes the back flap after confirmation.
func (i *Issuer) SetBackFlap(ctx context.Context, open bool, status model.GateStatus) error {
	return i.flap(ctx, "back", open, BackFlapPatch(open, status))
}

func (i *Issuer) flap(ctx context.Context, which string, open bool, patch map[string]any) error {
	verb := "Close"
	if open {
		verb = "Open"
	}
	title := fmt.Sprintf("%s %s flap", verb, which)
	if err := i.confirmed(title + "?"); err != nil {
		return err
	}
	return i.write(ctx, docstore.GatePath(i.gateID), patch, title)
}

// SetTilt requests a tilt mode. Tilting is not destructive and needs no
// confirmation.
func (i *Issuer) SetTilt(ctx context.Context, mode model.TiltMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("invalid tilt mode %q", mode)
	}
	return i.write(ctx, docstore.GatePath(i.gateID), TiltPatch(mode), "Tilt "+mode.String())
}

// OverrideUser approves userID manually after confirmation. Approving an
// already approved user writes the same values again.
func (i *Issuer) OverrideUser(ctx context.Context, userID string) error {
	if !model.ValidID(userID) {
		return fmt.Errorf("invalid user id %q", userID)
	}
	title := "Override " + userID
	if err := i.confirmed(fmt.Sprintf("Manually approve user %s?", userID)); err != nil {
		return err
	}
	return i.write(ctx, docstore.UserPath(i.gateID, userID), OverridePatch(i.now()), title)
}

// SetUserTilt writes the legacy per-user tilt request.
//
// Deprecated: use SetTilt; actuators read the gate-level tilt_mode.
func (i *Issuer) SetUserTilt(ctx context.Context, userID, direction string) error {
	if !model.ValidID(userID) {
		return fmt.Errorf("invalid user id %q", userID)
	}
	patch := map[string]any{model.FieldTilt: direction}
	return i.write(ctx, docstore.UserPath(i.gateID, userID), patch, fmt.Sprintf("Tilt %s for %s", direction, userID))
}

// Exit commands the automatic transition to exiting.
func (i *Issuer) Exit(ctx context.Context) error {
	return i.write(ctx, docstore.GatePath(i.gateID), ExitPatch(), "Exit gate")
}

func (i *Issuer) confirmed(question string) error {
	ok, err := i.confirm.Confirm(question)
	if err != nil {
		return fmt.Errorf("confirmation: %w", err)
	}
	if !ok {
		return ErrCancelled
	}
	return nil
}

// write performs one update and reports the outcome to the operator.
func (i *Issuer) write(ctx context.Context, path string, patch map[string]any, title string) error {
	if _, err := i.store.Update(ctx, path, patch); err != nil {
		i.logger.Error("command failed", "command", title, "path", path, "err", err)
		i.notify(notify.KindError, title+" failed", err.Error())
		return fmt.Errorf("%s: %w", title, err)
	}
	i.logger.Info("command issued", "command", title, "path", path)
	i.notify(notify.KindSuccess, title, "")
	return nil
}

func (i *Issuer) notify(kind notify.Kind, title, body string) {
	i.notifier.Notify(notify.Notification{
		Kind:   kind,
		Title:  title,
		Body:   body,
		GateID: i.gateID,
		At:     i.now(),
	})
}
