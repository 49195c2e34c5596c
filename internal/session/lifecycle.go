package session

import (
	"time"

	"github.com/alfredjeanlab/gatekeep/internal/model"
)

// exitGuard makes the automatic exit fire at most once per completed batch
// of users. It is armed again when the batch stops being complete, when a
// different batch completes, or when the exit write fails.
type exitGuard struct {
	fired bool
	batch string
}

// shouldFire records and reports whether an exit must be commanded now.
// The exit is only commanded where the transition table allows
// entered -> exiting; a completed batch seen earlier in the lifecycle stays
// armed until the gate reaches entered.
func (g *exitGuard) shouldFire(allProcessed bool, batch string, status model.GateStatus) bool {
	if !allProcessed {
		g.fired, g.batch = false, ""
		return false
	}
	if g.fired && g.batch == batch {
		return false
	}
	if !status.CanTransition(model.StatusExiting) {
		return false
	}
	g.fired, g.batch = true, batch
	return true
}

// rollback re-arms the guard if it still holds batch. A newer batch that
// fired in the meantime is left alone.
func (g *exitGuard) rollback(batch string) {
	if g.fired && g.batch == batch {
		g.fired, g.batch = false, ""
	}
}

// ExitPatch moves the gate to exiting, opens the back flap and ends the
// session timer.
func ExitPatch() map[string]any {
	return map[string]any{
		model.FieldStatus:    model.StatusExiting,
		model.FieldBackFlap:  true,
		model.FieldTimestamp: nil,
	}
}

// FrontFlapPatch sets the front flap. Opening an idle gate starts entry;
// closing it during entry completes entry.
func FrontFlapPatch(open bool, status model.GateStatus) map[string]any {
	patch := map[string]any{model.FieldFrontFlap: open}
	switch {
	case open && status.CanTransition(model.StatusEntering):
		patch[model.FieldStatus] = model.StatusEntering
	case !open && status.CanTransition(model.StatusEntered):
		patch[model.FieldStatus] = model.StatusEntered
	}
	return patch
}

// BackFlapPatch sets the back flap. Closing it while exiting completes the
// exit.
func BackFlapPatch(open bool, status model.GateStatus) map[string]any {
	patch := map[string]any{model.FieldBackFlap: open}
	if !open && status.CanTransition(model.StatusExited) {
		patch[model.FieldStatus] = model.StatusExited
	}
	return patch
}

// TiltPatch requests a tilt. to_tilt is a one-shot flag cleared by the
// actuator once it has moved; it is never cleared here.
func TiltPatch(mode model.TiltMode) map[string]any {
	return map[string]any{
		model.FieldTiltMode: mode,
		model.FieldToTilt:   true,
	}
}

// OverridePatch approves a user manually.
func OverridePatch(now time.Time) map[string]any {
	return map[string]any{
		model.FieldScanStatus:        model.ScanApproved,
		model.FieldOverride:          true,
		model.FieldOverrideTimestamp: now.UTC(),
	}
}
