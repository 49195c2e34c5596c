package model

import (
	"fmt"
	"time"
)

// GateStatus is the lifecycle state of a gate session.
type GateStatus string

const (
	StatusIdle     GateStatus = "idle"
	StatusEntering GateStatus = "entering"
	StatusEntered  GateStatus = "entered"
	StatusExiting  GateStatus = "exiting"
	StatusExited   GateStatus = "exited"
)

// String returns the string representation of the status.
func (s GateStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s GateStatus) IsValid() bool {
	switch s {
	case StatusIdle, StatusEntering, StatusEntered, StatusExiting, StatusExited:
		return true
	}
	return false
}

// next maps each status to the only status it may advance to.
var next = map[GateStatus]GateStatus{
	StatusIdle:     StatusEntering,
	StatusEntering: StatusEntered,
	StatusEntered:  StatusExiting,
	StatusExiting:  StatusExited,
}

// CanTransition reports whether a gate may move from s to to. Status only
// advances one step along idle -> entering -> entered -> exiting -> exited,
// or resets to idle from anywhere. An empty (never written) status is
// treated as idle.
func (s GateStatus) CanTransition(to GateStatus) bool {
	if to == StatusIdle {
		return true
	}
	from := s
	if from == "" {
		from = StatusIdle
	}
	return next[from] == to
}

// TiltMode is the gate-level tilt actuator setting.
type TiltMode string

const (
	TiltLow      TiltMode = "low"
	TiltOriginal TiltMode = "original"
	TiltHigh     TiltMode = "high"
)

// String returns the string representation of the tilt mode.
func (m TiltMode) String() string {
	return string(m)
}

// IsValid checks whether the tilt mode is a known value.
func (m TiltMode) IsValid() bool {
	switch m {
	case TiltLow, TiltOriginal, TiltHigh:
		return true
	}
	return false
}

// ParseTiltMode converts a string to a TiltMode, accepting the operator
// aliases "down" and "up".
func ParseTiltMode(s string) (TiltMode, error) {
	switch s {
	case "down":
		return TiltLow, nil
	case "up":
		return TiltHigh, nil
	}
	m := TiltMode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid tilt mode %q (must be low, original or high)", s)
	}
	return m, nil
}

// Gate document fields as stored under gates/{gateId}.
const (
	FieldStatus             = "status"
	FieldFrontFlap          = "front_flap"
	FieldBackFlap           = "back_flap"
	FieldTiltMode           = "tilt_mode"
	FieldToTilt             = "to_tilt"
	FieldHeightSensor       = "height_sensor"
	FieldPeople             = "people"
	FieldAlerts             = "alerts"
	FieldTimestamp          = "timestamp"
	FieldOverrideCandidates = "override_candidates"
)

// Gate is the document for one physical access gate.
type Gate struct {
	ID           string     `json:"id,omitempty"`
	Status       GateStatus `json:"status,omitempty"`
	FrontFlap    bool       `json:"front_flap"`
	BackFlap     bool       `json:"back_flap"`
	TiltMode     TiltMode   `json:"tilt_mode,omitempty"`
	ToTilt       bool       `json:"to_tilt"`
	HeightSensor *float64   `json:"height_sensor,omitempty"`
	People       *bool      `json:"people,omitempty"`
	Alerts       string     `json:"alerts,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"` // session start; nil when no session is running

	// OverrideCandidates is the structured list of users that need a manual
	// override, written by producers that support it. Alerts stays display-only.
	OverrideCandidates []string `json:"override_candidates,omitempty"`
}

// MaxHeight returns the height sensor reading, or 0 when none was reported.
func (g *Gate) MaxHeight() float64 {
	if g == nil || g.HeightSensor == nil {
		return 0
	}
	return *g.HeightSensor
}
