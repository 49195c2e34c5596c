package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether s can be used as a gate or user identifier.
// Identifiers double as NATS subject tokens, so dots and wildcards are out.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}

// ValidateGateFields checks a partial gate document as decoded from JSON.
// Unknown fields are accepted; hardware adapters may carry extra telemetry.
func ValidateGateFields(fields map[string]any) error {
	var ve ValidationError
	for k, v := range fields {
		switch k {
		case FieldStatus:
			s, ok := v.(string)
			if !ok || !GateStatus(s).IsValid() {
				ve.add(k, "invalid value %v", v)
			}
		case FieldTiltMode:
			s, ok := v.(string)
			if !ok || !TiltMode(s).IsValid() {
				ve.add(k, "invalid value %v", v)
			}
		case FieldFrontFlap, FieldBackFlap, FieldToTilt, FieldPeople:
			if _, ok := v.(bool); !ok {
				ve.add(k, "must be a boolean")
			}
		case FieldHeightSensor:
			if _, ok := v.(float64); !ok && v != nil {
				ve.add(k, "must be a number")
			}
		case FieldAlerts:
			if _, ok := v.(string); !ok && v != nil {
				ve.add(k, "must be a string")
			}
		case FieldTimestamp:
			checkTime(&ve, k, v)
		case FieldOverrideCandidates:
			checkIDList(&ve, k, v)
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateUserFields checks a partial user document as decoded from JSON.
func ValidateUserFields(fields map[string]any) error {
	var ve ValidationError
	for k, v := range fields {
		switch k {
		case FieldName, FieldPassportNo, FieldDOB, FieldScanStatus, FieldTilt,
			FieldPassportImage, FieldCurrentImage, FieldLeftIris, FieldRightIris:
			if _, ok := v.(string); !ok && v != nil {
				ve.add(k, "must be a string")
			}
		case FieldAge:
			if v == nil {
				continue
			}
			n, ok := v.(float64)
			if !ok || n < 0 || n != float64(int(n)) {
				ve.add(k, "must be a non-negative integer")
			}
		case FieldOverride:
			if _, ok := v.(bool); !ok {
				ve.add(k, "must be a boolean")
			}
		case FieldOverrideTimestamp:
			checkTime(&ve, k, v)
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func checkTime(ve *ValidationError, field string, v any) {
	if v == nil {
		return
	}
	s, ok := v.(string)
	if !ok {
		ve.add(field, "must be an RFC 3339 timestamp")
		return
	}
	if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
		ve.add(field, "must be an RFC 3339 timestamp")
	}
}

func checkIDList(ve *ValidationError, field string, v any) {
	if v == nil {
		return
	}
	list, ok := v.([]any)
	if !ok {
		ve.add(field, "must be a list of identifiers")
		return
	}
	for _, item := range list {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			ve.add(field, "contains an invalid identifier %v", item)
			return
		}
	}
}
