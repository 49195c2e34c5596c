package model

import (
	"encoding/json"
	"strings"
	"testing"
)

// fieldErrors extracts a *ValidationError from err or fails the test.
func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	return ve.Errors
}

// hasFieldError reports whether the error list contains an error for the given field.
func hasFieldError(errs []FieldError, field string) bool {
	for _, fe := range errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// decodeFields mirrors how the HTTP layer decodes request bodies.
func decodeFields(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return m
}

func TestValidateGateFields_Valid(t *testing.T) {
	fields := decodeFields(t, `{
		"status": "entering",
		"front_flap": true,
		"tilt_mode": "low",
		"to_tilt": true,
		"height_sensor": 171,
		"people": false,
		"alerts": "",
		"timestamp": "2026-03-01T08:00:00Z",
		"override_candidates": ["u1", "u2"],
		"firmware": "v2.1"
	}`)
	if err := ValidateGateFields(fields); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateGateFields_ClearTimestamp(t *testing.T) {
	if err := ValidateGateFields(decodeFields(t, `{"timestamp": null}`)); err != nil {
		t.Fatalf("null timestamp should be accepted: %v", err)
	}
}

func TestValidateGateFields_Invalid(t *testing.T) {
	for _, tc := range []struct {
		name  string
		raw   string
		field string
	}{
		{"UnknownStatus", `{"status": "open"}`, FieldStatus},
		{"StatusNotString", `{"status": 3}`, FieldStatus},
		{"UnknownTilt", `{"tilt_mode": "sideways"}`, FieldTiltMode},
		{"FlapNotBool", `{"front_flap": "yes"}`, FieldFrontFlap},
		{"BackFlapNotBool", `{"back_flap": 1}`, FieldBackFlap},
		{"HeightNotNumber", `{"height_sensor": "tall"}`, FieldHeightSensor},
		{"BadTimestamp", `{"timestamp": "yesterday"}`, FieldTimestamp},
		{"CandidatesNotList", `{"override_candidates": "u1,u2"}`, FieldOverrideCandidates},
		{"CandidateBlank", `{"override_candidates": ["u1", " "]}`, FieldOverrideCandidates},
	} {
		t.Run(tc.name, func(t *testing.T) {
			errs := fieldErrors(t, ValidateGateFields(decodeFields(t, tc.raw)))
			if !hasFieldError(errs, tc.field) {
				t.Errorf("expected error on field %q, got %v", tc.field, errs)
			}
		})
	}
}

func TestValidateUserFields(t *testing.T) {
	valid := decodeFields(t, `{
		"name": "Ada Lovelace",
		"passport_no": "X1234567",
		"dob": "1815-12-10",
		"age": 36,
		"scan_status": "",
		"override": false,
		"override_timestamp": "2026-03-01T08:05:00Z",
		"passport_image": "scans/u1/passport.jpg"
	}`)
	if err := ValidateUserFields(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, tc := range []struct {
		raw   string
		field string
	}{
		{`{"age": -1}`, FieldAge},
		{`{"age": 3.5}`, FieldAge},
		{`{"override": "true"}`, FieldOverride},
		{`{"scan_status": 1}`, FieldScanStatus},
		{`{"override_timestamp": 12}`, FieldOverrideTimestamp},
	} {
		errs := fieldErrors(t, ValidateUserFields(decodeFields(t, tc.raw)))
		if !hasFieldError(errs, tc.field) {
			t.Errorf("%s: expected error on field %q, got %v", tc.raw, tc.field, errs)
		}
	}
}

func TestValidateUserFields_NullClearsOptionalFields(t *testing.T) {
	fields := decodeFields(t, `{"age": null, "name": null, "override_timestamp": null, "passport_image": null}`)
	if err := ValidateUserFields(fields); err != nil {
		t.Fatalf("null optional fields should be accepted: %v", err)
	}
}

func TestValidationError_Message(t *testing.T) {
	err := ValidateGateFields(map[string]any{"status": "bogus", "to_tilt": "no"})
	msg := err.Error()
	if !strings.HasPrefix(msg, "validation failed: ") {
		t.Errorf("unexpected message prefix: %q", msg)
	}
	if !strings.Contains(msg, "status") || !strings.Contains(msg, "to_tilt") {
		t.Errorf("message should name both fields: %q", msg)
	}
}
