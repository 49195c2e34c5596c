package model

import "time"

// ScanApproved is the scan_status value written when an operator manually
// approves a user.
const ScanApproved = "Approved"

// User document fields as stored under gates/{gateId}/users/{userId}.
const (
	FieldName              = "name"
	FieldPassportNo        = "passport_no"
	FieldDOB               = "dob"
	FieldAge               = "age"
	FieldScanStatus        = "scan_status"
	FieldOverride          = "override"
	FieldOverrideTimestamp = "override_timestamp"
	FieldTilt              = "tilt"
	FieldPassportImage     = "passport_image"
	FieldCurrentImage      = "current_image"
	FieldLeftIris          = "left_iris"
	FieldRightIris         = "right_iris"
)

// ImageKind names one of the stored images of a user.
type ImageKind string

const (
	ImagePassport  ImageKind = "passport"
	ImageCurrent   ImageKind = "current"
	ImageLeftIris  ImageKind = "left_iris"
	ImageRightIris ImageKind = "right_iris"
)

// ImageKinds lists image kinds in display order.
var ImageKinds = []ImageKind{ImagePassport, ImageCurrent, ImageLeftIris, ImageRightIris}

// User is one traveller scanned at a gate during the current session.
type User struct {
	ID                string     `json:"id,omitempty"`
	Name              string     `json:"name,omitempty"`
	PassportNo        string     `json:"passport_no,omitempty"`
	DOB               string     `json:"dob,omitempty"`
	Age               int        `json:"age,omitempty"`
	ScanStatus        string     `json:"scan_status,omitempty"`
	Override          bool       `json:"override,omitempty"`
	OverrideTimestamp *time.Time `json:"override_timestamp,omitempty"`

	// Tilt is the legacy per-user tilt request, superseded by Gate.TiltMode.
	Tilt string `json:"tilt,omitempty"`

	PassportImage string `json:"passport_image,omitempty"`
	CurrentImage  string `json:"current_image,omitempty"`
	LeftIris      string `json:"left_iris,omitempty"`
	RightIris     string `json:"right_iris,omitempty"`
}

// Processed reports whether the user has a scan outcome. An empty
// scan_status means the scan is still pending.
func (u *User) Processed() bool {
	return u != nil && u.ScanStatus != ""
}

// ImagePath returns the stored blob path for the given image kind.
func (u *User) ImagePath(kind ImageKind) string {
	switch kind {
	case ImagePassport:
		return u.PassportImage
	case ImageCurrent:
		return u.CurrentImage
	case ImageLeftIris:
		return u.LeftIris
	case ImageRightIris:
		return u.RightIris
	}
	return ""
}
