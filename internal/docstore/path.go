package docstore

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/gatekeep/internal/events"
	"github.com/alfredjeanlab/gatekeep/internal/model"
)

// Kind identifies the shape of a path.
type Kind int

const (
	KindGates Kind = iota + 1 // gates
	KindGate                  // gates/{gateId}
	KindUsers                 // gates/{gateId}/users
	KindUser                  // gates/{gateId}/users/{userId}
)

// GatesPath is the collection of every gate document.
const GatesPath = "gates"

// GatePath returns the path of a gate document.
func GatePath(gateID string) string {
	return GatesPath + "/" + gateID
}

// UsersPath returns the path of a gate's users collection.
func UsersPath(gateID string) string {
	return GatePath(gateID) + "/users"
}

// UserPath returns the path of one user document.
func UserPath(gateID, userID string) string {
	return UsersPath(gateID) + "/" + userID
}

// Path is a parsed document or collection path.
type Path struct {
	Kind   Kind
	GateID string
	UserID string
}

// ParsePath validates s and splits it into its identifiers.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, "/")
	if parts[0] != GatesPath {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	var p Path
	switch len(parts) {
	case 1:
		return Path{Kind: KindGates}, nil
	case 2:
		p = Path{Kind: KindGate, GateID: parts[1]}
	case 3:
		if parts[2] != "users" {
			return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
		}
		p = Path{Kind: KindUsers, GateID: parts[1]}
	case 4:
		if parts[2] != "users" || !model.ValidID(parts[3]) {
			return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
		}
		p = Path{Kind: KindUser, GateID: parts[1], UserID: parts[3]}
	default:
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	if !model.ValidID(p.GateID) {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	return p, nil
}

// String returns the canonical path.
func (p Path) String() string {
	switch p.Kind {
	case KindGate:
		return GatePath(p.GateID)
	case KindUsers:
		return UsersPath(p.GateID)
	case KindUser:
		return UserPath(p.GateID, p.UserID)
	}
	return GatesPath
}

// IsCollection reports whether p names a collection.
func (p Path) IsCollection() bool {
	return p.Kind == KindGates || p.Kind == KindUsers
}

// Parent returns the collection that contains a document path, or "" for
// collections.
func (p Path) Parent() string {
	switch p.Kind {
	case KindGate:
		return GatesPath
	case KindUser:
		return UsersPath(p.GateID)
	}
	return ""
}

// Topic returns the change-feed subject for p. A write to a user document
// is announced as a snapshot of its whole users collection.
func (p Path) Topic() string {
	switch p.Kind {
	case KindGate:
		return events.GateTopic(p.GateID)
	case KindUsers, KindUser:
		return events.UsersTopic(p.GateID)
	}
	return events.TopicAllGates
}
