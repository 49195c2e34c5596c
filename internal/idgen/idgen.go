// Package idgen generates identifiers for user documents a scanner creates
// without choosing one.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/alfredjeanlab/gatekeep/internal/model"
)

// UserPrefix marks server-generated user IDs.
const UserPrefix = "u-"

const (
	// Lowercase only, so IDs are safe in NATS subjects and case-folding
	// object stores.
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	size     = 12
)

// UserID returns a new user identifier.
func UserID() (string, error) {
	return WithPrefix(UserPrefix)
}

// WithPrefix returns prefix followed by random characters. The result is
// always a valid document identifier; a prefix that would break that is
// an error.
func WithPrefix(prefix string) (string, error) {
	suffix, err := nanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	id := prefix + suffix
	if !model.ValidID(id) {
		return "", fmt.Errorf("idgen: prefix %q does not form a valid identifier", prefix)
	}
	return id, nil
}
