// Package alerts deduplicates the free-text alert field of a gate document
// and extracts the users that need a manual override from it.
package alerts

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNoSignature is returned for alerts that do not report a manual
	// authentication failure.
	ErrNoSignature = errors.New("alert does not request manual authentication")
	// ErrMalformed is returned when a manual authentication alert does not
	// carry the expected user list.
	ErrMalformed = errors.New("malformed manual authentication alert")
)

// Parser extracts override candidates from an alert string. It is an
// interface so producers that switch to a structured field, or change the
// text format, only need a new implementation.
type Parser interface {
	OverrideCandidates(alert string) ([]string, error)
}

// DefaultSignature marks alerts that list users failing automated scans.
const DefaultSignature = "manual authentication"

var bracketGroup = regexp.MustCompile(`\[([^\[\]]*)\]`)

// BracketParser reads alerts shaped like
//
//	[error] manual authentication required [u1, u2, u3]
//
// The second bracketed group holds a comma-separated list of user IDs.
type BracketParser struct {
	// Signature is matched case-insensitively. Empty means DefaultSignature.
	Signature string
}

// OverrideCandidates implements Parser. Empty entries are dropped; an
// empty list in a well-formed alert is valid and clears the set.
func (p BracketParser) OverrideCandidates(alert string) ([]string, error) {
	sig := p.Signature
	if sig == "" {
		sig = DefaultSignature
	}
	if !strings.Contains(strings.ToLower(alert), strings.ToLower(sig)) {
		return nil, ErrNoSignature
	}
	groups := bracketGroup.FindAllStringSubmatch(alert, -1)
	if len(groups) < 2 {
		return nil, fmt.Errorf("%w: found %d bracket groups", ErrMalformed, len(groups))
	}
	ids := []string{}
	for _, part := range strings.Split(groups[1][1], ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// SafeParse calls p and converts a panic into ErrMalformed, so a faulty
// parser cannot take down the session loop.
func SafeParse(p Parser, alert string) (ids []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			ids, err = nil, fmt.Errorf("%w: parser panic: %v", ErrMalformed, r)
		}
	}()
	return p.OverrideCandidates(alert)
}
