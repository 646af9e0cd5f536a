package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownConsentMode is returned when a consent mode string is not recognised.
var ErrUnknownConsentMode = errors.New("unknown consent mode")

// Site is one entry of the input catalog.
// It is immutable for the duration of a run.
type Site struct {
	// URL is the entry URL that the browser navigates to.
	URL string `json:"url" yaml:"url"`

	// Domain is the site's canonical registrable domain (e.g. "example.cz").
	// It is the identity of the site in checkpoints and results.
	Domain string `json:"domain" yaml:"domain"`

	// Category is an optional free-form label (news, e-commerce, ...).
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Rank is the popularity rank in the source list, 0 when unknown.
	Rank int `json:"rank,omitempty" yaml:"rank,omitempty"`
}

// ConsentMode is the behaviour the crawler applies to a consent banner.
type ConsentMode string

const (
	// ConsentIgnore leaves any banner untouched.
	ConsentIgnore ConsentMode = "ignore"
	// ConsentAccept clicks the "accept all" control.
	ConsentAccept ConsentMode = "accept"
	// ConsentReject clicks the "reject all" control.
	ConsentReject ConsentMode = "reject"
)

// AllConsentModes returns every consent mode in canonical order.
func AllConsentModes() []ConsentMode {
	return []ConsentMode{ConsentIgnore, ConsentAccept, ConsentReject}
}

// String returns the mode name.
func (m ConsentMode) String() string {
	return string(m)
}

// Valid reports whether m is one of the known modes.
func (m ConsentMode) Valid() bool {
	switch m {
	case ConsentIgnore, ConsentAccept, ConsentReject:
		return true
	default:
		return false
	}
}

// ParseConsentMode parses a single mode name, case-insensitively.
func ParseConsentMode(s string) (ConsentMode, error) {
	m := ConsentMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownConsentMode, s)
	}
	return m, nil
}

// ParseConsentModes parses a comma separated list such as "ignore,accept".
// Duplicates are dropped while preserving the first occurrence order.
func ParseConsentModes(s string) ([]ConsentMode, error) {
	var modes []ConsentMode
	seen := make(map[ConsentMode]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		m, err := ParseConsentMode(part)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		modes = append(modes, m)
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrUnknownConsentMode)
	}
	return modes, nil
}
