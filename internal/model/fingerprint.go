package model

import "time"

// FingerprintAPI is a family of browser APIs used for fingerprinting.
type FingerprintAPI string

const (
	FingerprintCanvas    FingerprintAPI = "canvas"
	FingerprintWebGL     FingerprintAPI = "webgl"
	FingerprintAudio     FingerprintAPI = "audio"
	FingerprintNavigator FingerprintAPI = "navigator"
	FingerprintFont      FingerprintAPI = "font"
	FingerprintStorage   FingerprintAPI = "storage"
)

// Active reports whether the API family renders or measures hardware
// output. Reading navigator properties alone is passive.
func (a FingerprintAPI) Active() bool {
	switch a {
	case FingerprintCanvas, FingerprintWebGL, FingerprintAudio:
		return true
	default:
		return false
	}
}

// FingerprintSeverity summarizes the fingerprinting of one session.
type FingerprintSeverity string

const (
	// SeverityNone means no monitored API was called.
	SeverityNone FingerprintSeverity = "none"
	// SeverityPassive means only passive APIs were read.
	SeverityPassive FingerprintSeverity = "passive"
	// SeverityActive means one active API family was used.
	SeverityActive FingerprintSeverity = "active"
	// SeverityAggressive means several active API families were combined.
	SeverityAggressive FingerprintSeverity = "aggressive"
)

// FingerprintEvent is one monitored API call.
type FingerprintEvent struct {
	API    FingerprintAPI `json:"api"`
	Method string         `json:"method"`
	Detail string         `json:"detail,omitempty"`

	// ScriptDomain is the registrable domain of the calling script, taken
	// from the call stack; empty for inline scripts.
	ScriptDomain string `json:"script_domain,omitempty"`

	// Entity is the tracker operator of ScriptDomain, if known.
	Entity *TrackerEntity `json:"entity,omitempty"`

	At time.Time `json:"at,omitzero"`
}

// Severity rates events: several active API families are aggressive, one is
// active, passive reads only are passive.
func Severity(events []FingerprintEvent) FingerprintSeverity {
	if len(events) == 0 {
		return SeverityNone
	}
	active := make(map[FingerprintAPI]bool)
	for _, e := range events {
		if e.API.Active() {
			active[e.API] = true
		}
	}
	switch len(active) {
	case 0:
		return SeverityPassive
	case 1:
		return SeverityActive
	default:
		return SeverityAggressive
	}
}

// FingerprintAPIs returns the distinct API families of events in first-seen order.
func FingerprintAPIs(events []FingerprintEvent) []FingerprintAPI {
	seen := make(map[FingerprintAPI]bool)
	var out []FingerprintAPI
	for _, e := range events {
		if !seen[e.API] {
			seen[e.API] = true
			out = append(out, e.API)
		}
	}
	return out
}
