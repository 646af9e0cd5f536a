package model

// Strategy names the consent detection technique that produced a BannerMatch.
type Strategy string

const (
	StrategyNone         Strategy = "none"
	StrategyKnownCMP     Strategy = "known-cmp"
	StrategyIframeCMP    Strategy = "iframe-cmp"
	StrategyCSSHeuristic Strategy = "css-heuristic"
	StrategyTextMatch    Strategy = "text-match"
	StrategyIframeText   Strategy = "iframe-text"
	StrategyShadowDOM    Strategy = "shadow-dom"
	StrategyNestedIframe Strategy = "nested-iframe"
	StrategyConsentAPI   Strategy = "consent-api"
)

// BannerMatch is the outcome of consent handling for one session.
type BannerMatch struct {
	// Strategy that detected the banner (or acted on it).
	Strategy Strategy `json:"strategy"`

	// CMP is the consent-management platform name when a known definition matched.
	CMP string `json:"cmp,omitempty"`

	// ButtonText is the label of the clicked control.
	ButtonText string `json:"button_text,omitempty"`

	// Detected reports whether any banner was found.
	Detected bool `json:"detected"`

	// ActionTaken reports whether a mode-appropriate control was clicked.
	ActionTaken bool `json:"action_taken"`

	// Revealed reports whether the action required a preceding reveal click
	// (e.g. "Settings" before "Reject all").
	Revealed bool `json:"revealed,omitempty"`
}

// NoBanner is the match returned when nothing was detected.
func NoBanner() BannerMatch {
	return BannerMatch{Strategy: StrategyNone}
}
