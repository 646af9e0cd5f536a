package model

// TrackerCategory groups tracker entities by purpose.
type TrackerCategory string

const (
	CategoryAdvertising TrackerCategory = "advertising"
	CategoryAnalytics   TrackerCategory = "analytics"
	CategorySocial      TrackerCategory = "social"
	CategoryCDN         TrackerCategory = "cdn"
	CategoryConsent     TrackerCategory = "consent"
	CategoryMonitoring  TrackerCategory = "monitoring"
	CategoryMarketing   TrackerCategory = "marketing"
	CategoryOther       TrackerCategory = "other"
)

// TrackerEntity is an organisation that operates tracking infrastructure.
type TrackerEntity struct {
	// Name is the display name, e.g. "Google".
	Name string `json:"name" yaml:"name"`

	// Parent is the owning company when it differs from Name.
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`

	// Country is an ISO country code of the operator, if known.
	Country string `json:"country,omitempty" yaml:"country,omitempty"`

	// Category is the primary purpose of the entity's domains.
	Category TrackerCategory `json:"category" yaml:"category"`
}
