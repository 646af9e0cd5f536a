package model

import "time"

// SessionLifetimeDays is the lifetime recorded for cookies that expire with the
// browser session. Expired cookies are clamped to the same value.
const SessionLifetimeDays = 0.0

// ResourceClass is what a request is loaded for. Page weight is broken down
// by class.
type ResourceClass string

const (
	ResourceFirstParty ResourceClass = "first-party"
	ResourceCDN        ResourceClass = "cdn"
	ResourceTracker    ResourceClass = "tracker"
	ResourceAd         ResourceClass = "ad"
	ResourceFunctional ResourceClass = "functional"
	ResourceUnknown    ResourceClass = "unknown"
)

// ClassifiedRequest is one network request observed during a session.
type ClassifiedRequest struct {
	URL          string `json:"url"`
	Host         string `json:"host"`
	Domain       string `json:"domain"`
	Method       string `json:"method"`
	ResourceType string `json:"resource_type"`

	// ThirdParty is true when Domain differs from the site's registrable domain.
	ThirdParty bool `json:"third_party"`

	// Entity is the attributed tracker operator; nil when unknown.
	Entity *TrackerEntity `json:"entity,omitempty"`

	Class ResourceClass `json:"class"`

	StatusCode int   `json:"status_code,omitempty"`
	SizeBytes  int64 `json:"size_bytes,omitempty"`

	// Failed is set when the request never produced a response.
	Failed bool `json:"failed,omitempty"`

	// Duration is the time between request start and completion.
	Duration time.Duration `json:"duration,omitempty"`

	// SinceStart is the request start relative to the task start.
	SinceStart time.Duration `json:"since_start"`

	// SinceConsent is the request start relative to the consent click.
	// Negative for requests issued before the click; nil when no click happened.
	SinceConsent *time.Duration `json:"since_consent,omitempty"`
}

// IsTracker reports whether the request was attributed to a tracker entity.
func (r ClassifiedRequest) IsTracker() bool {
	return r.Entity != nil
}

// ClassifiedCookie is one cookie present at the end of a session.
type ClassifiedCookie struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Path   string `json:"path"`

	// ValueHash is a hex SHA3-256 digest of the value; raw values are never kept.
	ValueHash string `json:"value_hash"`

	// Expires is the absolute expiry; zero for session cookies.
	Expires time.Time `json:"expires,omitzero"`

	// LifetimeDays is (expiry - observation) in days, or SessionLifetimeDays.
	LifetimeDays float64 `json:"lifetime_days"`

	IsSession bool   `json:"is_session"`
	Secure    bool   `json:"secure"`
	HTTPOnly  bool   `json:"http_only"`
	SameSite  string `json:"same_site,omitempty"`

	ThirdParty bool           `json:"third_party"`
	Tracking   bool           `json:"tracking"`
	Entity     *TrackerEntity `json:"entity,omitempty"`

	// SetBeforeConsent is true when the cookie already existed before the consent click.
	SetBeforeConsent bool `json:"set_before_consent"`
}

// StorageEntry is one localStorage key present at the end of a session.
type StorageEntry struct {
	Origin    string `json:"origin"`
	Key       string `json:"key"`
	ValueSize int    `json:"value_size"`
	Tracking  bool   `json:"tracking"`
}
