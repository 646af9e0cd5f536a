package model

import "time"

// SessionResult is everything one CrawlTask produced.
// Exactly one terminal result is persisted per task: intermediate failed
// attempts are discarded once a retry is scheduled.
type SessionResult struct {
	// ID is assigned by the store on commit.
	ID int64 `json:"id,omitempty"`

	// RunID identifies the orchestrator run that produced the result.
	RunID string `json:"run_id"`

	Site    Site        `json:"site"`
	Mode    ConsentMode `json:"mode"`
	Attempt int         `json:"attempt"`
	Status  Status      `json:"status"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	FinalURL  string        `json:"final_url,omitempty"`
	PageTitle string        `json:"page_title,omitempty"`
	LoadTime  time.Duration `json:"load_time,omitempty"`

	Banner BannerMatch `json:"banner"`

	// ConsentAt is the moment the consent control was clicked; zero if never.
	ConsentAt time.Time `json:"consent_at,omitzero"`

	Requests []ClassifiedRequest `json:"requests,omitempty"`
	Cookies  []ClassifiedCookie  `json:"cookies,omitempty"`
	Storage  []StorageEntry      `json:"storage,omitempty"`

	// Fingerprinting lists calls to fingerprinting-relevant browser APIs.
	Fingerprinting []FingerprintEvent `json:"fingerprinting,omitempty"`

	ScreenshotPath string `json:"screenshot_path,omitempty"`

	// Err is the failure cause for non-success results.
	Err error `json:"-"`

	// ErrorMessage is the string form of Err, kept for persistence.
	ErrorMessage string `json:"error,omitempty"`
}

// NewSessionResult creates an empty result for task.
func NewSessionResult(runID string, task *CrawlTask) *SessionResult {
	return &SessionResult{
		RunID:   runID,
		Site:    task.Site,
		Mode:    task.Mode,
		Attempt: task.Attempt,
		Banner:  NoBanner(),
	}
}

// Key returns the checkpoint key for the result.
func (r *SessionResult) Key() TaskKey {
	return TaskKey{Domain: r.Site.Domain, Mode: r.Mode}
}

// Fail records err with status s.
func (r *SessionResult) Fail(s Status, err error) {
	r.Status = s
	r.Err = err
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// Totals are aggregate counters derived from a SessionResult.
// Byte counts are response body sizes; TrackerBytes covers requests
// attributed to a tracker entity.
type Totals struct {
	Requests           int   `json:"requests"`
	ThirdPartyRequests int   `json:"third_party_requests"`
	TrackerRequests    int   `json:"tracker_requests"`
	Bytes              int64 `json:"bytes"`
	ThirdPartyBytes    int64 `json:"third_party_bytes"`
	TrackerBytes       int64 `json:"tracker_bytes"`
	Cookies            int   `json:"cookies"`
	ThirdPartyCookies  int   `json:"third_party_cookies"`
	TrackingCookies    int   `json:"tracking_cookies"`
	StorageEntries     int   `json:"storage_entries"`
	FingerprintEvents  int   `json:"fingerprint_events"`
}

// Totals computes aggregate counters over the captured observations.
func (r *SessionResult) Totals() Totals {
	t := Totals{
		Requests:          len(r.Requests),
		Cookies:           len(r.Cookies),
		StorageEntries:    len(r.Storage),
		FingerprintEvents: len(r.Fingerprinting),
	}
	for _, req := range r.Requests {
		t.Bytes += req.SizeBytes
		if req.ThirdParty {
			t.ThirdPartyRequests++
			t.ThirdPartyBytes += req.SizeBytes
		}
		if req.IsTracker() {
			t.TrackerRequests++
			t.TrackerBytes += req.SizeBytes
		}
	}
	for _, c := range r.Cookies {
		if c.ThirdParty {
			t.ThirdPartyCookies++
		}
		if c.Tracking {
			t.TrackingCookies++
		}
	}
	return t
}

// ResourceWeight is the number of response bytes per ResourceClass.
type ResourceWeight struct {
	FirstParty int64 `json:"first_party"`
	CDN        int64 `json:"cdn"`
	Tracker    int64 `json:"tracker"`
	Ad         int64 `json:"ad"`
	Functional int64 `json:"functional"`
	Unknown    int64 `json:"unknown"`
}

// Total returns the sum over all classes.
func (w ResourceWeight) Total() int64 {
	return w.FirstParty + w.CDN + w.Tracker + w.Ad + w.Functional + w.Unknown
}

// Add adds n bytes to class c. Unclassified requests count as unknown.
func (w *ResourceWeight) Add(c ResourceClass, n int64) {
	switch c {
	case ResourceFirstParty:
		w.FirstParty += n
	case ResourceCDN:
		w.CDN += n
	case ResourceTracker:
		w.Tracker += n
	case ResourceAd:
		w.Ad += n
	case ResourceFunctional:
		w.Functional += n
	default:
		w.Unknown += n
	}
}

// Weight breaks the transferred bytes down by resource class.
func (r *SessionResult) Weight() ResourceWeight {
	var w ResourceWeight
	for _, req := range r.Requests {
		w.Add(req.Class, req.SizeBytes)
	}
	return w
}

// FingerprintSeverity rates the fingerprinting observed in the session.
func (r *SessionResult) FingerprintSeverity() FingerprintSeverity {
	return Severity(r.Fingerprinting)
}

// CheckpointRecord is the durable completion state of one (site, mode) pair.
type CheckpointRecord struct {
	Domain    string      `json:"domain"`
	Mode      ConsentMode `json:"mode"`
	Status    Status      `json:"status"`
	SessionID int64       `json:"session_id"`
	Attempts  int         `json:"attempts"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Key returns the checkpoint key.
func (c CheckpointRecord) Key() TaskKey {
	return TaskKey{Domain: c.Domain, Mode: c.Mode}
}
