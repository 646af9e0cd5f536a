package browser

import (
	"context"
	"time"
)

// Options configures the emulated environment of an isolated browsing context.
type Options struct {
	Locale         string
	Timezone       string
	Latitude       float64
	Longitude      float64
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
}

// Browser launches isolated browsing contexts.
// Implementations must be safe for concurrent use; each worker opens its own Context.
type Browser interface {
	// NewContext opens a fresh context with empty cookies and storage.
	NewContext(ctx context.Context, opts Options) (Context, error)

	// Close shuts the browser down. Open contexts become unusable.
	Close() error
}

// Context is one isolated browsing context with a single page.
// Network activity is recorded from the moment the context is created.
type Context interface {
	// Navigate loads url and waits for the document to load.
	// It returns ErrNavigationTimeout when ctx expires before the load completes.
	Navigate(ctx context.Context, url string) (*Navigation, error)

	// Page returns the document of the current page for consent interaction.
	Page() Page

	// Scroll scrolls the viewport down by half a screen.
	Scroll(ctx context.Context) error

	// Requests returns a snapshot of every request recorded so far.
	Requests() []RawRequest

	// Cookies returns the cookies visible to the context, first- and third-party.
	Cookies(ctx context.Context) ([]RawCookie, error)

	// Storage returns localStorage entries of the top-level origin.
	Storage(ctx context.Context) ([]StorageItem, error)

	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Fingerprinting returns the calls to fingerprinting-relevant APIs the
	// page made since navigation. Monitoring is installed before any page
	// script runs.
	Fingerprinting(ctx context.Context) ([]FingerprintCall, error)

	// Close disposes of the context and everything it stored.
	Close() error
}

// Navigation describes the loaded top-level document.
type Navigation struct {
	// URL is the final URL after redirects.
	URL string

	// Title is the document title.
	Title string

	// StatusCode is the HTTP status of the main document, 0 when unknown.
	StatusCode int

	// Text is a prefix of the visible body text, used for block-page detection.
	Text string

	// LoadTime is the time from navigation start to load completion.
	LoadTime time.Duration
}

// RawRequest is a network request as reported by the browser.
type RawRequest struct {
	ID           string
	URL          string
	Method       string
	ResourceType string
	StartedAt    time.Time
	FinishedAt   time.Time
	StatusCode   int
	SizeBytes    int64
	Failed       bool
	ErrorText    string
}

// RawCookie is a cookie as reported by the browser.
type RawCookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Session  bool
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// StorageItem is one localStorage entry.
type StorageItem struct {
	Origin string
	Key    string
	Value  string
}

// FingerprintCall is one call of a monitored API.
type FingerprintCall struct {
	// API is the API family: canvas, webgl, audio, navigator, font or storage.
	API    string
	Method string
	Detail string

	// Stack holds the first caller frames, used to find the calling script.
	Stack string

	At time.Time
}
