package browser

import "context"

// Scope is a searchable DOM tree: a document or a shadow root.
// Every query only considers visible elements.
type Scope interface {
	// Label describes the scope for logs ("main", "iframe https://...", "shadow #host").
	Label() string

	// Visible reports whether an element matching selector is visible.
	Visible(ctx context.Context, selector string) (bool, error)

	// Click clicks the first visible element matching selector and returns
	// its label. It returns ErrNoElement when nothing matches.
	Click(ctx context.Context, selector string) (string, error)

	// Controls lists visible interactive elements (buttons, links,
	// role=button, clickable spans and divs) in document order. When within
	// is non-empty, only controls inside the first visible element matching
	// within are returned, and ErrNoElement is returned if there is none.
	Controls(ctx context.Context, within string) ([]Control, error)

	// Press clicks a control previously returned by Controls.
	Press(ctx context.Context, c Control) error
}

// Frame is a document: the top-level page or an iframe.
type Frame interface {
	Scope

	// URL returns the document URL.
	URL() string

	// Frames returns the iframes directly embedded in this document.
	// Iframes whose document is not reachable are omitted.
	Frames(ctx context.Context) ([]Frame, error)
}

// Page is the top-level document with access to shadow trees.
type Page interface {
	Frame

	// Shadow returns the shadow root attached to the first element matching
	// host, open or closed. It returns ErrNoElement when there is no such host
	// or the host has no shadow root.
	Shadow(ctx context.Context, host string) (Scope, error)
}

// APICaller is implemented by pages that can call page-level JavaScript
// APIs, such as the public API of a consent-management platform.
type APICaller interface {
	// CallAPI calls window[object][method]() when it is a function and
	// reports whether it was called.
	CallAPI(ctx context.Context, object, method string) (bool, error)
}

// Control is an interactive element discovered by Scope.Controls.
type Control struct {
	// Ref is an opaque handle valid for the scope that produced it.
	Ref string

	// Text is the trimmed, whitespace-collapsed label.
	Text string

	// InConsentContext is true when the control sits inside a container that
	// looks like a consent dialog (see ConsentContextKeywords).
	InConsentContext bool
}

// ConsentContextKeywords mark an ancestor (id, class or tag name) as a consent
// container. Ancestors with role dialog or alertdialog count as well.
var ConsentContextKeywords = []string{
	"cookie", "consent", "gdpr", "privacy", "souhlas", "soukrom",
	"cwl", "cmp", "didomi", "onetrust", "cookiebot",
}

// ConsentContextDepth is how many ancestors are inspected for consent keywords.
const ConsentContextDepth = 10

// InteractiveSelector selects elements that may act as buttons.
const InteractiveSelector = `button, a, [role="button"], input[type="button"], input[type="submit"], span[onclick], div[onclick]`
