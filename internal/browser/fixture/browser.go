package fixture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/footprint/internal/browser"
)

// Site is a scripted web site served by Browser.
type Site struct {
	// HTML is the document served at the URL.
	HTML string

	// FinalURL is reported as the post-redirect URL; defaults to the requested URL.
	FinalURL string

	// StatusCode of the main document; defaults to 200.
	StatusCode int

	// Requests are recorded when the page loads; ConsentRequests after the
	// first successful click on the page.
	Requests        []browser.RawRequest
	ConsentRequests []browser.RawRequest

	// Cookies exist after load; ConsentCookies are added after the first click.
	Cookies        []browser.RawCookie
	ConsentCookies []browser.RawCookie

	Storage []browser.StorageItem

	// Fingerprinting is reported once the page has loaded.
	Fingerprinting []browser.FingerprintCall

	// LoadDelay is how long navigation takes.
	LoadDelay time.Duration

	// NavigateErrs are returned by successive navigations, one per attempt;
	// a nil entry or running past the end means the navigation succeeds.
	NavigateErrs []error
}

// Browser serves Sites by URL. It is safe for concurrent use.
type Browser struct {
	mu       sync.Mutex
	sites    map[string]*Site
	attempts map[string]int
	opened   int
	open     int
	closed   bool

	// ContextErr, when set, is returned by NewContext.
	ContextErr error
}

// NewBrowser returns an empty fixture browser.
func NewBrowser() *Browser {
	return &Browser{
		sites:    make(map[string]*Site),
		attempts: make(map[string]int),
	}
}

// Serve registers site at url.
func (b *Browser) Serve(url string, site *Site) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sites[url] = site
}

// Opened returns how many contexts were created so far.
func (b *Browser) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

// Open returns how many contexts are currently not closed.
func (b *Browser) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Attempts returns how many navigations to url were made.
func (b *Browser) Attempts(url string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts[url]
}

// NewContext implements browser.Browser.
func (b *Browser) NewContext(ctx context.Context, _ browser.Options) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("%w: browser closed", browser.ErrInfrastructure)
	}
	if b.ContextErr != nil {
		return nil, b.ContextErr
	}
	b.opened++
	b.open++
	return &Context{browser: b}, nil
}

// Close implements browser.Browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Browser) navigate(url string) (*Site, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	site, ok := b.sites[url]
	if !ok {
		return nil, fmt.Errorf("%w: no fixture served at %s", browser.ErrInfrastructure, url)
	}
	attempt := b.attempts[url]
	b.attempts[url]++
	if attempt < len(site.NavigateErrs) && site.NavigateErrs[attempt] != nil {
		return nil, site.NavigateErrs[attempt]
	}
	return site, nil
}

// Context is an isolated fixture browsing context.
type Context struct {
	browser *Browser

	mu        sync.Mutex
	site      *Site
	page      *Page
	requests  []browser.RawRequest
	cookies   []browser.RawCookie
	consented bool
	scrolls   int
	closed    bool
}

// Navigate implements browser.Context.
func (c *Context) Navigate(ctx context.Context, url string) (*browser.Navigation, error) {
	start := time.Now()
	site, err := c.browser.navigate(url)
	if err != nil {
		return nil, err
	}

	if site.LoadDelay > 0 {
		t := time.NewTimer(site.LoadDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", browser.ErrNavigationTimeout, url)
			}
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	page, err := NewPage(site.HTML, url)
	if err != nil {
		return nil, err
	}
	page.onClick = c.onConsentClick

	c.mu.Lock()
	c.site = site
	c.page = page
	c.requests = append(c.requests, stamp(site.Requests, start)...)
	c.cookies = append(c.cookies, site.Cookies...)
	c.mu.Unlock()

	nav := &browser.Navigation{
		URL:        url,
		Title:      page.Title(),
		StatusCode: site.StatusCode,
		Text:       page.Text(),
		LoadTime:   time.Since(start),
	}
	if site.FinalURL != "" {
		nav.URL = site.FinalURL
	}
	if nav.StatusCode == 0 {
		nav.StatusCode = 200
	}
	return nav, nil
}

func (c *Context) onConsentClick(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consented || c.site == nil {
		return
	}
	c.consented = true
	c.requests = append(c.requests, stamp(c.site.ConsentRequests, time.Now())...)
	c.cookies = append(c.cookies, c.site.ConsentCookies...)
}

// Page implements browser.Context. It is nil before the first navigation.
func (c *Context) Page() browser.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page == nil {
		return nil
	}
	return c.page
}

// FixturePage returns the concrete page for assertions.
func (c *Context) FixturePage() *Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Scroll implements browser.Context.
func (c *Context) Scroll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrolls++
	return nil
}

// Scrolls returns how often Scroll was called.
func (c *Context) Scrolls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scrolls
}

// Requests implements browser.Context.
func (c *Context) Requests() []browser.RawRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]browser.RawRequest(nil), c.requests...)
}

// Cookies implements browser.Context.
func (c *Context) Cookies(ctx context.Context) ([]browser.RawCookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]browser.RawCookie(nil), c.cookies...), nil
}

// Storage implements browser.Context.
func (c *Context) Storage(ctx context.Context) ([]browser.StorageItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.site == nil {
		return nil, nil
	}
	return append([]browser.StorageItem(nil), c.site.Storage...), nil
}

// Screenshot implements browser.Context and returns a PNG signature only.
func (c *Context) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

// Fingerprinting implements browser.Context.
func (c *Context) Fingerprinting(ctx context.Context) ([]browser.FingerprintCall, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.site == nil {
		return nil, nil
	}
	return append([]browser.FingerprintCall(nil), c.site.Fingerprinting...), nil
}

// Close implements browser.Context.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.browser.mu.Lock()
	c.browser.open--
	c.browser.mu.Unlock()
	return nil
}

// stamp copies reqs and fills missing start times with at.
func stamp(reqs []browser.RawRequest, at time.Time) []browser.RawRequest {
	out := make([]browser.RawRequest, len(reqs))
	for i, r := range reqs {
		if r.StartedAt.IsZero() {
			r.StartedAt = at
		}
		if r.FinishedAt.IsZero() && !r.Failed {
			r.FinishedAt = r.StartedAt.Add(10 * time.Millisecond)
		}
		if r.Method == "" {
			r.Method = "GET"
		}
		out[i] = r
	}
	return out
}
