package cdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/nao1215/footprint/internal/browser"
)

// Context is one tab in its own browser context.
type Context struct {
	tabCtx     context.Context
	cancel     context.CancelFunc
	browserCtx context.Context
	recorder   *recorder
	logger     *slog.Logger

	mu      sync.Mutex
	worlds  map[cdp.FrameID]runtime.ExecutionContextID
	lastURL string
}

var _ browser.Context = (*Context)(nil)

// Navigate loads rawURL and waits for the load event.
func (c *Context) Navigate(ctx context.Context, rawURL string) (*browser.Navigation, error) {
	start := time.Now()
	var resp *network.Response
	err := c.do(ctx, func(runCtx context.Context) error {
		var err error
		resp, err = chromedp.RunResponse(runCtx, chromedp.Navigate(rawURL))
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s: %w", browser.ErrNavigationTimeout, rawURL, err)
		}
		return nil, fmt.Errorf("failed to navigate to %s: %w", rawURL, err)
	}

	nav := &browser.Navigation{LoadTime: time.Since(start)}
	if resp != nil {
		nav.StatusCode = int(resp.Status)
	}
	if err := c.run(ctx,
		chromedp.Title(&nav.Title),
		chromedp.Location(&nav.URL),
		chromedp.Evaluate(bodyTextScript, &nav.Text),
	); err != nil {
		return nil, fmt.Errorf("failed to read page after load: %w", err)
	}

	c.mu.Lock()
	c.lastURL = nav.URL
	clear(c.worlds)
	c.mu.Unlock()
	return nav, nil
}

// Page returns the top-level document.
func (c *Context) Page() browser.Page {
	return &pageScope{frame: frame{scope: scope{c: c, label: "main"}}}
}

// Scroll scrolls down by half a viewport.
func (c *Context) Scroll(ctx context.Context) error {
	var ok bool
	return c.run(ctx, chromedp.Evaluate(scrollScript, &ok))
}

// Requests returns the requests recorded so far.
func (c *Context) Requests() []browser.RawRequest {
	return c.recorder.snapshot()
}

// Cookies returns the cookies the context would send to any origin it has
// contacted, which includes third-party cookies.
func (c *Context) Cookies(ctx context.Context) ([]browser.RawCookie, error) {
	urls := c.recorder.origins()
	c.mu.Lock()
	if c.lastURL != "" {
		urls = append(urls, c.lastURL)
	}
	c.mu.Unlock()

	var cookies []*network.Cookie
	err := c.run(ctx, chromedp.ActionFunc(func(runCtx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs(urls).Do(runCtx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	out := make([]browser.RawCookie, 0, len(cookies))
	for _, ck := range cookies {
		out = append(out, convertCookie(ck))
	}
	return out, nil
}

type storageDump struct {
	Origin string `json:"origin"`
	Items  []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"items"`
}

// Storage returns the localStorage entries of the top-level origin.
func (c *Context) Storage(ctx context.Context) ([]browser.StorageItem, error) {
	var dump storageDump
	if err := c.run(ctx, chromedp.Evaluate(storageScript, &dump)); err != nil {
		return nil, fmt.Errorf("failed to read local storage: %w", err)
	}
	out := make([]browser.StorageItem, 0, len(dump.Items))
	for _, it := range dump.Items {
		out = append(out, browser.StorageItem{Origin: dump.Origin, Key: it.Key, Value: it.Value})
	}
	return out, nil
}

// Screenshot captures the viewport as PNG.
func (c *Context) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

type fingerprintEntry struct {
	API    string  `json:"api"`
	Method string  `json:"method"`
	Detail string  `json:"detail"`
	Stack  string  `json:"stack"`
	At     float64 `json:"at"`
}

// Fingerprinting returns the API calls recorded by the monitoring script.
func (c *Context) Fingerprinting(ctx context.Context) ([]browser.FingerprintCall, error) {
	var entries []fingerprintEntry
	if err := c.run(ctx, chromedp.Evaluate(fingerprintLogScript, &entries)); err != nil {
		return nil, fmt.Errorf("failed to read fingerprinting log: %w", err)
	}
	out := make([]browser.FingerprintCall, 0, len(entries))
	for _, e := range entries {
		out = append(out, browser.FingerprintCall{
			API:    e.API,
			Method: e.Method,
			Detail: e.Detail,
			Stack:  e.Stack,
			At:     time.UnixMilli(int64(e.At)),
		})
	}
	return out, nil
}

// Close closes the tab and disposes of its browser context.
func (c *Context) Close() error {
	err := chromedp.Cancel(c.tabCtx)
	c.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close tab: %w", err)
	}
	return nil
}

func (c *Context) run(ctx context.Context, actions ...chromedp.Action) error {
	return c.do(ctx, func(runCtx context.Context) error {
		return chromedp.Run(runCtx, actions...)
	})
}

// do runs fn on a child of the tab context that is cancelled with ctx.
// Cancelling the child aborts the pending commands but keeps the tab open.
func (c *Context) do(ctx context.Context, fn func(context.Context) error) error {
	runCtx, cancel := context.WithCancel(c.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := fn(runCtx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	case c.browserCtx.Err() != nil || c.tabCtx.Err() != nil:
		return fmt.Errorf("%w: %w", browser.ErrInfrastructure, err)
	default:
		return err
	}
}

func (c *Context) onEvent(ev any) {
	if _, ok := ev.(*page.EventJavascriptDialogOpening); ok {
		go func() {
			if err := chromedp.Run(c.tabCtx, page.HandleJavaScriptDialog(false)); err != nil {
				c.logger.Debug("failed to dismiss dialog", "error", err)
			}
		}()
		return
	}
	c.recorder.handle(ev)
}

func convertCookie(ck *network.Cookie) browser.RawCookie {
	rc := browser.RawCookie{
		Name:     ck.Name,
		Value:    ck.Value,
		Domain:   ck.Domain,
		Path:     ck.Path,
		Session:  ck.Session,
		Secure:   ck.Secure,
		HTTPOnly: ck.HTTPOnly,
		SameSite: string(ck.SameSite),
	}
	if !ck.Session && ck.Expires > 0 {
		sec, frac := math.Modf(ck.Expires)
		rc.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return rc
}

// originOf returns scheme://host/ of raw, or "" for non-HTTP URLs.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}
