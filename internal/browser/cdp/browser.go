package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/nao1215/footprint/internal/browser"
)

// Config configures the Chrome process.
type Config struct {
	// Headless runs Chrome without a window.
	Headless bool

	// ExecPath overrides the Chrome executable.
	ExecPath string

	// Logger receives chromedp diagnostics at debug level.
	Logger *slog.Logger
}

// Browser is a running Chrome instance.
type Browser struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ browser.Browser = (*Browser)(nil)

// New starts Chrome. The process lives until Close is called; ctx only
// bounds the start-up.
func New(ctx context.Context, cfg Config) (*Browser, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-site-isolation-trials", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("chromedp", "message", fmt.Sprintf(format, args...))
		}),
	)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("%w: failed to start chrome: %w", browser.ErrInfrastructure, err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: chrome start-up interrupted: %w", browser.ErrInfrastructure, ctx.Err())
	}

	logger.Debug("chrome started", "headless", cfg.Headless)
	return &Browser{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

// NewContext opens a tab in a new, empty browser context and applies the
// emulated environment.
func (b *Browser) NewContext(ctx context.Context, opts browser.Options) (browser.Context, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed || b.browserCtx.Err() != nil {
		return nil, fmt.Errorf("%w: browser is closed", browser.ErrInfrastructure)
	}

	tabCtx, cancel := chromedp.NewContext(b.browserCtx, chromedp.WithNewBrowserContext())
	c := &Context{
		tabCtx:     tabCtx,
		cancel:     cancel,
		browserCtx: b.browserCtx,
		recorder:   newRecorder(time.Now),
		worlds:     make(map[cdp.FrameID]runtime.ExecutionContextID),
		logger:     b.logger,
	}
	chromedp.ListenTarget(tabCtx, c.onEvent)

	if err := c.run(ctx, setupActions(opts)...); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to prepare browser context: %w", browser.ErrInfrastructure, err)
	}
	return c, nil
}

// Close stops Chrome.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	err := chromedp.Cancel(b.browserCtx)
	b.browserCancel()
	b.allocCancel()
	if err != nil {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	return nil
}

// setupActions enables network tracking and applies opts to a new tab.
func setupActions(opts browser.Options) []chromedp.Action {
	actions := []chromedp.Action{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, script := range []string{openShadowScript, fingerprintScript} {
				if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	if opts.Locale != "" {
		actions = append(actions, emulation.SetLocaleOverride().WithLocale(opts.Locale))
	}
	if opts.Timezone != "" {
		actions = append(actions, emulation.SetTimezoneOverride(opts.Timezone))
	}
	if opts.Latitude != 0 || opts.Longitude != 0 {
		actions = append(actions,
			chromedp.ActionFunc(func(ctx context.Context) error {
				grant := cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{cdpbrowser.PermissionTypeGeolocation})
				if c := chromedp.FromContext(ctx); c != nil && c.BrowserContextID != "" {
					grant = grant.WithBrowserContextID(c.BrowserContextID)
				}
				return grant.Do(ctx)
			}),
			emulation.SetGeolocationOverride().
				WithLatitude(opts.Latitude).
				WithLongitude(opts.Longitude).
				WithAccuracy(50),
		)
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		actions = append(actions,
			emulation.SetDeviceMetricsOverride(int64(opts.ViewportWidth), int64(opts.ViewportHeight), 1, false))
	}
	if opts.UserAgent != "" {
		ua := emulation.SetUserAgentOverride(opts.UserAgent)
		if lang := acceptLanguage(opts.Locale); lang != "" {
			ua = ua.WithAcceptLanguage(lang)
		}
		actions = append(actions, ua)
	}
	return actions
}

// acceptLanguage builds an Accept-Language header for locale:
// "cs-CZ" becomes "cs-CZ,cs;q=0.9".
func acceptLanguage(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	lang, _, found := strings.Cut(locale, "-")
	if !found {
		return locale
	}
	return locale + "," + lang + ";q=0.9"
}
