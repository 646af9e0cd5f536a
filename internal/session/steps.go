package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/footprint/internal/browser"
	"github.com/nao1215/footprint/internal/model"
)

// navigateStep opens an isolated context and loads the site.
type navigateStep struct{ r *Runner }

func (navigateStep) Phase() Phase { return PhaseNavigating }

func (st navigateStep) Do(ctx context.Context, s *session) error {
	bctx, err := st.r.browser.NewContext(ctx, st.r.env)
	if err != nil {
		if errors.Is(err, browser.ErrInfrastructure) {
			return err
		}
		return fmt.Errorf("%w: %w", browser.ErrInfrastructure, err)
	}
	s.bctx = bctx

	nctx, cancel := context.WithTimeout(ctx, st.r.timing.PageLoadTimeout)
	defer cancel()
	nav, err := bctx.Navigate(nctx, s.task.Site.URL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, browser.ErrNavigationTimeout) {
			err = fmt.Errorf("%w: %w", browser.ErrNavigationTimeout, err)
		}
		if errors.Is(err, browser.ErrNavigationTimeout) {
			s.result.LoadTime = st.r.timing.PageLoadTimeout
		}
		return err
	}

	s.nav = nav
	s.result.FinalURL = nav.URL
	s.result.PageTitle = nav.Title
	s.result.LoadTime = nav.LoadTime

	if reason := detectBlock(nav, bctx.Requests()); reason != "" {
		return fmt.Errorf("%w: %s", ErrBlocked, reason)
	}
	s.logger.Debug("page loaded", "final_url", nav.URL, "load_time", nav.LoadTime)
	return nil
}

// consentStep waits for the banner, snapshots cookies and runs the consent engine.
type consentStep struct{ r *Runner }

func (consentStep) Phase() Phase { return PhaseConsent }

func (st consentStep) Do(ctx context.Context, s *session) error {
	if err := sleep(ctx, st.r.timing.BannerWait); err != nil {
		return err
	}

	cookies, err := s.bctx.Cookies(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrInfrastructure) {
			return err
		}
		s.logger.Debug("pre-consent cookie snapshot failed", "error", err)
	}
	s.before = make(map[cookieKey]bool, len(cookies))
	for _, c := range cookies {
		s.before[cookieKey{c.Name, c.Domain}] = true
	}

	page := s.bctx.Page()
	if page == nil {
		return fmt.Errorf("%w: no page after navigation", browser.ErrInfrastructure)
	}

	cctx, cancel := context.WithTimeout(ctx, st.r.timing.ConsentTimeout)
	defer cancel()
	match, err := st.r.engine.Handle(cctx, page, s.task.Mode)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.result.Banner = match
	if match.ActionTaken {
		s.result.ConsentAt = st.r.now()
	}
	s.logger.Debug("consent handled",
		"detected", match.Detected,
		"action_taken", match.ActionTaken,
		"strategy", match.Strategy,
		"cmp", match.CMP,
	)
	return nil
}

// dwellStep waits for delayed trackers and scrolls to trigger lazy loading.
type dwellStep struct{ r *Runner }

func (dwellStep) Phase() Phase { return PhaseDwelling }

func (st dwellStep) Do(ctx context.Context, s *session) error {
	t := st.r.timing
	if s.result.Banner.ActionTaken {
		if err := sleep(ctx, t.PostConsentDwell); err != nil {
			return err
		}
	}
	for range t.ScrollSteps {
		if err := s.bctx.Scroll(ctx); err != nil {
			if errors.Is(err, browser.ErrInfrastructure) || ctx.Err() != nil {
				return err
			}
			s.logger.Debug("scroll failed", "error", err)
			break
		}
		if err := sleep(ctx, t.ScrollDelay); err != nil {
			return err
		}
	}
	return sleep(ctx, t.FinalDwell)
}

// captureStep reads the accumulated observations and classifies them.
type captureStep struct{ r *Runner }

func (captureStep) Phase() Phase { return PhaseCapturing }

func (st captureStep) Do(ctx context.Context, s *session) error {
	s.result.Requests = st.r.classifyRequests(s)

	// Read before storage: reading storage calls the monitored getItem.
	calls, err := s.bctx.Fingerprinting(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrInfrastructure) || ctx.Err() != nil {
			return err
		}
		s.logger.Warn("failed to capture fingerprinting calls", "error", err)
	}
	for _, c := range calls {
		s.result.Fingerprinting = append(s.result.Fingerprinting, st.r.classifier.Fingerprint(c))
	}

	cookies, err := s.bctx.Cookies(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrInfrastructure) || ctx.Err() != nil {
			return err
		}
		s.logger.Warn("failed to capture cookies", "error", err)
	}
	observed := st.r.now()
	consented := !s.result.ConsentAt.IsZero()
	for _, c := range cookies {
		cc := st.r.classifier.Cookie(s.siteDomain, c, observed)
		// Without a consent action every cookie predates consent.
		cc.SetBeforeConsent = !consented || s.before[cookieKey{c.Name, c.Domain}]
		s.result.Cookies = append(s.result.Cookies, cc)
	}

	items, err := s.bctx.Storage(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrInfrastructure) || ctx.Err() != nil {
			return err
		}
		s.logger.Warn("failed to capture storage", "error", err)
	}
	for _, it := range items {
		s.result.Storage = append(s.result.Storage, st.r.classifier.Storage(it))
	}

	if st.r.screenshotDir != "" {
		path, err := st.r.screenshot(ctx, s)
		if err != nil {
			if errors.Is(err, browser.ErrInfrastructure) {
				return err
			}
			s.logger.Warn("screenshot failed", "error", err)
		}
		s.result.ScreenshotPath = path
	}
	return nil
}

func (r *Runner) classifyRequests(s *session) []model.ClassifiedRequest {
	raw := s.bctx.Requests()
	if len(raw) == 0 {
		return nil
	}
	out := make([]model.ClassifiedRequest, 0, len(raw))
	for _, q := range raw {
		out = append(out, r.classifier.Request(s.siteDomain, q, s.start, s.result.ConsentAt))
	}
	return out
}

func (r *Runner) screenshot(ctx context.Context, s *session) (string, error) {
	data, err := s.bctx.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.screenshotDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	path := filepath.Join(r.screenshotDir, fmt.Sprintf("%s_%s.png", s.task.Site.Domain, s.task.Mode))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}
