package consent

import (
	"context"
	"errors"
	"strings"

	"github.com/nao1215/footprint/internal/browser"
	"github.com/nao1215/footprint/internal/log"
	"github.com/nao1215/footprint/internal/model"
)

// Strategy is one banner detection technique of the cascade.
//
// Attempt returns a match with Detected=false when it found nothing. It returns
// a non-nil error only for failures that make further strategies pointless
// (see browser.ErrInfrastructure); a control that could not be clicked is
// handled inside the strategy.
type Strategy interface {
	Name() model.Strategy
	Attempt(ctx context.Context, page browser.Page, mode model.ConsentMode) (model.BannerMatch, error)
}

// actor holds what all built-in strategies share.
type actor struct {
	rules   Rules
	matcher *matcher
}

func newActor(r Rules) actor {
	return actor{rules: r, matcher: newMatcher(r)}
}

// tryCMP checks one CMP definition in scope. found reports whether the
// definition's banner is visible.
func (a actor) tryCMP(ctx context.Context, scope browser.Scope, cmp CMP, mode model.ConsentMode, strategy model.Strategy) (model.BannerMatch, bool, error) {
	visible, err := scope.Visible(ctx, cmp.Detect)
	if err != nil {
		return model.BannerMatch{}, false, fatal(err)
	}
	if !visible {
		return model.BannerMatch{}, false, nil
	}

	match := model.BannerMatch{Strategy: strategy, CMP: cmp.Name, Detected: true}
	if mode == model.ConsentIgnore {
		return match, true, nil
	}
	for _, sel := range cmp.Selectors(mode) {
		text, err := scope.Click(ctx, sel)
		if err != nil {
			if isFatal(err) {
				return match, true, err
			}
			if !errors.Is(err, browser.ErrNoElement) {
				interactionFailed(ctx, strategy, scope, sel, err)
			}
			continue
		}
		match.ActionTaken = true
		match.ButtonText = labelOr(text, sel)
		return match, true, nil
	}
	return match, true, nil
}

// tryControls searches the controls of scope for a mode phrase.
// trusted marks scopes that are consent UI as a whole.
func (a actor) tryControls(ctx context.Context, scope browser.Scope, within string, mode model.ConsentMode, strategy model.Strategy, trusted bool) (model.BannerMatch, error) {
	controls, err := scope.Controls(ctx, within)
	if err != nil {
		if errors.Is(err, browser.ErrNoElement) {
			return model.NoBanner(), nil
		}
		return model.NoBanner(), fatal(err)
	}

	candidates := a.matcher.pick(controls, modeIntent(mode), trusted)
	if len(candidates) == 0 {
		return model.NoBanner(), nil
	}

	match := model.BannerMatch{Strategy: strategy, Detected: true}
	if mode == model.ConsentIgnore {
		return match, nil
	}
	for _, c := range candidates {
		if err := scope.Press(ctx, c); err != nil {
			if isFatal(err) {
				return match, err
			}
			interactionFailed(ctx, strategy, scope, c.Text, err)
			continue
		}
		match.ActionTaken = true
		match.ButtonText = c.Text
		return match, nil
	}
	return match, nil
}

// isConsentFrame reports whether an iframe URL looks like a consent dialog.
func (a actor) isConsentFrame(url string) bool {
	u := strings.ToLower(url)
	for _, kw := range a.rules.ConsentFrameKeywords {
		if strings.Contains(u, kw) {
			return true
		}
	}
	return false
}

// knownCMP looks for a known CMP banner in the main document.
type knownCMP struct{ actor }

func (s knownCMP) Name() model.Strategy { return model.StrategyKnownCMP }

func (s knownCMP) Attempt(ctx context.Context, page browser.Page, mode model.ConsentMode) (model.BannerMatch, error) {
	for _, cmp := range s.rules.CMPs {
		m, found, err := s.tryCMP(ctx, page, cmp, mode, s.Name())
		if err != nil || found {
			return m, err
		}
	}
	return model.NoBanner(), nil
}

// iframeCMP looks for a known CMP banner in first-level iframes.
type iframeCMP struct{ actor }

func (s iframeCMP) Name() model.Strategy { return model.StrategyIframeCMP }

func (s iframeCMP) Attempt(ctx context.Context, page browser.Page, mode model.ConsentMode) (model.BannerMatch, error) {
	frames, err := page.Frames(ctx)
	if err != nil {
		return model.NoBanner(), fatal(err)
	}
	return s.inFrames(ctx, frames, mode, s.Name())
}

func (a actor) inFrames(ctx context.Context, frames []browser.Frame, mode model.ConsentMode, strategy model.Strategy) (model.BannerMatch, error) {
	for _, f := range frames {
		for _, cmp := range a.rules.CMPs {
			m, found, err := a.tryCMP(ctx, f, cmp, mode, strategy)
			if err != nil || found {
				return m, err
			}
		}
	}
	return model.NoBanner(), nil
}

// cssHeuristic finds generic banner containers by id/class fragments and
// matches phrases inside them.
type cssHeuristic struct{ actor }

func (s cssHeuristic) Name() model.Strategy { return model.StrategyCSSHeuristic }

func (s cssHeuristic) Attempt(ctx context.Context, page browser.Page, mode model.ConsentMode) (model.BannerMatch, error) {
	best := model.NoBanner()
	for _, sel := range s.rules.BannerSelectors {
		visible, err := page.Visible(ctx, sel)
		if err != nil {
			return best, fatal(err)
		}
		if !visible {
			continue
		}
		if !best.Detected {
			best = model.BannerMatch{Strategy: s.Name(), Detected: true}
		}
		m, err := s.tryControls(ctx, page, sel, mode, s.Name(), true)
		if err != nil || m.ActionTaken {
			return m, err
		}
	}
	return best, nil
}

// textMatch matches phrases against every control of the main document.
type textMatch struct{ actor }

func (s textMatch) Name() model.Strategy { return model.StrategyTextMatch }

func (s textMatch) Attempt(ctx context.Context, page browser.Page, mode model.ConsentMode) (model.BannerMatch, error) {
	return s.tryControls(ctx, page, "", mode, s.Name(), false)
}

// consentAPI applies the mode through the JavaScript API of a CMP whose
// banner never rendered a usable control. Pages that cannot run scripts are
// skipped.
type consentAPI struct{ actor }

func (s consentAPI) Name() model.Strategy { return model.StrategyConsentAPI }

func (s consentAPI) Attempt(ctx context.Context, page browser.Page, mode model.ConsentMode) (model.BannerMatch, error) {
	caller, ok := page.(browser.APICaller)
	if !ok || mode == model.ConsentIgnore {
		return model.NoBanner(), nil
	}
	for _, api := range s.rules.APIs {
		method := api.Method(mode)
		if api.Object == "" || method == "" {
			continue
		}
		called, err := caller.CallAPI(ctx, api.Object, method)
		if err != nil {
			if isFatal(err) {
				return model.NoBanner(), err
			}
			log.FromContext(ctx).Debug("consent API call failed",
				"cmp", api.Name,
				"error", errors.Join(ErrInteraction, err),
			)
			continue
		}
		if called {
			return model.BannerMatch{
				Strategy:    s.Name(),
				CMP:         api.Name,
				Detected:    true,
				ActionTaken: true,
				ButtonText:  api.Object + "." + method + "()",
			}, nil
		}
	}
	return model.NoBanner(), nil
}

// iframeText matches phrases against controls of first-level iframes.
type iframeText struct{ actor }

func (s iframeText) Name() model.Strategy { return model.StrategyIframeText }

func (s iframeText) Attempt(ctx context.Context, page browser.Page, mode model.ConsentMode) (model.BannerMatch, error) {
	frames, err := page.Frames(ctx)
	if err != nil {
		return model.NoBanner(), fatal(err)
	}
	return s.textInFrames(ctx, frames, mode, s.Name())
}

func (a actor) textInFrames(ctx context.Context, frames []browser.Frame, mode model.ConsentMode, strategy model.Strategy) (model.BannerMatch, error) {
	best := model.NoBanner()
	for _, f := range frames {
		m, err := a.tryControls(ctx, f, "", mode, strategy, a.isConsentFrame(f.URL()))
		if err != nil || m.ActionTaken {
			return m, err
		}
		if m.Detected && !best.Detected {
			best = m
		}
	}
	return best, nil
}

// shadowDOM matches phrases inside the shadow roots of known consent hosts.
type shadowDOM struct{ actor }

func (s shadowDOM) Name() model.Strategy { return model.StrategyShadowDOM }

func (s shadowDOM) Attempt(ctx context.Context, page browser.Page, mode model.ConsentMode) (model.BannerMatch, error) {
	best := model.NoBanner()
	for _, host := range s.rules.ShadowHosts {
		root, err := page.Shadow(ctx, host)
		if err != nil {
			if errors.Is(err, browser.ErrNoElement) {
				continue
			}
			return best, fatal(err)
		}
		if !best.Detected {
			best = model.BannerMatch{Strategy: s.Name(), Detected: true}
		}
		m, err := s.tryControls(ctx, root, "", mode, s.Name(), true)
		if err != nil || m.ActionTaken {
			return m, err
		}
	}
	return best, nil
}

// nestedIframe searches iframes embedded inside iframes, as used by
// Sourcepoint-style CMPs.
type nestedIframe struct{ actor }

func (s nestedIframe) Name() model.Strategy { return model.StrategyNestedIframe }

func (s nestedIframe) Attempt(ctx context.Context, page browser.Page, mode model.ConsentMode) (model.BannerMatch, error) {
	frames, err := page.Frames(ctx)
	if err != nil {
		return model.NoBanner(), fatal(err)
	}
	var nested []browser.Frame
	for _, f := range frames {
		children, err := f.Frames(ctx)
		if err != nil {
			if isFatal(err) {
				return model.NoBanner(), err
			}
			continue
		}
		nested = append(nested, children...)
	}
	if len(nested) == 0 {
		return model.NoBanner(), nil
	}
	m, err := s.inFrames(ctx, nested, mode, s.Name())
	if err != nil || m.Detected {
		return m, err
	}
	return s.textInFrames(ctx, nested, mode, s.Name())
}

func labelOr(text, fallback string) string {
	if t := strings.TrimSpace(text); t != "" {
		return t
	}
	return fallback
}

// fatal keeps infrastructure failures and downgrades everything else, such as
// a selector the driver could not evaluate, to "nothing found".
func fatal(err error) error {
	if isFatal(err) {
		return err
	}
	return nil
}

func isFatal(err error) bool {
	return errors.Is(err, browser.ErrInfrastructure)
}

func interactionFailed(ctx context.Context, strategy model.Strategy, scope browser.Scope, target string, err error) {
	log.FromContext(ctx).Debug("consent interaction failed",
		"strategy", strategy,
		"scope", scope.Label(),
		"target", target,
		"error", errors.Join(ErrInteraction, err),
	)
}
