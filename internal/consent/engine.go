package consent

import (
	"context"
	"errors"
	"time"

	"github.com/nao1215/footprint/internal/browser"
	"github.com/nao1215/footprint/internal/log"
	"github.com/nao1215/footprint/internal/model"
)

// ErrInteraction marks a click that failed on a stale, covered or detached
// element. It never escapes the engine; it only appears in debug logs.
var ErrInteraction = errors.New("consent interaction failed")

// Default budgets used when no option overrides them.
const (
	DefaultStrategyTimeout = 4 * time.Second
	DefaultRevealSettle    = 1500 * time.Millisecond
)

// Engine runs the consent strategy cascade against a page.
//
// Strategies run in a fixed order. The first one that both detects a banner
// and clicks a mode-appropriate control ends the cascade. A strategy that
// detects without acting is remembered and the cascade continues; if nothing
// acts, one reveal click ("Settings", "Nastavení") is attempted and the
// generic strategies run once more on the revealed layer.
//
// An Engine is stateless between calls and safe for concurrent use.
type Engine struct {
	rules           Rules
	actor           actor
	strategies      []Strategy
	afterReveal     []Strategy
	strategyTimeout time.Duration
	revealSettle    time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategyTimeout bounds each strategy.
func WithStrategyTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.strategyTimeout = d
	}
}

// WithRevealSettle sets the wait after a reveal click.
func WithRevealSettle(d time.Duration) Option {
	return func(e *Engine) {
		e.revealSettle = d
	}
}

// WithStrategies replaces the cascade. The reveal pass is disabled because
// custom strategies do not declare which of them apply to a revealed layer.
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Engine) {
		e.strategies = strategies
		e.afterReveal = nil
	}
}

// NewEngine creates an engine with the built-in cascade:
// known-cmp, iframe-cmp, css-heuristic, text-match, consent-api, iframe-text,
// shadow-dom, nested-iframe. The reveal pass reruns the generic phrase
// strategies only.
func NewEngine(rules Rules, opts ...Option) *Engine {
	a := newActor(rules)

	e := &Engine{
		rules: rules,
		actor: a,
		strategies: []Strategy{
			knownCMP{a}, iframeCMP{a}, cssHeuristic{a}, textMatch{a},
			consentAPI{a}, iframeText{a}, shadowDOM{a}, nestedIframe{a},
		},
		afterReveal:     []Strategy{cssHeuristic{a}, textMatch{a}, iframeText{a}, shadowDOM{a}},
		strategyTimeout: DefaultStrategyTimeout,
		revealSettle:    DefaultRevealSettle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle detects the consent banner of page and applies mode to it.
//
// Running out of ctx is not an error: the best result found so far is
// returned. The error is non-nil only when the browser itself failed.
func (e *Engine) Handle(ctx context.Context, page browser.Page, mode model.ConsentMode) (model.BannerMatch, error) {
	logger := log.FromContext(ctx)

	detected, err := e.run(ctx, page, mode, e.strategies)
	if err != nil || detected.ActionTaken || mode == model.ConsentIgnore {
		return detected, err
	}

	if len(e.afterReveal) == 0 || ctx.Err() != nil {
		return detected, nil
	}
	revealed, err := e.reveal(ctx, page, detected)
	if err != nil {
		return detected, err
	}
	if !revealed {
		return detected, nil
	}
	logger.Debug("reveal control clicked, searching revealed layer")
	if err := sleep(ctx, e.revealSettle); err != nil {
		return withDetection(detected), nil
	}

	second, err := e.run(ctx, page, mode, e.afterReveal)
	if err != nil {
		return detected, err
	}
	if second.ActionTaken {
		second.Revealed = true
		if second.CMP == "" {
			second.CMP = detected.CMP
		}
		return second, nil
	}
	return withDetection(detected), nil
}

// run executes strategies in order and returns the first acting match, or the
// first detecting one.
func (e *Engine) run(ctx context.Context, page browser.Page, mode model.ConsentMode, strategies []Strategy) (model.BannerMatch, error) {
	logger := log.FromContext(ctx)
	first := model.NoBanner()

	for _, s := range strategies {
		if ctx.Err() != nil {
			logger.Debug("consent budget exhausted", "next_strategy", s.Name())
			return first, nil
		}

		sctx, cancel := context.WithTimeout(ctx, e.strategyTimeout)
		m, err := s.Attempt(sctx, page, mode)
		cancel()
		if err != nil {
			return first, err
		}
		if !m.Detected {
			continue
		}

		logger.Debug("consent banner detected",
			"strategy", m.Strategy,
			"cmp", m.CMP,
			"action_taken", m.ActionTaken,
			"button", m.ButtonText,
		)
		if m.ActionTaken {
			return m, nil
		}
		if !first.Detected {
			first = m
		}
	}
	return first, nil
}

// reveal clicks one control that opens a settings layer. It tries the reveal
// selectors of a detected CMP first, then reveal phrases in consent UI of the
// main document, iframes and shadow roots.
func (e *Engine) reveal(ctx context.Context, page browser.Page, detected model.BannerMatch) (bool, error) {
	rctx, cancel := context.WithTimeout(ctx, e.strategyTimeout)
	defer cancel()

	if cmp, ok := e.rules.CMPByName(detected.CMP); ok {
		for _, sel := range cmp.Reveal {
			if _, err := page.Click(rctx, sel); err == nil {
				return true, nil
			} else if isFatal(err) {
				return false, err
			}
		}
	}

	scopes := []revealScope{{scope: page}}
	if frames, err := page.Frames(rctx); err == nil {
		for _, f := range frames {
			scopes = append(scopes, revealScope{scope: f, trusted: e.actor.isConsentFrame(f.URL())})
		}
	} else if isFatal(err) {
		return false, err
	}
	for _, host := range e.rules.ShadowHosts {
		if root, err := page.Shadow(rctx, host); err == nil {
			scopes = append(scopes, revealScope{scope: root, trusted: true})
		} else if isFatal(err) {
			return false, err
		}
	}

	for _, s := range scopes {
		controls, err := s.scope.Controls(rctx, "")
		if err != nil {
			if isFatal(err) {
				return false, err
			}
			continue
		}
		var consentUI []browser.Control
		for _, c := range controls {
			// A "Settings" link in the site footer is not a consent layer.
			if s.trusted || c.InConsentContext {
				consentUI = append(consentUI, c)
			}
		}
		for _, c := range e.actor.matcher.pick(consentUI, intentReveal, true) {
			if err := s.scope.Press(rctx, c); err != nil {
				if isFatal(err) {
					return false, err
				}
				interactionFailed(rctx, "reveal", s.scope, c.Text, err)
				continue
			}
			return true, nil
		}
	}
	return false, nil
}

type revealScope struct {
	scope   browser.Scope
	trusted bool
}

// withDetection marks a result as detected after a successful reveal click:
// a settings layer that opened is itself evidence of a banner.
func withDetection(m model.BannerMatch) model.BannerMatch {
	if !m.Detected {
		m.Detected = true
		if m.Strategy == model.StrategyNone {
			m.Strategy = model.StrategyTextMatch
		}
	}
	return m
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
