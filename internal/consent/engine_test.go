package consent

import (
	"context"
	"errors"
	"html"
	"testing"
	"time"

	"github.com/nao1215/footprint/internal/browser"
	"github.com/nao1215/footprint/internal/browser/fixture"
	"github.com/nao1215/footprint/internal/model"
)

func newTestEngine(opts ...Option) *Engine {
	opts = append([]Option{WithStrategyTimeout(time.Second), WithRevealSettle(0)}, opts...)
	return NewEngine(DefaultRules(), opts...)
}

func mustPage(t *testing.T, document string) *fixture.Page {
	t.Helper()
	p, err := fixture.NewPage(document, "https://www.example.cz/")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// TestEngineHandle tests the strategy cascade on representative banners.
func TestEngineHandle(t *testing.T) {
	t.Parallel()

	sourcepoint := `<div id="sp_message_container_1"><button title="Accept">Accept</button></div>`
	wrapper := `<p>advert</p><iframe src="https://cdn.sp.example/sp_message" srcdoc="` + html.EscapeString(sourcepoint) + `"></iframe>`

	tests := []struct {
		name       string
		document   string
		mode       model.ConsentMode
		strategy   model.Strategy
		cmp        string
		button     string
		actionless bool
	}{
		{
			name: "known CMP wins over a generic container",
			document: `<div class="cookie-banner"><button>Přijmout vše</button></div>
<div id="onetrust-banner-sdk"><button id="onetrust-accept-btn-handler">Accept All Cookies</button>
<button id="onetrust-reject-all-handler">Reject All</button></div>`,
			mode:     model.ConsentAccept,
			strategy: model.StrategyKnownCMP,
			cmp:      "onetrust",
			button:   "Accept All Cookies",
		},
		{
			name:     "known CMP reject selector",
			document: `<div id="onetrust-banner-sdk"><button id="onetrust-accept-btn-handler">Accept</button><button id="onetrust-reject-all-handler">Reject All</button></div>`,
			mode:     model.ConsentReject,
			strategy: model.StrategyKnownCMP,
			cmp:      "onetrust",
			button:   "Reject All",
		},
		{
			name:     "generic container phrase",
			document: `<div id="gdpr-consent-box"><p>Cookies</p><button>Nesouhlasím</button><button>Souhlasím</button></div>`,
			mode:     model.ConsentReject,
			strategy: model.StrategyCSSHeuristic,
			button:   "Nesouhlasím",
		},
		{
			name:     "free text match in a dialog",
			document: `<section role="dialog"><a href="#">Povolit vše</a></section>`,
			mode:     model.ConsentAccept,
			strategy: model.StrategyTextMatch,
			button:   "Povolit vše",
		},
		{
			name:     "consent iframe text",
			document: `<iframe src="https://cmp.example.com/consent/ui" srcdoc="&lt;button&gt;Odmítnout vše&lt;/button&gt;"></iframe>`,
			mode:     model.ConsentReject,
			strategy: model.StrategyIframeText,
			button:   "Odmítnout vše",
		},
		{
			name: "closed shadow root",
			document: `<cookie-consent-widget><template shadowrootmode="closed">
<div><button>Přijmout vše</button><button>Odmítnout vše</button></div></template></cookie-consent-widget>`,
			mode:     model.ConsentReject,
			strategy: model.StrategyShadowDOM,
			button:   "Odmítnout vše",
		},
		{
			name:     "CMP inside a nested iframe",
			document: `<iframe src="https://www.example.cz/wrapper" srcdoc="` + html.EscapeString(wrapper) + `"></iframe>`,
			mode:     model.ConsentAccept,
			strategy: model.StrategyNestedIframe,
			cmp:      "sourcepoint",
			button:   "Accept",
		},
		{
			name:     "Didomi API when no control rendered",
			document: `<div id="didomi-host"></div><script data-api="Didomi.setUserAgreeToAll Didomi.setUserDisagreeToAll"></script>`,
			mode:     model.ConsentReject,
			strategy: model.StrategyConsentAPI,
			cmp:      "didomi",
			button:   "Didomi.setUserDisagreeToAll()",
		},
		{
			name:       "ignore mode detects without clicking",
			document:   `<div id="onetrust-banner-sdk"><button id="onetrust-accept-btn-handler">Accept</button></div>`,
			mode:       model.ConsentIgnore,
			strategy:   model.StrategyKnownCMP,
			cmp:        "onetrust",
			actionless: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			page := mustPage(t, tt.document)
			got, err := newTestEngine().Handle(context.Background(), page, tt.mode)
			if err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if !got.Detected {
				t.Fatalf("banner not detected: %+v", got)
			}
			if got.Strategy != tt.strategy || got.CMP != tt.cmp {
				t.Errorf("got strategy=%s cmp=%q, want %s %q", got.Strategy, got.CMP, tt.strategy, tt.cmp)
			}
			if tt.actionless {
				if got.ActionTaken || len(page.Clicks()) != 0 {
					t.Errorf("nothing should be clicked, got %+v clicks=%v", got, page.Clicks())
				}
				return
			}
			if !got.ActionTaken || got.ButtonText != tt.button {
				t.Errorf("got action=%v button=%q, want %q", got.ActionTaken, got.ButtonText, tt.button)
			}
			if clicks := page.Clicks(); len(clicks) != 1 {
				t.Errorf("expected exactly one click, got %v", clicks)
			}
		})
	}
}

// TestEngineConsentAPI tests the CMP API fallback.
func TestEngineConsentAPI(t *testing.T) {
	t.Parallel()

	const script = `<script data-api="Didomi.setUserAgreeToAll Didomi.setUserDisagreeToAll"></script>`

	t.Run("a visible control is preferred over the API", func(t *testing.T) {
		t.Parallel()
		page := mustPage(t, `<section role="dialog"><button>Přijmout vše</button></section>`+script)
		got, err := newTestEngine().Handle(context.Background(), page, model.ConsentAccept)
		if err != nil {
			t.Fatal(err)
		}
		if got.Strategy != model.StrategyTextMatch || got.ButtonText != "Přijmout vše" {
			t.Errorf("unexpected result %+v", got)
		}
	})

	t.Run("ignore mode never calls the API", func(t *testing.T) {
		t.Parallel()
		page := mustPage(t, script)
		got, err := newTestEngine().Handle(context.Background(), page, model.ConsentIgnore)
		if err != nil {
			t.Fatal(err)
		}
		if got.Detected || len(page.Clicks()) != 0 {
			t.Errorf("nothing should happen, got %+v clicks=%v", got, page.Clicks())
		}
	})

	t.Run("configured APIs are tried in order", func(t *testing.T) {
		t.Parallel()
		rules := DefaultRules()
		rules.APIs = append([]ConsentAPI{{Name: "custom", Object: "MyCMP", Accept: "acceptAll"}}, rules.APIs...)
		page := mustPage(t, `<script data-api="MyCMP.acceptAll"></script>`+script)
		got, err := NewEngine(rules, WithStrategyTimeout(time.Second)).Handle(context.Background(), page, model.ConsentAccept)
		if err != nil {
			t.Fatal(err)
		}
		if got.CMP != "custom" || got.ButtonText != "MyCMP.acceptAll()" {
			t.Errorf("unexpected result %+v", got)
		}
		if clicks := page.Clicks(); len(clicks) != 1 {
			t.Errorf("expected one call, got %v", clicks)
		}
	})

	t.Run("a mode without a function is skipped", func(t *testing.T) {
		t.Parallel()
		rules := DefaultRules()
		rules.APIs = []ConsentAPI{{Name: "custom", Object: "MyCMP", Accept: "acceptAll"}}
		page := mustPage(t, `<script data-api="MyCMP.acceptAll"></script>`)
		got, err := NewEngine(rules, WithStrategyTimeout(time.Second)).Handle(context.Background(), page, model.ConsentReject)
		if err != nil {
			t.Fatal(err)
		}
		if got.ActionTaken || len(page.Clicks()) != 0 {
			t.Errorf("nothing should be called, got %+v clicks=%v", got, page.Clicks())
		}
	})
}

// TestEngineReveal tests the two-step banner flow through a settings layer.
func TestEngineReveal(t *testing.T) {
	t.Parallel()

	const document = `<div id="cookie-consent-banner"><p>We use cookies.</p>
<button data-reveals="#choices">Settings</button>
<div id="choices" hidden><button>Accept all</button><button>Reject all</button></div>
</div>`

	t.Run("reject is found after the reveal click", func(t *testing.T) {
		t.Parallel()
		page := mustPage(t, document)
		got, err := newTestEngine().Handle(context.Background(), page, model.ConsentReject)
		if err != nil {
			t.Fatal(err)
		}
		if !got.ActionTaken || !got.Revealed || got.ButtonText != "Reject all" {
			t.Errorf("unexpected result %+v", got)
		}
		if clicks := page.Clicks(); len(clicks) != 2 || clicks[0] != "Settings" {
			t.Errorf("clicks = %v", clicks)
		}
	})

	t.Run("CMP reveal selector is preferred", func(t *testing.T) {
		t.Parallel()
		page := mustPage(t, `<div id="onetrust-banner-sdk"><button id="onetrust-accept-btn-handler">Accept</button>
<button id="onetrust-pc-btn-handler" data-reveals="#onetrust-pc-sdk">Customize</button></div>
<div id="onetrust-pc-sdk" class="cookie-consent-layer" hidden><button>Odmítnout vše</button></div>`)
		got, err := newTestEngine().Handle(context.Background(), page, model.ConsentReject)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Revealed || got.CMP != "onetrust" || got.ButtonText != "Odmítnout vše" {
			t.Errorf("unexpected result %+v", got)
		}
	})

	t.Run("footer settings link is not a reveal control", func(t *testing.T) {
		t.Parallel()
		page := mustPage(t, `<main><p>News</p></main><footer><a href="/settings">Settings</a></footer>`)
		got, err := newTestEngine().Handle(context.Background(), page, model.ConsentReject)
		if err != nil {
			t.Fatal(err)
		}
		if got.Detected || len(page.Clicks()) != 0 {
			t.Errorf("nothing should be detected, got %+v clicks=%v", got, page.Clicks())
		}
	})
}

// TestEngineInteractionFailure tests that a failing click falls through to the next candidate.
func TestEngineInteractionFailure(t *testing.T) {
	t.Parallel()

	page := mustPage(t, `<div class="cookie-banner"><button data-fail>Přijmout vše</button><button>Souhlasím</button></div>`)
	got, err := newTestEngine().Handle(context.Background(), page, model.ConsentAccept)
	if err != nil {
		t.Fatal(err)
	}
	if !got.ActionTaken || got.ButtonText != "Souhlasím" {
		t.Errorf("unexpected result %+v", got)
	}
}

// TestEngineNoBanner tests a page without consent UI.
func TestEngineNoBanner(t *testing.T) {
	t.Parallel()

	page := mustPage(t, `<h1>Hello</h1><a href="/about">About us</a>`)
	for _, mode := range model.AllConsentModes() {
		got, err := newTestEngine().Handle(context.Background(), page, mode)
		if err != nil {
			t.Fatal(err)
		}
		if got != model.NoBanner() {
			t.Errorf("mode %s: got %+v, want no banner", mode, got)
		}
	}
}

type fakeStrategy struct {
	name   model.Strategy
	result model.BannerMatch
	err    error
	calls  *int
}

func (f fakeStrategy) Name() model.Strategy { return f.name }

func (f fakeStrategy) Attempt(context.Context, browser.Page, model.ConsentMode) (model.BannerMatch, error) {
	*f.calls++
	return f.result, f.err
}

// TestEngineCascadeOrder tests cascade termination with custom strategies.
func TestEngineCascadeOrder(t *testing.T) {
	t.Parallel()

	page := mustPage(t, `<p>empty</p>`)

	t.Run("first acting strategy ends the cascade", func(t *testing.T) {
		t.Parallel()
		var a, b, c int
		e := newTestEngine(WithStrategies(
			fakeStrategy{name: model.StrategyKnownCMP, result: model.BannerMatch{Strategy: model.StrategyKnownCMP, CMP: "x", Detected: true}, calls: &a},
			fakeStrategy{name: model.StrategyTextMatch, result: model.BannerMatch{Strategy: model.StrategyTextMatch, Detected: true, ActionTaken: true, ButtonText: "OK"}, calls: &b},
			fakeStrategy{name: model.StrategyShadowDOM, calls: &c},
		))
		got, err := e.Handle(context.Background(), page, model.ConsentAccept)
		if err != nil {
			t.Fatal(err)
		}
		if got.Strategy != model.StrategyTextMatch || !got.ActionTaken {
			t.Errorf("unexpected result %+v", got)
		}
		if a != 1 || b != 1 || c != 0 {
			t.Errorf("calls = %d %d %d, want 1 1 0", a, b, c)
		}
	})

	t.Run("first detection is kept when nothing acts", func(t *testing.T) {
		t.Parallel()
		var a, b int
		e := newTestEngine(WithStrategies(
			fakeStrategy{name: model.StrategyKnownCMP, calls: &a},
			fakeStrategy{name: model.StrategyShadowDOM, result: model.BannerMatch{Strategy: model.StrategyShadowDOM, Detected: true}, calls: &b},
		))
		got, err := e.Handle(context.Background(), page, model.ConsentReject)
		if err != nil {
			t.Fatal(err)
		}
		if got.Strategy != model.StrategyShadowDOM || !got.Detected || got.ActionTaken {
			t.Errorf("unexpected result %+v", got)
		}
	})

	t.Run("infrastructure failure aborts", func(t *testing.T) {
		t.Parallel()
		var a, b int
		e := newTestEngine(WithStrategies(
			fakeStrategy{name: model.StrategyKnownCMP, err: browser.ErrInfrastructure, calls: &a},
			fakeStrategy{name: model.StrategyTextMatch, calls: &b},
		))
		if _, err := e.Handle(context.Background(), page, model.ConsentAccept); !errors.Is(err, browser.ErrInfrastructure) {
			t.Errorf("expected ErrInfrastructure, got %v", err)
		}
		if b != 0 {
			t.Error("cascade must stop after an infrastructure failure")
		}
	})

	t.Run("exhausted budget returns without error", func(t *testing.T) {
		t.Parallel()
		var a int
		e := newTestEngine(WithStrategies(fakeStrategy{name: model.StrategyKnownCMP, calls: &a}))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		got, err := e.Handle(ctx, page, model.ConsentAccept)
		if err != nil || got.Detected || a != 0 {
			t.Errorf("got %+v, %v after %d calls", got, err, a)
		}
	})
}
