package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/nao1215/footprint/internal/browser"
	"github.com/nao1215/footprint/internal/browser/fixture"
	"github.com/nao1215/footprint/internal/classify"
	"github.com/nao1215/footprint/internal/consent"
	"github.com/nao1215/footprint/internal/log"
	"github.com/nao1215/footprint/internal/model"
	"github.com/nao1215/footprint/internal/session"
	"github.com/nao1215/footprint/internal/store"
	"github.com/nao1215/footprint/internal/taxonomy"
)

func bannerSite(title string) *fixture.Site {
	return &fixture.Site{
		HTML: `<html><head><title>` + title + `</title></head><body>
<div id="CybotCookiebotDialog"><button id="CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll">Povolit vše</button>
<button id="CybotCookiebotDialogBodyButtonDecline">Odmítnout</button></div></body></html>`,
		ConsentRequests: []browser.RawRequest{
			{URL: "https://connect.facebook.net/en_US/fbevents.js", ResourceType: "Script", StatusCode: 200},
		},
	}
}

// TestOrchestratorWithStore tests a crawl against the fixture browser and a
// real store, including a resumed second run.
func TestOrchestratorWithStore(t *testing.T) {
	t.Parallel()

	st, err := store.Open(t.TempDir(), store.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	sites := testSites("a.cz", "b.cz")
	b := fixture.NewBrowser()
	b.Serve(sites[0].URL, bannerSite("A"))
	flaky := bannerSite("B")
	flaky.NavigateErrs = []error{browser.ErrNavigationTimeout}
	b.Serve(sites[1].URL, flaky)

	engine := consent.NewEngine(consent.DefaultRules(),
		consent.WithStrategyTimeout(time.Second),
		consent.WithRevealSettle(0),
	)
	runner := session.NewRunner(b, engine, classify.New(taxonomy.Builtin()), st,
		session.WithTiming(session.Timing{PageLoadTimeout: 2 * time.Second, ConsentTimeout: 2 * time.Second}),
	)
	newRun := func() *Orchestrator {
		return NewOrchestrator(runner,
			WithLogger(log.Discard()),
			WithConcurrency(2),
			WithRetryBackoff(time.Millisecond),
			WithResume(st),
		)
	}

	ctx := context.Background()
	sum, err := newRun().Run(ctx, sites, acceptOnly)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if sum.ByStatus[model.StatusSuccess] != 2 || sum.Retries != 1 {
		t.Errorf("unexpected first summary %+v", sum.Stats)
	}

	cp, err := st.Checkpoint(ctx, model.TaskKey{Domain: "b.cz", Mode: model.ConsentAccept})
	if err != nil || cp == nil {
		t.Fatalf("Checkpoint() = %v, %v", cp, err)
	}
	if cp.Status != model.StatusSuccess || cp.Attempts != 2 {
		t.Errorf("checkpoint %+v, want success at attempt 2", cp)
	}

	opened := b.Opened()
	sum, err = newRun().Run(ctx, sites, acceptOnly)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if sum.Total != 0 || sum.Skipped != 2 || b.Opened() != opened {
		t.Errorf("resumed run crawled again: %+v", sum.Stats)
	}

	for _, s := range sites {
		n, err := st.SessionCount(ctx, model.TaskKey{Domain: s.Domain, Mode: model.ConsentAccept})
		if err != nil {
			t.Fatalf("SessionCount() error = %v", err)
		}
		if n != 1 {
			t.Errorf("%s has %d sessions, want 1", s.Domain, n)
		}
	}
}

// TestOrchestratorRecrawl tests that a run without resume crawls completed
// tasks again and stores every new result.
func TestOrchestratorRecrawl(t *testing.T) {
	t.Parallel()

	st, err := store.Open(t.TempDir(), store.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	sites := testSites("a.cz")
	b := fixture.NewBrowser()
	b.Serve(sites[0].URL, bannerSite("A"))

	engine := consent.NewEngine(consent.DefaultRules(),
		consent.WithStrategyTimeout(time.Second),
		consent.WithRevealSettle(0),
	)
	runner := session.NewRunner(b, engine, classify.New(taxonomy.Builtin()), st,
		session.WithTiming(session.Timing{PageLoadTimeout: 2 * time.Second, ConsentTimeout: 2 * time.Second}),
	)

	ctx := context.Background()
	key := model.TaskKey{Domain: "a.cz", Mode: model.ConsentAccept}
	var lastRun string
	for i := 1; i <= 2; i++ {
		o := NewOrchestrator(runner, WithLogger(log.Discard()))
		sum, err := o.Run(ctx, sites, acceptOnly)
		if err != nil {
			t.Fatalf("run %d: Run() error = %v", i, err)
		}
		if sum.Completed != 1 || sum.ByStatus[model.StatusSuccess] != 1 {
			t.Errorf("run %d: unexpected summary %+v", i, sum.Stats)
		}
		n, err := st.SessionCount(ctx, key)
		if err != nil {
			t.Fatalf("SessionCount() error = %v", err)
		}
		if n != i {
			t.Errorf("run %d: %d stored sessions, want %d", i, n, i)
		}
		stats, err := st.Stats(ctx, o.RunID(), 5)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.ByStatus[model.StatusSuccess] != sum.ByStatus[model.StatusSuccess] {
			t.Errorf("run %d: summary counts %d successes, store has %d",
				i, sum.ByStatus[model.StatusSuccess], stats.ByStatus[model.StatusSuccess])
		}
		lastRun = o.RunID()
	}
	if b.Opened() != 2 {
		t.Errorf("opened %d contexts, want 2", b.Opened())
	}

	cp, err := st.Checkpoint(ctx, key)
	if err != nil || cp == nil {
		t.Fatalf("Checkpoint() = %v, %v", cp, err)
	}
	stats, err := st.Stats(ctx, lastRun, 5)
	if err != nil {
		t.Fatal(err)
	}
	if cp.Status != model.StatusSuccess || stats.Sessions != 1 {
		t.Errorf("checkpoint %+v, sessions in last run %d", cp, stats.Sessions)
	}
}
