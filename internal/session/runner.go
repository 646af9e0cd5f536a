package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/footprint/internal/browser"
	"github.com/nao1215/footprint/internal/classify"
	"github.com/nao1215/footprint/internal/consent"
	"github.com/nao1215/footprint/internal/log"
	"github.com/nao1215/footprint/internal/model"
)

// Phase is a state of the session state machine:
//
//	pending → navigating → consent_handling → dwelling → capturing → persisting → done
//
// consent_handling is skipped in ignore mode. failed is reachable from every
// non-terminal phase.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseNavigating Phase = "navigating"
	PhaseConsent    Phase = "consent_handling"
	PhaseDwelling   Phase = "dwelling"
	PhaseCapturing  Phase = "capturing"
	PhasePersisting Phase = "persisting"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Timing holds the per-phase budgets of a session.
type Timing struct {
	PageLoadTimeout  time.Duration
	ConsentTimeout   time.Duration
	BannerWait       time.Duration
	PostConsentDwell time.Duration
	ScrollSteps      int
	ScrollDelay      time.Duration
	FinalDwell       time.Duration
}

// Sink receives terminal session results. Commit must write the result and
// its checkpoint atomically.
type Sink interface {
	Commit(ctx context.Context, r *model.SessionResult) error
}

// Runner executes one attempt of a crawl task in an isolated browser context.
// A Runner holds no per-task state and is safe for concurrent use.
type Runner struct {
	browser       browser.Browser
	engine        *consent.Engine
	classifier    *classify.Classifier
	sink          Sink
	timing        Timing
	env           browser.Options
	screenshotDir string
	onPhase       func(*model.CrawlTask, Phase)
	now           func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithTiming sets the phase budgets.
func WithTiming(t Timing) Option {
	return func(r *Runner) {
		r.timing = t
	}
}

// WithBrowserOptions sets the emulated visitor environment of every context.
func WithBrowserOptions(opts browser.Options) Option {
	return func(r *Runner) {
		r.env = opts
	}
}

// WithScreenshotDir enables a viewport screenshot per session.
func WithScreenshotDir(dir string) Option {
	return func(r *Runner) {
		r.screenshotDir = dir
	}
}

// WithPhaseHook registers fn to be called on every phase transition.
// fn is called from worker goroutines and must be safe for concurrent use.
func WithPhaseHook(fn func(*model.CrawlTask, Phase)) Option {
	return func(r *Runner) {
		r.onPhase = fn
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a Runner. sink may be nil, in which case Persist is a no-op.
func NewRunner(b browser.Browser, engine *consent.Engine, classifier *classify.Classifier, sink Sink, opts ...Option) *Runner {
	r := &Runner{
		browser:    b,
		engine:     engine,
		classifier: classifier,
		sink:       sink,
		timing: Timing{
			PageLoadTimeout: 45 * time.Second,
			ConsentTimeout:  15 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// session is the mutable state of one attempt.
type session struct {
	task       *model.CrawlTask
	result     *model.SessionResult
	siteDomain string
	start      time.Time
	bctx       browser.Context
	nav        *browser.Navigation
	before     map[cookieKey]bool
	logger     *slog.Logger
}

type cookieKey struct {
	name   string
	domain string
}

// step is one phase of the state machine.
type step interface {
	Phase() Phase
	Do(ctx context.Context, s *session) error
}

// Run executes one attempt of task up to and including the capturing phase.
//
// Site-level failures never surface as errors: they become the status of
// the returned result (timeout, error or blocked). The error is non-nil only
// when ctx ended before the attempt reached a terminal status; it then wraps
// ErrAbandoned and the result must not be checkpointed.
func (r *Runner) Run(ctx context.Context, runID string, task *model.CrawlTask) (*model.SessionResult, error) {
	s := &session{
		task:       task,
		result:     model.NewSessionResult(runID, task),
		siteDomain: classify.RegistrableDomain(task.Site.Domain),
		logger:     log.FromContext(ctx),
	}
	s.start = r.now()
	s.result.StartedAt = s.start
	r.enter(task, PhasePending)

	err := r.execute(ctx, s)
	if err != nil && s.bctx != nil && s.result.Requests == nil {
		// Keep what was observed before the failure.
		s.result.Requests = r.classifyRequests(s)
	}
	if s.bctx != nil {
		if cerr := s.bctx.Close(); cerr != nil {
			s.logger.Debug("failed to close browser context", "error", cerr)
		}
	}
	s.result.CompletedAt = r.now()

	if err == nil {
		s.result.Status = model.StatusSuccess
		return s.result, nil
	}

	r.enter(task, PhaseFailed)
	if ctx.Err() != nil {
		s.result.Fail(model.StatusError, err)
		return s.result, fmt.Errorf("%w: %s: %w", ErrAbandoned, task, ctx.Err())
	}
	status := statusOf(err)
	s.result.Fail(status, err)
	s.logger.Info("session failed", "status", status, "error", err)
	return s.result, nil
}

// Persist runs the persisting phase for a terminal result.
func (r *Runner) Persist(ctx context.Context, task *model.CrawlTask, result *model.SessionResult) error {
	if r.sink == nil {
		return nil
	}
	r.enter(task, PhasePersisting)
	if err := r.sink.Commit(ctx, result); err != nil {
		return err
	}
	if result.Status == model.StatusSuccess {
		r.enter(task, PhaseDone)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, s *session) error {
	steps := []step{navigateStep{r}, consentStep{r}, dwellStep{r}, captureStep{r}}
	for _, st := range steps {
		if st.Phase() == PhaseConsent && s.task.Mode == model.ConsentIgnore {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r.enter(s.task, st.Phase())
		if err := st.Do(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", st.Phase(), err)
		}
	}
	return nil
}

func (r *Runner) enter(task *model.CrawlTask, p Phase) {
	if r.onPhase != nil {
		r.onPhase(task, p)
	}
}

// statusOf maps a session error to its terminal status.
func statusOf(err error) model.Status {
	switch {
	case errors.Is(err, ErrBlocked):
		return model.StatusBlocked
	case errors.Is(err, browser.ErrNavigationTimeout):
		return model.StatusTimeout
	default:
		return model.StatusError
	}
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
