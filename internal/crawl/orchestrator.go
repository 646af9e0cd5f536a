package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/footprint/internal/log"
	"github.com/nao1215/footprint/internal/model"
	"github.com/nao1215/footprint/internal/session"
	"github.com/nao1215/footprint/internal/store"
)

// SessionRunner executes and persists single attempts. *session.Runner
// implements it.
type SessionRunner interface {
	Run(ctx context.Context, runID string, task *model.CrawlTask) (*model.SessionResult, error)
	Persist(ctx context.Context, task *model.CrawlTask, result *model.SessionResult) error
}

// CheckpointReader lists the tasks that already completed successfully.
type CheckpointReader interface {
	CompletedTasks(ctx context.Context) (map[model.TaskKey]bool, error)
}

// Summary describes a finished run.
type Summary struct {
	RunID   string
	Elapsed time.Duration
	Stats
}

// Orchestrator runs the task matrix over a pool of workers.
type Orchestrator struct {
	runner      SessionRunner
	checkpoints CheckpointReader
	observer    Observer
	logger      *slog.Logger
	runID       string

	concurrency    int
	maxAttempts    int
	retryBackoff   time.Duration
	interTaskDelay time.Duration
	shutdownGrace  time.Duration
	persistRetries int
	persistBackoff time.Duration
	persistTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency sets the number of workers. Default is 8.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithMaxAttempts sets the total number of attempts for retryable results.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the delay before the first retry. It doubles for
// every further attempt.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.retryBackoff = d
	}
}

// WithInterTaskDelay sets the minimum gap between two dispatches to the
// same site.
func WithInterTaskDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.interTaskDelay = d
	}
}

// WithShutdownGrace sets how long in-flight sessions may keep running after
// the run context is cancelled.
func WithShutdownGrace(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.shutdownGrace = d
	}
}

// WithPersistRetries sets how often a failed commit is retried and the delay
// before the first retry.
func WithPersistRetries(n int, backoff time.Duration) Option {
	return func(o *Orchestrator) {
		o.persistRetries = n
		o.persistBackoff = backoff
	}
}

// WithResume skips tasks that cp reports as completed.
func WithResume(cp CheckpointReader) Option {
	return func(o *Orchestrator) {
		o.checkpoints = cp
	}
}

// WithObserver registers a progress observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.runID = id
		}
	}
}

// NewOrchestrator creates an orchestrator that executes tasks with runner.
func NewOrchestrator(runner SessionRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:         runner,
		runID:          uuid.NewString(),
		concurrency:    8,
		maxAttempts:    3,
		retryBackoff:   2 * time.Second,
		shutdownGrace:  90 * time.Second,
		persistRetries: 5,
		persistBackoff: 500 * time.Millisecond,
		persistTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// RunID returns the identifier stamped on every result of this orchestrator.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// item is one queued dispatch. last holds the previous failed result of a
// task waiting for its retry.
type item struct {
	task *model.CrawlTask
	last *model.SessionResult
}

// run is the state shared by the workers of one Run call.
type run struct {
	queue       chan item
	outstanding atomic.Int64
	allDone     chan struct{}
	doneOnce    sync.Once
	retries     sync.WaitGroup
	progress    *progress
}

func (r *run) complete() {
	if r.outstanding.Add(-1) == 0 {
		r.doneOnce.Do(func() { close(r.allDone) })
	}
}

// requeue puts it back without blocking. The queue holds one slot per task
// so the send always succeeds.
func (r *run) requeue(it item) {
	select {
	case r.queue <- it:
	default:
	}
}

// Run crawls every (site, mode) pair of the catalog.
//
// Cancelling ctx stops dispatching new tasks. Sessions already running get
// the shutdown grace period to finish; results completed by then are
// persisted, everything else is abandoned without a checkpoint. Run returns
// ErrRunAborted when a result could not be persisted.
func (o *Orchestrator) Run(ctx context.Context, sites []model.Site, modes []model.ConsentMode) (*Summary, error) {
	start := time.Now()
	tasks := BuildMatrix(sites, modes)
	matrix := len(tasks)

	if o.checkpoints != nil {
		done, err := o.checkpoints.CompletedTasks(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoints: %w", err)
		}
		tasks = withoutCompleted(tasks, done)
	}

	logger := o.logger.With("run_id", o.runID)
	logger.Info("starting crawl run",
		"sites", len(sites),
		"tasks", len(tasks),
		"skipped", matrix-len(tasks),
		"concurrency", o.concurrency,
	)

	r := &run{
		queue:    make(chan item, len(tasks)),
		allDone:  make(chan struct{}),
		progress: newProgress(len(tasks), matrix-len(tasks)),
	}
	r.outstanding.Store(int64(len(tasks)))
	for _, t := range tasks {
		r.queue <- item{task: t}
	}
	if len(tasks) == 0 {
		close(r.allDone)
	}

	// Sessions run on workCtx, which outlives ctx by the shutdown grace.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	g, dispatchCtx := errgroup.WithContext(ctx)
	finished := make(chan struct{})
	go func() {
		select {
		case <-dispatchCtx.Done():
			timer := time.NewTimer(o.shutdownGrace)
			defer timer.Stop()
			select {
			case <-timer.C:
				cancelWork()
			case <-finished:
			}
		case <-finished:
		}
	}()

	limiter := newSiteLimiter(o.interTaskDelay)
	for range o.concurrency {
		g.Go(func() error {
			return o.work(dispatchCtx, log.WithContext(workCtx, logger), r, limiter)
		})
	}
	err := g.Wait()
	r.retries.Wait()
	close(finished)

	// Flush failures that were waiting for a retry when the run stopped.
	flushErr := o.flush(log.WithContext(workCtx, logger), r)
	if err == nil {
		err = flushErr
	}

	sum := &Summary{RunID: o.runID, Elapsed: time.Since(start), Stats: r.progress.snapshot()}
	logger.Info("crawl run finished",
		"completed", sum.Completed,
		"remaining", sum.Remaining(),
		"retries", sum.Retries,
		"abandoned", sum.Abandoned,
		"elapsed", sum.Elapsed,
	)
	if err != nil {
		return sum, err
	}
	if ctx.Err() != nil {
		return sum, ctx.Err()
	}
	return sum, nil
}

func (o *Orchestrator) work(dispatchCtx, workCtx context.Context, r *run, limiter *siteLimiter) error {
	for {
		select {
		case <-dispatchCtx.Done():
			return nil
		case <-r.allDone:
			return nil
		case it := <-r.queue:
			if dispatchCtx.Err() != nil {
				r.requeue(it)
				return nil
			}
			if err := o.dispatch(dispatchCtx, workCtx, r, limiter, it); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) dispatch(dispatchCtx, workCtx context.Context, r *run, limiter *siteLimiter, it item) error {
	task := it.task
	if err := limiter.Wait(dispatchCtx, task.Site.Domain); err != nil {
		r.requeue(it)
		return nil
	}

	task.Attempt++
	logger := log.FromContext(workCtx).With(
		"site", task.Site.Domain,
		"mode", string(task.Mode),
		"attempt", task.Attempt,
	)
	ctx := log.WithContext(workCtx, logger)

	stats := r.progress.update(func(s *Stats) {
		s.Dispatched++
		s.InFlight++
	})
	if o.observer != nil {
		o.observer.TaskStarted(task, stats)
	}

	result, err := o.runner.Run(ctx, o.runID, task)
	if errors.Is(err, session.ErrAbandoned) {
		logger.Warn("session abandoned at shutdown")
		stats = r.progress.update(func(s *Stats) {
			s.InFlight--
			s.Abandoned++
		})
		if o.observer != nil {
			o.observer.TaskFinished(task, result, false, stats)
		}
		r.complete()
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRunAborted, task, err)
	}

	if task.CanRetry(result.Status, o.maxAttempts) && dispatchCtx.Err() == nil {
		delay := o.backoff(task.Attempt)
		logger.Info("scheduling retry", "status", result.Status, "delay", delay)
		stats = r.progress.update(func(s *Stats) {
			s.InFlight--
			s.Retries++
		})
		if o.observer != nil {
			o.observer.TaskFinished(task, result, true, stats)
		}
		o.scheduleRetry(dispatchCtx, r, item{task: task, last: result}, delay)
		return nil
	}

	r.progress.update(func(s *Stats) { s.InFlight-- })
	return o.finish(ctx, r, task, result)
}

// backoff returns the delay after the given attempt: base * 2^(attempt-1).
func (o *Orchestrator) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return o.retryBackoff << (attempt - 1)
}

func (o *Orchestrator) scheduleRetry(dispatchCtx context.Context, r *run, it item, delay time.Duration) {
	r.retries.Add(1)
	go func() {
		defer r.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-dispatchCtx.Done():
		}
		r.requeue(it)
	}()
}

// finish persists a terminal result and marks the task complete.
func (o *Orchestrator) finish(ctx context.Context, r *run, task *model.CrawlTask, result *model.SessionResult) error {
	if err := o.persist(ctx, task, result); err != nil {
		return err
	}
	stats := r.progress.update(func(s *Stats) {
		s.Completed++
		s.ByStatus[result.Status]++
	})
	if o.observer != nil {
		o.observer.TaskFinished(task, result, false, stats)
	}
	r.complete()
	return nil
}

// persist commits result, retrying transient failures. Persistence is not
// bound to the session context so completed work survives a shutdown.
func (o *Orchestrator) persist(ctx context.Context, task *model.CrawlTask, result *model.SessionResult) error {
	logger := log.FromContext(ctx)
	base := context.WithoutCancel(ctx)
	delay := o.persistBackoff
	for attempt := 0; ; attempt++ {
		pctx, cancel := context.WithTimeout(base, o.persistTimeout)
		err := o.runner.Persist(pctx, task, result)
		cancel()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, store.ErrAlreadyCommitted):
			logger.Debug("attempt was already committed", "error", err)
			return nil
		case attempt >= o.persistRetries:
			logger.Error("failed to persist result", "error", err)
			return fmt.Errorf("%w: %s: %w", ErrRunAborted, task, err)
		}
		logger.Warn("retrying persistence", "error", err, "retry", attempt+1)
		time.Sleep(delay)
		delay *= 2
	}
}

// flush persists the last failure of every task still queued with one.
// Tasks never dispatched in this run are left for the next resume.
func (o *Orchestrator) flush(ctx context.Context, r *run) error {
	var firstErr error
	for {
		select {
		case it := <-r.queue:
			if it.last == nil {
				continue
			}
			if err := o.finish(ctx, r, it.task, it.last); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			return firstErr
		}
	}
}
