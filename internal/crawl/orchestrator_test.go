package crawl

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/footprint/internal/log"
	"github.com/nao1215/footprint/internal/model"
	"github.com/nao1215/footprint/internal/session"
	"github.com/nao1215/footprint/internal/store"
)

// fakeRunner scripts the status of each attempt per task key.
type fakeRunner struct {
	mu        sync.Mutex
	script    map[model.TaskKey][]model.Status
	runs      []string
	started   []time.Time
	persisted []*model.SessionResult

	// hold blocks Run until it is closed or the context ends.
	hold    chan struct{}
	running chan struct{}

	persistErr   error
	persistFails int
}

func (f *fakeRunner) Run(ctx context.Context, runID string, task *model.CrawlTask) (*model.SessionResult, error) {
	f.mu.Lock()
	f.runs = append(f.runs, task.String())
	f.started = append(f.started, time.Now())
	status := model.StatusSuccess
	if s := f.script[task.Key()]; len(s) > 0 {
		status = s[min(task.Attempt, len(s))-1]
	}
	f.mu.Unlock()

	res := model.NewSessionResult(runID, task)
	if f.running != nil {
		f.running <- struct{}{}
	}
	if f.hold != nil {
		select {
		case <-f.hold:
		case <-ctx.Done():
			res.Fail(model.StatusError, ctx.Err())
			return res, fmt.Errorf("%w: %s", session.ErrAbandoned, task)
		}
	}
	if status == model.StatusSuccess {
		res.Status = status
		return res, nil
	}
	res.Fail(status, errors.New(string(status)))
	return res, nil
}

func (f *fakeRunner) Persist(_ context.Context, _ *model.CrawlTask, result *model.SessionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistFails > 0 {
		f.persistFails--
		return f.persistErr
	}
	f.persisted = append(f.persisted, result)
	return nil
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func (f *fakeRunner) results() []*model.SessionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.persisted)
}

type fakeCheckpoints map[model.TaskKey]bool

func (f fakeCheckpoints) CompletedTasks(context.Context) (map[model.TaskKey]bool, error) {
	return f, nil
}

func newTestOrchestrator(r SessionRunner, opts ...Option) *Orchestrator {
	base := []Option{
		WithLogger(log.Discard()),
		WithConcurrency(2),
		WithRetryBackoff(time.Millisecond),
		WithPersistRetries(3, time.Millisecond),
		WithRunID("run-test"),
	}
	return NewOrchestrator(r, append(base, opts...)...)
}

var acceptOnly = []model.ConsentMode{model.ConsentAccept}

// TestOrchestratorRun tests scheduling, retries and persistence.
func TestOrchestratorRun(t *testing.T) {
	t.Parallel()

	t.Run("every task runs once and is persisted", func(t *testing.T) {
		t.Parallel()

		f := &fakeRunner{}
		sum, err := newTestOrchestrator(f).Run(context.Background(), testSites("a.cz", "b.cz"), model.AllConsentModes())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if f.runCount() != 6 || len(f.results()) != 6 {
			t.Errorf("runs = %d, persisted = %d, want 6 and 6", f.runCount(), len(f.results()))
		}
		if sum.Total != 6 || sum.Completed != 6 || sum.ByStatus[model.StatusSuccess] != 6 || sum.Remaining() != 0 {
			t.Errorf("unexpected summary %+v", sum.Stats)
		}
		if sum.RunID != "run-test" {
			t.Errorf("RunID = %q", sum.RunID)
		}
		for _, r := range f.results() {
			if r.RunID != "run-test" || r.Attempt != 1 {
				t.Errorf("unexpected result %s attempt %d run %q", r.Key(), r.Attempt, r.RunID)
			}
		}
	})

	t.Run("timeouts are retried until success", func(t *testing.T) {
		t.Parallel()

		key := model.TaskKey{Domain: "a.cz", Mode: model.ConsentAccept}
		f := &fakeRunner{script: map[model.TaskKey][]model.Status{
			key: {model.StatusTimeout, model.StatusTimeout, model.StatusSuccess},
		}}
		sum, err := newTestOrchestrator(f).Run(context.Background(), testSites("a.cz"), acceptOnly)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		got := f.results()
		if f.runCount() != 3 || len(got) != 1 {
			t.Fatalf("runs = %d, persisted = %d, want 3 and 1", f.runCount(), len(got))
		}
		if got[0].Status != model.StatusSuccess || got[0].Attempt != 3 {
			t.Errorf("persisted %s at attempt %d", got[0].Status, got[0].Attempt)
		}
		if sum.Retries != 2 || sum.Dispatched != 3 {
			t.Errorf("unexpected summary %+v", sum.Stats)
		}
	})

	t.Run("errors stop at the attempt limit", func(t *testing.T) {
		t.Parallel()

		key := model.TaskKey{Domain: "a.cz", Mode: model.ConsentAccept}
		f := &fakeRunner{script: map[model.TaskKey][]model.Status{key: {model.StatusError}}}
		sum, err := newTestOrchestrator(f, WithMaxAttempts(2)).Run(context.Background(), testSites("a.cz"), acceptOnly)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		got := f.results()
		if f.runCount() != 2 || len(got) != 1 || got[0].Status != model.StatusError {
			t.Fatalf("runs = %d, persisted = %v", f.runCount(), got)
		}
		if sum.ByStatus[model.StatusError] != 1 {
			t.Errorf("unexpected summary %+v", sum.Stats)
		}
	})

	t.Run("blocked results are not retried", func(t *testing.T) {
		t.Parallel()

		key := model.TaskKey{Domain: "a.cz", Mode: model.ConsentAccept}
		f := &fakeRunner{script: map[model.TaskKey][]model.Status{key: {model.StatusBlocked}}}
		if _, err := newTestOrchestrator(f).Run(context.Background(), testSites("a.cz"), acceptOnly); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if f.runCount() != 1 {
			t.Errorf("runs = %d, want 1", f.runCount())
		}
	})

	t.Run("resume dispatches only unfinished tasks", func(t *testing.T) {
		t.Parallel()

		done := fakeCheckpoints{
			{Domain: "a.cz", Mode: model.ConsentAccept}: true,
			{Domain: "a.cz", Mode: model.ConsentReject}: true,
			{Domain: "b.cz", Mode: model.ConsentReject}: true,
		}
		f := &fakeRunner{}
		modes := []model.ConsentMode{model.ConsentAccept, model.ConsentReject}
		sum, err := newTestOrchestrator(f, WithResume(done)).Run(context.Background(), testSites("a.cz", "b.cz"), modes)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !slices.Equal(f.runs, []string{"b.cz/accept#1"}) {
			t.Errorf("runs = %v", f.runs)
		}
		if sum.Skipped != 3 || sum.Total != 1 {
			t.Errorf("unexpected summary %+v", sum.Stats)
		}
	})

	t.Run("transient persistence failures are retried", func(t *testing.T) {
		t.Parallel()

		f := &fakeRunner{persistErr: store.ErrPersistence, persistFails: 2}
		if _, err := newTestOrchestrator(f).Run(context.Background(), testSites("a.cz"), acceptOnly); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(f.results()) != 1 {
			t.Errorf("persisted = %d, want 1", len(f.results()))
		}
	})

	t.Run("exhausted persistence aborts the run", func(t *testing.T) {
		t.Parallel()

		f := &fakeRunner{persistErr: store.ErrPersistence, persistFails: 100}
		o := newTestOrchestrator(f, WithConcurrency(1), WithPersistRetries(1, time.Millisecond))
		sum, err := o.Run(context.Background(), testSites("a.cz", "b.cz"), acceptOnly)
		if !errors.Is(err, ErrRunAborted) || !errors.Is(err, store.ErrPersistence) {
			t.Fatalf("Run() error = %v, want ErrRunAborted wrapping ErrPersistence", err)
		}
		if f.runCount() != 1 || sum.Completed != 0 {
			t.Errorf("runs = %d, completed = %d", f.runCount(), sum.Completed)
		}
	})

	t.Run("an attempt committed before a lost acknowledgement counts as done", func(t *testing.T) {
		t.Parallel()

		f := &fakeRunner{persistErr: store.ErrAlreadyCommitted, persistFails: 1}
		sum, err := newTestOrchestrator(f).Run(context.Background(), testSites("a.cz"), acceptOnly)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if sum.Completed != 1 || f.runCount() != 1 {
			t.Errorf("completed = %d, runs = %d", sum.Completed, f.runCount())
		}
	})

	t.Run("same site dispatches keep the inter-task gap", func(t *testing.T) {
		t.Parallel()

		f := &fakeRunner{}
		gap := 40 * time.Millisecond
		o := newTestOrchestrator(f, WithConcurrency(3), WithInterTaskDelay(gap))
		if _, err := o.Run(context.Background(), testSites("a.cz"), model.AllConsentModes()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		slices.SortFunc(f.started, func(a, b time.Time) int { return a.Compare(b) })
		for i := 1; i < len(f.started); i++ {
			if d := f.started[i].Sub(f.started[i-1]); d < gap/2 {
				t.Errorf("dispatch %d followed the previous one after %v", i, d)
			}
		}
	})
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	finished int
	retrying int
}

func (c *countingObserver) TaskStarted(*model.CrawlTask, Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *countingObserver) TaskFinished(_ *model.CrawlTask, _ *model.SessionResult, willRetry bool, _ Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished++
	if willRetry {
		c.retrying++
	}
}

// TestOrchestratorObserver tests progress notifications.
func TestOrchestratorObserver(t *testing.T) {
	t.Parallel()

	key := model.TaskKey{Domain: "b.cz", Mode: model.ConsentAccept}
	f := &fakeRunner{script: map[model.TaskKey][]model.Status{key: {model.StatusTimeout, model.StatusSuccess}}}
	obs := &countingObserver{}
	if _, err := newTestOrchestrator(f, WithObserver(obs)).Run(context.Background(), testSites("a.cz", "b.cz"), acceptOnly); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if obs.started != 3 || obs.finished != 3 || obs.retrying != 1 {
		t.Errorf("observer saw started=%d finished=%d retrying=%d", obs.started, obs.finished, obs.retrying)
	}
}

// TestOrchestratorShutdown tests cancellation of a running crawl.
func TestOrchestratorShutdown(t *testing.T) {
	t.Parallel()

	t.Run("sessions finishing within the grace period are persisted", func(t *testing.T) {
		t.Parallel()

		f := &fakeRunner{hold: make(chan struct{}), running: make(chan struct{}, 4)}
		o := newTestOrchestrator(f, WithShutdownGrace(5*time.Second))
		ctx, cancel := context.WithCancel(context.Background())

		type outcome struct {
			sum *Summary
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			sum, err := o.Run(ctx, testSites("a.cz", "b.cz"), acceptOnly)
			done <- outcome{sum, err}
		}()
		<-f.running
		<-f.running
		cancel()
		close(f.hold)

		out := <-done
		if !errors.Is(out.err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", out.err)
		}
		if len(f.results()) != 2 || out.sum.Completed != 2 || out.sum.Abandoned != 0 {
			t.Errorf("persisted = %d, summary %+v", len(f.results()), out.sum.Stats)
		}
	})

	t.Run("sessions outliving the grace period are abandoned", func(t *testing.T) {
		t.Parallel()

		f := &fakeRunner{hold: make(chan struct{}), running: make(chan struct{}, 4)}
		o := newTestOrchestrator(f, WithShutdownGrace(20*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer close(f.hold)

		done := make(chan *Summary, 1)
		go func() {
			sum, _ := o.Run(ctx, testSites("a.cz", "b.cz", "c.cz"), acceptOnly)
			done <- sum
		}()
		<-f.running
		<-f.running
		cancel()

		sum := <-done
		if len(f.results()) != 0 {
			t.Errorf("abandoned sessions were persisted: %v", f.results())
		}
		if sum.Abandoned != 2 || sum.Completed != 0 || sum.Remaining() != 3 {
			t.Errorf("unexpected summary %+v", sum.Stats)
		}
		if f.runCount() != 2 {
			t.Errorf("runs = %d, want 2", f.runCount())
		}
	})

	t.Run("a failure waiting for its retry is flushed", func(t *testing.T) {
		t.Parallel()

		key := model.TaskKey{Domain: "a.cz", Mode: model.ConsentAccept}
		f := &fakeRunner{script: map[model.TaskKey][]model.Status{key: {model.StatusTimeout}}}
		ctx, cancel := context.WithCancel(context.Background())
		o := newTestOrchestrator(f, WithRetryBackoff(time.Hour), WithObserver(&retryCanceler{cancel: cancel}))

		sum, err := o.Run(ctx, testSites("a.cz"), acceptOnly)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
		got := f.results()
		if len(got) != 1 || got[0].Status != model.StatusTimeout || got[0].Attempt != 1 {
			t.Fatalf("persisted = %v", got)
		}
		if sum.Completed != 1 {
			t.Errorf("unexpected summary %+v", sum.Stats)
		}
	})
}

// retryCanceler cancels the run as soon as a retry is scheduled.
type retryCanceler struct {
	cancel context.CancelFunc
}

func (r *retryCanceler) TaskStarted(*model.CrawlTask, Stats) {}

func (r *retryCanceler) TaskFinished(_ *model.CrawlTask, _ *model.SessionResult, willRetry bool, _ Stats) {
	if willRetry {
		r.cancel()
	}
}
