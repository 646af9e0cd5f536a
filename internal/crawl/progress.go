package crawl

import (
	"maps"
	"sync"

	"github.com/nao1215/footprint/internal/model"
)

// Stats is a snapshot of run progress.
type Stats struct {
	// Total is the number of tasks scheduled after the resume filter.
	Total int

	// Skipped tasks already had a success checkpoint.
	Skipped int

	// Dispatched counts attempts, including retries.
	Dispatched int

	// Completed tasks reached a persisted terminal result.
	Completed int

	InFlight  int
	Retries   int
	Abandoned int

	ByStatus map[model.Status]int
}

// Remaining returns the number of tasks without a terminal result.
func (s Stats) Remaining() int {
	return s.Total - s.Completed
}

// Observer is notified about task progress. Calls come from worker
// goroutines; implementations must be safe for concurrent use.
type Observer interface {
	TaskStarted(task *model.CrawlTask, stats Stats)
	TaskFinished(task *model.CrawlTask, result *model.SessionResult, willRetry bool, stats Stats)
}

// progress is the orchestrator-owned mutable run state shared by workers.
type progress struct {
	mu sync.Mutex
	s  Stats
}

func newProgress(total, skipped int) *progress {
	return &progress{s: Stats{
		Total:    total,
		Skipped:  skipped,
		ByStatus: make(map[model.Status]int),
	}}
}

func (p *progress) update(fn func(*Stats)) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.s)
	return p.snapshotLocked()
}

func (p *progress) snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *progress) snapshotLocked() Stats {
	s := p.s
	s.ByStatus = maps.Clone(p.s.ByStatus)
	return s
}
