package model

import "fmt"

// TaskKey identifies a (site, mode) pair.
// It is the unit of checkpointing: at most one successful result exists per key.
type TaskKey struct {
	Domain string
	Mode   ConsentMode
}

// String returns "domain/mode".
func (k TaskKey) String() string {
	return fmt.Sprintf("%s/%s", k.Domain, k.Mode)
}

// CrawlTask is one (site, consent-mode) unit of work.
// Attempt is owned by the orchestrator and incremented on every dispatch.
type CrawlTask struct {
	Site    Site
	Mode    ConsentMode
	Attempt int
}

// NewCrawlTask creates a task that has not been attempted yet.
func NewCrawlTask(site Site, mode ConsentMode) *CrawlTask {
	return &CrawlTask{Site: site, Mode: mode}
}

// Key returns the checkpoint key of the task.
func (t *CrawlTask) Key() TaskKey {
	return TaskKey{Domain: t.Site.Domain, Mode: t.Mode}
}

// String is used in log lines.
func (t *CrawlTask) String() string {
	return fmt.Sprintf("%s/%s#%d", t.Site.Domain, t.Mode, t.Attempt)
}

// CanRetry reports whether a result with status s may be re-enqueued.
// maxAttempts is the total number of attempts allowed, including the first.
func (t *CrawlTask) CanRetry(s Status, maxAttempts int) bool {
	return s.Retryable() && t.Attempt < maxAttempts
}
