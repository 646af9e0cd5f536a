package model

// Status is the terminal outcome of a session.
type Status string

const (
	// StatusSuccess means the page loaded and all observations were captured.
	StatusSuccess Status = "success"
	// StatusTimeout means navigation did not complete in time.
	StatusTimeout Status = "timeout"
	// StatusError covers browser infrastructure failures and unexpected errors.
	StatusError Status = "error"
	// StatusBlocked means the target served an anti-bot or access-denied page.
	StatusBlocked Status = "blocked"
)

// Retryable reports whether the orchestrator may try the task again.
// Blocked results are terminal: retrying a block page produces the same block page.
func (s Status) Retryable() bool {
	return s == StatusTimeout || s == StatusError
}

// String returns the status name.
func (s Status) String() string {
	return string(s)
}
