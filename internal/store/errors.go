package store

import "errors"

var (
	// ErrPersistence wraps every failure of the underlying database.
	// The orchestrator retries persistence on it; the browsing work is not repeated.
	ErrPersistence = errors.New("failed to persist result")

	// ErrAlreadyCommitted is returned when the same attempt of a run is
	// committed twice, e.g. a persistence retry after a lost acknowledgement.
	ErrAlreadyCommitted = errors.New("attempt already committed")
)
