package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoSites is returned when no site catalog is configured.
	ErrNoSites = errors.New("no site catalog specified: use --sites or sites_file")

	// ErrInvalidConcurrency is returned when the worker pool size is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidTimeout is returned when a page, consent or strategy timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxAttempts is returned when the attempt ceiling is not positive.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be positive")

	// ErrInvalidDelay is returned when a delay, dwell or scroll count is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrNoModes is returned when no valid consent mode is selected.
	ErrNoModes = errors.New("no valid consent mode selected")

	// ErrInvalidViewport is returned when the viewport is not positive.
	ErrInvalidViewport = errors.New("invalid viewport: width and height must be positive")

	// ErrInvalidLimit is returned when a limit or retry count is negative.
	ErrInvalidLimit = errors.New("invalid limit: must be non-negative")

	// ErrConfigNotFound is returned when an explicitly named configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
