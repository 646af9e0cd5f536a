package catalog

import "errors"

var (
	// ErrEmptyCatalog is returned when a catalog lists no sites.
	ErrEmptyCatalog = errors.New("site catalog is empty")

	// ErrMissingURLColumn is returned when a CSV header has no url column.
	ErrMissingURLColumn = errors.New("csv catalog must contain a 'url' header column")

	// ErrInvalidSite is returned for an entry whose URL or rank cannot be used.
	ErrInvalidSite = errors.New("invalid site entry")
)
