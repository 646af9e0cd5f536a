package browser

import "errors"

var (
	// ErrNavigationTimeout is returned when the page did not load in time.
	ErrNavigationTimeout = errors.New("navigation timed out")

	// ErrInfrastructure wraps failures of the browser itself (crash, lost
	// connection, context creation failure).
	ErrInfrastructure = errors.New("browser infrastructure failure")

	// ErrNoElement is returned when a selector matches no visible element.
	ErrNoElement = errors.New("no matching visible element")

	// ErrStaleControl is returned when a control disappeared before it was pressed.
	ErrStaleControl = errors.New("control is no longer attached")
)
