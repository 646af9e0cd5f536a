package session

import "errors"

var (
	// ErrBlocked is returned when the target served an anti-bot or
	// access-denied response. Blocked sessions are not retried.
	ErrBlocked = errors.New("blocked by target")

	// ErrAbandoned is returned when the session was cut off by cancellation
	// before it reached a terminal status. Abandoned sessions get no checkpoint.
	ErrAbandoned = errors.New("session abandoned")
)
