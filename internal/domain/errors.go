package domain

import "errors"

var (
	// ErrValidation marks malformed input or configuration.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an unknown job, batch, or batch item id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks an operation that the entity's current state forbids,
	// e.g. fetching the result of a job that has not completed.
	ErrInvalidState = errors.New("invalid state")
	// ErrRateLimited marks a request rejected by admission control.
	ErrRateLimited = errors.New("rate limited")
	// ErrPollTimeout marks a wait that gave up before the entity reached a
	// terminal state. Distinct from the entity itself failing.
	ErrPollTimeout = errors.New("poll timeout")
)
