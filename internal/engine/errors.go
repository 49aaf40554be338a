package engine

import "errors"

var (
	// ErrNotFound is returned when a user id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable wraps rule store, directory and audit sink I/O failures.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidRule is returned when a rule record fails validation.
	ErrInvalidRule = errors.New("invalid guardrail rule")

	// ErrConflict is returned when a rule name is already taken.
	ErrConflict = errors.New("already exists")

	// ErrAlreadyMasked is returned when a salary value has already been bucketed.
	ErrAlreadyMasked = errors.New("salary already masked")
)
