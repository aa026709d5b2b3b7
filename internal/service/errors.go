package service

import "errors"

// Error taxonomy. Handlers map these onto HTTP statuses with errors.Is;
// anything outside the taxonomy is treated as an internal failure.
var (
	// ErrValidation covers malformed input rejected before any storage
	// access.
	ErrValidation = errors.New("invalid request")

	// ErrNotFound covers references to orders or listings that do not
	// exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden covers a principal that is not the required party for
	// the operation. Distinct from ErrNotFound: "can't touch it" is not
	// "doesn't exist".
	ErrForbidden = errors.New("forbidden")

	// ErrConflict covers a precondition on current state that is not met:
	// double confirm, terminal transition on a disputed order, inactive
	// listing, insufficient stock. Never reported as success.
	ErrConflict = errors.New("conflict")
)
