package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrNotFound is returned when a job or artifact id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied is returned when the requesting principal does not own
	// the result it asked for.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnauthorized is returned when an operation requires a principal and
	// the request carries none.
	ErrUnauthorized = errors.New("unauthorized operation")

	// ErrEmptyResult is returned when a finished job produced no content.
	ErrEmptyResult = errors.New("result is empty")

	// ErrConfiguration is returned when a required collaborator (operation,
	// template, store) is not wired. It is fatal at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvariantViolation signals a programming error, for example a
	// finished job without an owner on a handler that requires one.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrUpstreamFailure is returned when the submitted operation itself
	// failed. A failed job exists; it simply has no result.
	ErrUpstreamFailure = errors.New("operation failed")
)
