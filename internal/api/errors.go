package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/phrazzld/asyncview/internal/api/shared"
	"github.com/phrazzld/asyncview/internal/domain"
	"github.com/phrazzld/asyncview/internal/jobs"
	"github.com/phrazzld/asyncview/internal/service/auth"
	"github.com/phrazzld/asyncview/internal/store"
	"github.com/phrazzld/asyncview/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden

	// Failures of the operation itself and broken invariants
	case errors.Is(err, domain.ErrUpstreamFailure),
		errors.Is(err, domain.ErrInvariantViolation),
		errors.Is(err, domain.ErrConfiguration):
		return http.StatusInternalServerError

	// Unknown ids are a client mistake on this API, not a missing page
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, task.ErrTaskNotFound):
		return http.StatusBadRequest

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrEmptyResult),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Capacity and time limits
	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, jobs.ErrAwaitTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Authentication required"

	case errors.Is(err, domain.ErrAccessDenied):
		return "You do not have permission to access this result"

	case errors.Is(err, domain.ErrUpstreamFailure):
		return "The operation failed"

	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, task.ErrTaskNotFound):
		return "Unknown task or result"

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid task id"
	case errors.Is(err, domain.ErrEmptyResult):
		return "The operation produced no content"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"

	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return "Too many pending tasks, try again later"
	case errors.Is(err, jobs.ErrAwaitTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return "Timed out waiting for the result"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError maps err to a status code and safe message, logs the full
// error and writes the JSON error response. A non-empty message overrides
// the default safe message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}

	// Refused access logs at WARN.
	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}
